package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/agentotel/internal/source"
)

var (
	serveStdin  bool
	serveListen string
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: GroupPipeline,
	Short:   "Receive host events and export telemetry until interrupted",
	Long: `Receive host events and export telemetry.

By default events are accepted over HTTP: POST /v1/events takes one envelope
or an array, and /v1/events/ws takes one envelope per WebSocket text message.
With --stdin, newline-delimited envelopes are read from standard input and the
command exits at end of input.

Pending telemetry is flushed on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveStdin, "stdin", false, "Read newline-delimited events from stdin instead of HTTP")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Ingest listen address (default from config, 127.0.0.1:4319)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, loadedCfg, logger)
	if err != nil {
		return err
	}
	defer p.shutdown()

	ch, err := serveSource().Events(ctx)
	if err != nil {
		return fmt.Errorf("starting event source: %w", err)
	}
	p.runner.Run(ctx, ch)
	return nil
}

func serveSource() source.Source {
	if serveStdin {
		return source.NewStream(os.Stdin, source.WithStreamLogger(logger))
	}
	addr := serveListen
	if addr == "" {
		addr = loadedCfg.Listen
	}
	return source.NewHTTP(addr, logger)
}

// commandContext is cmd's context, or Background when the command runs
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
