package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/agentotel/internal/config"
	"github.com/steveyegge/agentotel/internal/source"
)

var (
	replayFollow  bool
	replayConsole bool
)

var replayCmd = &cobra.Command{
	Use:     "replay FILE",
	GroupID: GroupPipeline,
	Short:   "Feed a captured JSONL event file through the pipeline",
	Args:    cobra.ExactArgs(1),
	RunE:    runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayFollow, "follow", false, "Keep reading as the file grows")
	replayCmd.Flags().BoolVar(&replayConsole, "console", false, "Print telemetry to stdout instead of exporting")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := *loadedCfg
	if replayConsole {
		cfg.Exporter = config.ExporterConsole
	}

	opts := []source.StreamOption{source.WithStreamLogger(logger)}
	if replayFollow {
		opts = append(opts, source.WithFollow())
	}
	stream, err := source.OpenFile(args[0], opts...)
	if err != nil {
		return err
	}

	p, err := newPipeline(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer p.shutdown()

	ch, err := stream.Events(ctx)
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	stats := p.runner.Run(ctx, ch)
	if n := stream.Skipped(); n > 0 {
		logger.Warn().Int64("lines", n).Str("file", args[0]).Msg("skipped malformed lines")
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "replayed %d events (%d ignored, %d failed)\n",
		stats.Handled, stats.Ignored, stats.Failed)
	return nil
}
