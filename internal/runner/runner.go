// Package runner drives the translator from an event channel, one event at a
// time, isolating each event's failure from the next.
package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/steveyegge/agentotel/internal/hostevent"
	"github.com/steveyegge/agentotel/internal/logging"
	"github.com/steveyegge/agentotel/internal/style"
	"github.com/steveyegge/agentotel/internal/translator"
)

// Handler is satisfied by *translator.Translator.
type Handler interface {
	Handle(ctx context.Context, ev hostevent.Event) *translator.ToggleResult
}

// Notifier tells the user about a toggle outcome.
type Notifier interface {
	Notify(res translator.ToggleResult)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(translator.ToggleResult)

func (f NotifierFunc) Notify(res translator.ToggleResult) { f(res) }

// StderrNotifier prints a styled line per toggle.
type StderrNotifier struct {
	W io.Writer
}

func (n StderrNotifier) Notify(res translator.ToggleResult) {
	style.PrintToggle(n.W, res.Message, res.Enabled, res.Changed())
}

// Stats summarise a run.
type Stats struct {
	Handled int64 // events dispatched to a handler
	Failed  int64 // events whose handler panicked
	Ignored int64 // events of unknown kind
}

// Runner owns the serial loop.
type Runner struct {
	Translator Handler

	// Notifier receives toggle outcomes for events that carry no Reply.
	// Nil discards them.
	Notifier Notifier

	Logger zerolog.Logger
}

// Run processes events until ch closes or ctx is done.
func (r *Runner) Run(ctx context.Context, ch <-chan hostevent.Event) Stats {
	var stats Stats
	warn := logging.NewThrottle(r.Logger)
	defer func() {
		ev := r.Logger.Info().
			Int64("handled", stats.Handled).
			Int64("failed", stats.Failed).
			Int64("ignored", stats.Ignored)
		if d := warn.Dropped(); d > 0 {
			ev = ev.Int64("suppressed_warnings", d)
		}
		ev.Msg("event loop finished")
	}()

	for {
		select {
		case <-ctx.Done():
			return stats
		case ev, ok := <-ch:
			if !ok {
				return stats
			}
			if !translator.Known(ev.Kind) {
				stats.Ignored++
				r.Logger.Debug().Str("kind", ev.Kind).Msg("ignoring event")
				continue
			}
			res, err := r.safeHandle(ctx, ev)
			if err != nil {
				stats.Failed++
				warn.Warn().Str("kind", ev.Kind).Err(err).Msg("event handler failed")
				continue
			}
			stats.Handled++
			if res != nil {
				r.notify(ev, *res)
			}
		}
	}
}

// safeHandle converts a handler panic into an error carrying the event kind.
func (r *Runner) safeHandle(ctx context.Context, ev hostevent.Event) (res *translator.ToggleResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handling %s: panic: %v", ev.Kind, p)
		}
	}()
	return r.Translator.Handle(ctx, ev), nil
}

func (r *Runner) notify(ev hostevent.Event, res translator.ToggleResult) {
	r.Logger.Info().Bool("enabled", res.Enabled).Bool("previous", res.Previous).Msg(res.Message)
	if ev.Reply != nil {
		ev.Reply(hostevent.Notification{Message: res.Message, Enabled: res.Enabled})
		return
	}
	if r.Notifier != nil {
		r.Notifier.Notify(res)
	}
}
