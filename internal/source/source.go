// Package source delivers inbound host events to the runner.
//
// Every source hands events over one channel so the translator downstream
// stays single-threaded regardless of how many producers feed it.
package source

import (
	"context"
	"errors"

	"github.com/steveyegge/agentotel/internal/hostevent"
)

// ErrClosed is returned when a source is consumed twice or used after it
// shut down.
var ErrClosed = errors.New("source closed")

// Source streams unified events. The channel is closed at end of input or
// when ctx is cancelled.
type Source interface {
	Events(ctx context.Context) (<-chan hostevent.Event, error)
}
