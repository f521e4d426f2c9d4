package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/steveyegge/agentotel/internal/hostevent"
)

const (
	// followPollInterval is how often a followed file is checked for growth.
	followPollInterval = 500 * time.Millisecond

	streamBufferSize = 256 * 1024
	streamChanSize   = 64
)

// Stream reads newline-delimited envelopes from a reader.
type Stream struct {
	r      io.Reader
	closer io.Closer
	follow bool
	log    zerolog.Logger

	started atomic.Bool
	skipped atomic.Int64
}

// StreamOption customises a Stream.
type StreamOption func(*Stream)

// WithFollow keeps polling for new lines after EOF, like tail -f.
func WithFollow() StreamOption { return func(s *Stream) { s.follow = true } }

// WithStreamLogger sets the diagnostics logger.
func WithStreamLogger(l zerolog.Logger) StreamOption { return func(s *Stream) { s.log = l } }

// NewStream reads from r; stdin is the usual choice.
func NewStream(r io.Reader, opts ...StreamOption) *Stream {
	s := &Stream{r: r, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// OpenFile opens path for streaming. The file is closed when the stream ends.
func OpenFile(path string, opts ...StreamOption) (*Stream, error) {
	f, err := os.Open(path) //nolint:gosec // G304: user-supplied capture path
	if err != nil {
		return nil, fmt.Errorf("opening event file: %w", err)
	}
	s := NewStream(f, opts...)
	s.closer = f
	return s, nil
}

// Skipped reports how many lines failed to decode.
func (s *Stream) Skipped() int64 { return s.skipped.Load() }

// Events starts reading. A Stream may be consumed once.
func (s *Stream) Events(ctx context.Context) (<-chan hostevent.Event, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrClosed
	}
	ch := make(chan hostevent.Event, streamChanSize)
	go func() {
		defer close(ch)
		if s.closer != nil {
			defer s.closer.Close()
		}
		s.tail(ctx, ch)
	}()
	return ch, nil
}

// tail emits every complete line, then either returns at EOF or, when
// following, polls for more. A final line without a newline is emitted at EOF
// only when not following; a follower waits for the writer to finish it.
func (s *Stream) tail(ctx context.Context, ch chan<- hostevent.Event) {
	reader := bufio.NewReaderSize(s.r, streamBufferSize)
	var partial strings.Builder

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			partial.WriteString(line)
		}
		complete := err == nil || (err == io.EOF && !s.follow && partial.Len() > 0)
		if complete {
			full := strings.TrimRight(partial.String(), "\r\n")
			partial.Reset()
			if strings.TrimSpace(full) != "" && !s.send(ctx, ch, full) {
				return
			}
		}
		if err == io.EOF {
			if !s.follow {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(followPollInterval):
			}
		} else if err != nil {
			s.log.Warn().Err(err).Msg("event stream read failed")
			return
		}
	}
}

// send decodes and delivers one line, returning false once ctx is done.
func (s *Stream) send(ctx context.Context, ch chan<- hostevent.Event, line string) bool {
	ev, err := hostevent.Decode([]byte(line))
	if err != nil {
		s.skipped.Add(1)
		s.log.Debug().Err(err).Msg("skipping malformed event line")
		return true
	}
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
