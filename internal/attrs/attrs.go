// Package attrs builds the attribute sets attached to every metric data point
// and log event, and applies the active profile's value encoding to log
// attributes.
package attrs

import (
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/agentotel/internal/profile"
	"github.com/steveyegge/agentotel/internal/sequence"
)

// Attribute keys shared by both profiles.
const (
	KeyUserID         = "user.id"
	KeySessionID      = "session.id"
	KeyTerminalType   = "terminal.type"
	KeyAppVersion     = "app.version"
	KeyEventTimestamp = "event.timestamp"
	KeyEventSequence  = "event.sequence"
	KeyPromptID       = "prompt.id"
)

// timestampLayout is ISO-8601 UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Identity is the process identity resolved once at startup.
type Identity struct {
	UserID       string
	TerminalType string // empty when not detected
	AppVersion   string
}

// Options are the configuration toggles that shape the base set.
type Options struct {
	IncludeSessionID bool
	IncludeVersion   bool
}

// Renderer produces base and event attribute sets.
type Renderer struct {
	id   Identity
	opts Options
	seq  *sequence.Tracker
	now  func() time.Time
}

// NewRenderer returns a Renderer drawing sequence numbers and prompt ids from
// seq. now may be nil for time.Now.
func NewRenderer(id Identity, opts Options, seq *sequence.Tracker, now func() time.Time) *Renderer {
	if now == nil {
		now = time.Now
	}
	return &Renderer{id: id, opts: opts, seq: seq, now: now}
}

// Base returns the attributes every metric point and log event carries.
// sessionID may be empty.
func (r *Renderer) Base(sessionID string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, 8)
	kvs = append(kvs, attribute.String(KeyUserID, r.id.UserID))
	if r.opts.IncludeSessionID && sessionID != "" {
		kvs = append(kvs, attribute.String(KeySessionID, sessionID))
	}
	if r.id.TerminalType != "" {
		kvs = append(kvs, attribute.String(KeyTerminalType, r.id.TerminalType))
	}
	if r.opts.IncludeVersion && r.id.AppVersion != "" {
		kvs = append(kvs, attribute.String(KeyAppVersion, r.id.AppVersion))
	}
	return kvs
}

// Event returns Base plus timestamp, sequence and prompt correlation id.
// Each call consumes one sequence number, so call it only for events that
// are actually emitted.
func (r *Renderer) Event(sessionID string) []attribute.KeyValue {
	kvs := r.Base(sessionID)
	kvs = append(kvs,
		attribute.String(KeyEventTimestamp, r.now().UTC().Format(timestampLayout)),
		attribute.Int64(KeyEventSequence, r.seq.Next()),
	)
	if id, ok := r.seq.PromptID(); ok {
		kvs = append(kvs, attribute.String(KeyPromptID, id))
	}
	return kvs
}

// Encode applies the profile's log attribute encoding. Under a profile with
// StringifyNumbers every int64 and float64 value becomes its decimal string;
// other values, and every value under other profiles, pass through. The input
// slice is not modified.
func Encode(kvs []attribute.KeyValue, p profile.Profile) []attribute.KeyValue {
	if !p.StringifyNumbers {
		return kvs
	}
	out := make([]attribute.KeyValue, len(kvs))
	for i, kv := range kvs {
		switch kv.Value.Type() {
		case attribute.INT64:
			out[i] = attribute.String(string(kv.Key), strconv.FormatInt(kv.Value.AsInt64(), 10))
		case attribute.FLOAT64:
			out[i] = attribute.String(string(kv.Key), strconv.FormatFloat(kv.Value.AsFloat64(), 'f', -1, 64))
		default:
			out[i] = kv
		}
	}
	return out
}
