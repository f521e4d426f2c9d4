// Package translator turns host lifecycle events into metric increments and
// log events.
//
// Events are handled one at a time, to completion, in delivery order. All
// mutable dispatch state lives in State, owned by one Translator; tests build
// a fresh Translator per case. Payload problems never surface as errors: a
// missing field degrades to a zero value or skips the emission.
package translator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/agentotel/internal/attrs"
	"github.com/steveyegge/agentotel/internal/dedup"
	"github.com/steveyegge/agentotel/internal/hostevent"
	"github.com/steveyegge/agentotel/internal/payload"
	"github.com/steveyegge/agentotel/internal/profile"
	"github.com/steveyegge/agentotel/internal/sequence"
	"github.com/steveyegge/agentotel/internal/session"
	"github.com/steveyegge/agentotel/internal/telemetry"
	"github.com/steveyegge/agentotel/internal/toolcall"
)

// Log event names, unprefixed.
const (
	EventSessionCreated = "session.created"
	EventUserPrompt     = "user_prompt"
	EventToolResult     = "tool_result"
	EventAPIRequest     = "api_request"
	EventAPIError       = "api_error"
	EventToggled        = "telemetry.toggled"
)

// Content caps, in characters.
const (
	maxPromptChars     = 4096
	maxToolParamsChars = 2048
)

// Config is the subset of configuration the translator reads.
type Config struct {
	Profile          profile.Profile
	Enabled          bool
	IncludeSessionID bool
	IncludeVersion   bool
	LogUserPrompts   bool
	LogToolDetails   bool
}

// State is the translator's process-lifetime mutable state.
type State struct {
	Sessions *session.Registry
	Tools    *toolcall.Registry
	Seq      *sequence.Tracker
	Turns    *dedup.Set // assistant message ids already reported
	Enabled  bool
}

// NewState returns empty state using now as the clock.
func NewState(now func() time.Time, enabled bool) *State {
	return &State{
		Sessions: session.NewRegistry(now),
		Tools:    toolcall.NewRegistry(now),
		Seq:      sequence.New(),
		Turns:    dedup.New(),
		Enabled:  enabled,
	}
}

// Translator dispatches events to per-kind handlers.
type Translator struct {
	cfg     Config
	metrics telemetry.MetricSink
	logs    telemetry.LogSink
	render  *attrs.Renderer
	state   *State
	now     func() time.Time
}

// Option customises a Translator.
type Option func(*Translator)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Translator) { t.now = now }
}

// New builds a Translator emitting through metrics and logs.
func New(cfg Config, id attrs.Identity, metrics telemetry.MetricSink, logs telemetry.LogSink, opts ...Option) *Translator {
	t := &Translator{cfg: cfg, metrics: metrics, logs: logs, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	t.state = NewState(t.now, cfg.Enabled)
	t.render = attrs.NewRenderer(id, attrs.Options{
		IncludeSessionID: cfg.IncludeSessionID,
		IncludeVersion:   cfg.IncludeVersion,
	}, t.state.Seq, t.now)
	return t
}

// State exposes the dispatch state for inspection.
func (t *Translator) State() *State { return t.state }

// Enabled reports whether emissions are currently on.
func (t *Translator) Enabled() bool { return t.state.Enabled }

// Handle processes one event. The returned result is non-nil only for
// toggle commands. Unknown kinds are ignored.
func (t *Translator) Handle(ctx context.Context, ev hostevent.Event) *ToggleResult {
	p := payload.Parse(ev.Payload)

	if ev.Kind == hostevent.KindToggle {
		res := t.toggle(ctx, p)
		return &res
	}
	if !t.state.Enabled {
		return nil
	}

	switch ev.Kind {
	case hostevent.KindSessionCreated:
		t.sessionCreated(ctx, p)
	case hostevent.KindSessionIdle:
		t.sessionIdle(ctx, p)
	case hostevent.KindSessionStatus:
		t.sessionStatus(p)
	case hostevent.KindSessionError:
		t.sessionError(ctx, p)
	case hostevent.KindSessionDiff:
		t.sessionDiff(ctx, p)
	case hostevent.KindFileEdited:
		t.fileEdited(ctx, p)
	case hostevent.KindMessageUpdated:
		t.messageUpdated(ctx, p)
	case hostevent.KindMessagePart:
		t.messagePart(ctx, p)
	case hostevent.KindPermissionReplied:
		t.permissionReplied(ctx, p)
	case hostevent.KindToolBefore:
		t.toolBefore(p)
	case hostevent.KindToolAfter:
		t.toolAfter(ctx, p)
	case hostevent.KindChatMessage:
		t.chatMessage(ctx, p)
	}
	return nil
}

// Known reports whether kind has a handler.
func Known(kind string) bool {
	switch kind {
	case hostevent.KindToggle, hostevent.KindSessionCreated, hostevent.KindSessionIdle,
		hostevent.KindSessionStatus, hostevent.KindSessionError, hostevent.KindSessionDiff,
		hostevent.KindFileEdited, hostevent.KindMessageUpdated, hostevent.KindMessagePart,
		hostevent.KindPermissionReplied, hostevent.KindToolBefore, hostevent.KindToolAfter,
		hostevent.KindChatMessage:
		return true
	}
	return false
}

// add increments a counter with base attributes plus tags.
func (t *Translator) add(ctx context.Context, sessionID, name string, amount float64, tags ...attribute.KeyValue) {
	if amount <= 0 {
		return
	}
	kvs := append(t.render.Base(sessionID), tags...)
	t.metrics.Add(ctx, name, amount, kvs)
}

// emit sends a log event with event attributes plus fields, profile-encoded.
// Suppressed events consume no sequence number.
func (t *Translator) emit(ctx context.Context, sessionID, name string, fields ...attribute.KeyValue) {
	if t.cfg.Profile.Suppresses(name) {
		return
	}
	kvs := append(t.render.Event(sessionID), fields...)
	t.logs.Emit(ctx, name, attrs.Encode(kvs, t.cfg.Profile))
}
