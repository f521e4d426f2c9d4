// Package hostevent folds the host's hook callbacks into the single
// {kind, payload} shape the translator consumes.
//
// The host plugin shim forwards each callback as one JSON envelope:
//
//	{"hook": "tool.execute.after", "input": {...}, "output": {...}}
//
// Bus events arrive either through the "event" hook or bare as
// {"type": ..., "properties": ...}. Already-unified {"kind", "payload"}
// objects (replay captures) pass through untouched.
package hostevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Event kinds understood by the translator. Any other kind is ignored.
const (
	KindToggle            = "telemetry.toggle"
	KindSessionCreated    = "session.created"
	KindSessionIdle       = "session.idle"
	KindSessionStatus     = "session.status"
	KindSessionError      = "session.error"
	KindSessionDiff       = "session.diff"
	KindFileEdited        = "file.edited"
	KindMessageUpdated    = "message.updated"
	KindMessagePart       = "message.part.updated"
	KindPermissionReplied = "permission.replied"
	KindToolBefore        = "tool.execute.before"
	KindToolAfter         = "tool.execute.after"
	KindChatMessage       = "chat.message"
)

// toggleCommand is the slash command routed to KindToggle.
const toggleCommand = "telemetry"

// ErrMalformed is returned for envelopes that are not JSON objects or name
// neither a hook, a type nor a kind.
var ErrMalformed = errors.New("malformed host event")

// Notification is a message for the user, e.g. the outcome of a toggle.
type Notification struct {
	Message string `json:"message"`
	Enabled bool   `json:"enabled"`
}

// Event is one unified inbound event.
type Event struct {
	Kind    string
	Payload json.RawMessage

	// Reply, when set, delivers notifications back over the channel the
	// event arrived on.
	Reply func(Notification) `json:"-"`
}

// Decode parses one envelope into an Event.
func Decode(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return Event{}, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	env := gjson.ParseBytes(data)
	if !env.IsObject() {
		return Event{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	if kind := env.Get("kind"); kind.Type == gjson.String {
		return Event{Kind: kind.Str, Payload: raw(env.Get("payload"))}, nil
	}
	if typ := env.Get("type"); typ.Type == gjson.String {
		return Event{Kind: typ.Str, Payload: raw(env.Get("properties"))}, nil
	}
	hook := env.Get("hook")
	if hook.Type != gjson.String || hook.Str == "" {
		return Event{}, fmt.Errorf("%w: missing hook", ErrMalformed)
	}
	return fromHook(hook.Str, env.Get("input"), env.Get("output"))
}

func fromHook(hook string, input, output gjson.Result) (Event, error) {
	switch hook {
	case "event":
		bus := input.Get("event")
		if !bus.Exists() {
			bus = input
		}
		kind := bus.Get("type").String()
		if kind == "" {
			return Event{}, fmt.Errorf("%w: event hook without type", ErrMalformed)
		}
		return Event{Kind: kind, Payload: raw(bus.Get("properties"))}, nil

	case KindChatMessage:
		p, err := merge(input, map[string]gjson.Result{
			"message": output.Get("message"),
			"parts":   output.Get("parts"),
		})
		return Event{Kind: hook, Payload: p}, err

	case KindToolBefore:
		p, err := merge(input, map[string]gjson.Result{"args": output.Get("args")})
		return Event{Kind: hook, Payload: p}, err

	case KindToolAfter:
		p, err := merge(input, map[string]gjson.Result{
			"output":   output.Get("output"),
			"title":    output.Get("title"),
			"metadata": output.Get("metadata"),
		})
		return Event{Kind: hook, Payload: p}, err

	case "command.execute.before":
		if strings.TrimPrefix(input.Get("command").String(), "/") == toggleCommand {
			p, err := sjson.SetBytes([]byte(`{}`), "argument", input.Get("arguments").String())
			if err != nil {
				return Event{}, fmt.Errorf("building toggle payload: %w", err)
			}
			if sid := input.Get("sessionID").String(); sid != "" {
				if p, err = sjson.SetBytes(p, "sessionID", sid); err != nil {
					return Event{}, fmt.Errorf("building toggle payload: %w", err)
				}
			}
			return Event{Kind: KindToggle, Payload: p}, nil
		}
		return Event{Kind: hook, Payload: raw(input)}, nil

	default:
		return Event{Kind: hook, Payload: raw(input)}, nil
	}
}

// merge copies base and sets each present extra field on top of it.
func merge(base gjson.Result, extra map[string]gjson.Result) (json.RawMessage, error) {
	out := []byte(`{}`)
	if base.IsObject() {
		out = []byte(base.Raw)
	}
	// Fixed key order keeps output deterministic.
	for _, key := range []string{"message", "parts", "args", "output", "title", "metadata"} {
		v, ok := extra[key]
		if !ok || !v.Exists() {
			continue
		}
		var err error
		out, err = sjson.SetRawBytes(out, key, []byte(v.Raw))
		if err != nil {
			return nil, fmt.Errorf("merging %s: %w", key, err)
		}
	}
	return out, nil
}

func raw(r gjson.Result) json.RawMessage {
	if !r.Exists() {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(r.Raw)
}
