package translator

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/agentotel/internal/payload"
)

// ToggleResult reports the outcome of a toggle command so the caller can
// notify the user.
type ToggleResult struct {
	Enabled  bool
	Previous bool
	Message  string
}

// Changed reports whether the command flipped the enabled flag.
func (r ToggleResult) Changed() bool { return r.Enabled != r.Previous }

// toggle handles on/off/toggle regardless of the current enabled state and
// always emits telemetry.toggled.
func (t *Translator) toggle(ctx context.Context, p gjson.Result) ToggleResult {
	arg := strings.ToLower(strings.TrimSpace(payload.FirstString(p, "argument", "arguments")))
	prev := t.state.Enabled
	res := ToggleResult{Previous: prev, Enabled: prev}

	switch arg {
	case "on", "enable", "true":
		res.Enabled = true
	case "off", "disable", "false":
		res.Enabled = false
	case "", "toggle":
		res.Enabled = !prev
	default:
		res.Message = "Unknown argument " + arg + "; use /telemetry [on|off|toggle]"
	}
	t.state.Enabled = res.Enabled

	if res.Message == "" {
		if res.Enabled {
			res.Message = "Telemetry enabled"
		} else {
			res.Message = "Telemetry disabled"
		}
	}

	t.emit(ctx, payload.OwningSessionID(p), EventToggled,
		attribute.Bool("enabled", res.Enabled),
		attribute.Bool("previous", prev),
		attribute.String("argument", arg),
	)
	return res
}
