package translator

import (
	"context"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/agentotel/internal/payload"
	"github.com/steveyegge/agentotel/internal/telemetry"
)

func (t *Translator) sessionCreated(ctx context.Context, p gjson.Result) {
	id := payload.SessionID(p)
	if id == "" {
		return
	}
	t.state.Sessions.Upsert(id)
	t.add(ctx, id, telemetry.MetricSessionCount, 1)
	t.emit(ctx, id, EventSessionCreated,
		attribute.String("session.title", payload.SessionTitle(p)))
}

// sessionIdle accrues the time since the session's last activity.
func (t *Translator) sessionIdle(ctx context.Context, p gjson.Result) {
	id := payload.SessionID(p)
	s, ok := t.state.Sessions.Get(id)
	if !ok {
		return
	}
	elapsed := t.now().Sub(s.LastActivityAt).Seconds()
	t.state.Sessions.Touch(id)
	if elapsed > 0 {
		t.add(ctx, id, telemetry.MetricActiveTime, elapsed)
	}
}

func (t *Translator) sessionStatus(p gjson.Result) {
	t.state.Sessions.Touch(payload.SessionID(p))
}

func (t *Translator) sessionError(ctx context.Context, p gjson.Result) {
	info, ok := payload.Error(p.Get("error"))
	if !ok {
		return
	}
	t.emit(ctx, payload.OwningSessionID(p), EventAPIError, errorFields(info, "")...)
}

// sessionDiff is the authoritative line count for a session's changes.
func (t *Translator) sessionDiff(ctx context.Context, p gjson.Result) {
	added, removed, ok := payload.DiffTotals(p)
	if !ok {
		return
	}
	t.addLines(ctx, payload.OwningSessionID(p), added, removed)
}

func (t *Translator) fileEdited(ctx context.Context, p gjson.Result) {
	added, removed := payload.LineCounts(p)
	t.addLines(ctx, payload.OwningSessionID(p), added, removed)
}

func (t *Translator) addLines(ctx context.Context, sessionID string, added, removed int64) {
	t.add(ctx, sessionID, telemetry.MetricLinesOfCode, float64(added), attribute.String("type", "added"))
	t.add(ctx, sessionID, telemetry.MetricLinesOfCode, float64(removed), attribute.String("type", "removed"))
}

// errorFields renders an upstream error for api_error events.
func errorFields(info payload.ErrorInfo, model string) []attribute.KeyValue {
	kvs := []attribute.KeyValue{
		attribute.String("error", info.Name),
		attribute.String("error_message", info.Message),
	}
	if model != "" {
		kvs = append(kvs, attribute.String("model", model))
	}
	if info.HasStatus {
		kvs = append(kvs, attribute.Int64("status_code", info.StatusCode))
	}
	if info.HasRetry {
		kvs = append(kvs, attribute.Bool("is_retryable", info.Retryable))
	}
	return kvs
}
