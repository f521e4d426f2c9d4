package translator

import (
	"context"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/agentotel/internal/payload"
	"github.com/steveyegge/agentotel/internal/telemetry"
)

const defaultSpeed = "normal"

// messageUpdated reports a completed assistant turn exactly once per
// message id. Partial updates (no usage yet, not completed) are skipped
// without marking the id, so the final update still reports.
func (t *Translator) messageUpdated(ctx context.Context, p gjson.Result) {
	info := p.Get("info")
	if info.Get("role").String() != "assistant" {
		return
	}
	tokens, ok := payload.MessageTokens(info)
	if !ok {
		return
	}
	completed := payload.FirstInt(info, "time.completed")
	if completed <= 0 {
		return
	}
	if t.state.Turns.AlreadyProcessed(payload.FirstString(info, "id")) {
		return
	}

	sessionID := payload.OwningSessionID(p)
	model := payload.FirstString(info, "modelID", "model")
	modelTag := attribute.String("model", model)

	for _, u := range []struct {
		kind  string
		count int64
	}{
		{"input", tokens.Input},
		{"output", tokens.Output},
		{"cacheRead", tokens.CacheRead},
		{"cacheCreation", tokens.CacheCreation},
	} {
		t.add(ctx, sessionID, telemetry.MetricTokenUsage, float64(u.count),
			attribute.String("type", u.kind), modelTag)
	}

	cost, _ := payload.FirstNumber(info, "cost")
	if cost > 0 {
		t.add(ctx, sessionID, telemetry.MetricCostUsage, cost, modelTag)
	}

	var duration int64
	if created := payload.FirstInt(info, "time.created"); created > 0 && completed >= created {
		duration = completed - created
	}
	speed := payload.FirstString(info, "speed")
	if speed == "" {
		speed = defaultSpeed
	}

	fields := []attribute.KeyValue{
		modelTag,
		attribute.Int64("input_tokens", tokens.Input),
		attribute.Int64("output_tokens", tokens.Output),
		attribute.Int64("cache_read_tokens", tokens.CacheRead),
		attribute.Int64("cache_creation_tokens", tokens.CacheCreation),
		attribute.Float64("cost_usd", cost),
		attribute.Int64("duration_ms", duration),
		attribute.String("speed", speed),
	}
	if provider := payload.FirstString(info, "providerID"); provider != "" {
		fields = append(fields, attribute.String("provider", provider))
	}
	t.emit(ctx, sessionID, EventAPIRequest, fields...)

	if errInfo, ok := payload.Error(info.Get("error")); ok {
		errKVs := errorFields(errInfo, model)
		errKVs = append(errKVs, attribute.Int64("duration_ms", duration))
		t.emit(ctx, sessionID, EventAPIError, errKVs...)
	}
}

// messagePart reports retry parts. Each retry is its own event; there is no
// de-duplication here.
func (t *Translator) messagePart(ctx context.Context, p gjson.Result) {
	part := p.Get("part")
	if part.Get("type").String() != "retry" {
		return
	}
	errInfo, _ := payload.Error(part.Get("error"))
	kvs := errorFields(errInfo, "")
	kvs = append(kvs,
		attribute.Int64("attempt", payload.FirstInt(part, "attempt")),
		attribute.Int64("duration_ms", 0),
	)
	t.emit(ctx, payload.OwningSessionID(p), EventAPIError, kvs...)
}

// chatMessage reports a user prompt and opens a new correlation scope.
func (t *Translator) chatMessage(ctx context.Context, p gjson.Result) {
	parts := p.Get("parts")
	if !parts.Exists() {
		parts = p.Get("message.parts")
	}
	prompt := payload.PromptText(parts)

	t.state.Seq.NewPromptID()

	fields := []attribute.KeyValue{
		attribute.Int64("prompt_length", int64(utf8.RuneCountInString(prompt))),
	}
	if agent := payload.FirstString(p, "agent", "message.agent"); agent != "" {
		fields = append(fields, attribute.String("agent", agent))
	}
	if provider := payload.FirstString(p, "model.providerID", "message.model.providerID"); provider != "" {
		fields = append(fields, attribute.String("model_provider", provider))
	}
	if model := payload.FirstString(p, "model.modelID", "message.model.modelID"); model != "" {
		fields = append(fields, attribute.String("model", model))
	}
	if t.cfg.LogUserPrompts {
		fields = append(fields, attribute.String("prompt", telemetry.Truncate(prompt, maxPromptChars)))
	}
	t.emit(ctx, payload.FirstString(p, "sessionID", "message.sessionID"), EventUserPrompt, fields...)
}
