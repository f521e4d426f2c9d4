package translator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/agentotel/internal/attrs"
	"github.com/steveyegge/agentotel/internal/hostevent"
	"github.com/steveyegge/agentotel/internal/profile"
	"github.com/steveyegge/agentotel/internal/telemetry"
)

type metricCall struct {
	name   string
	amount float64
	attrs  []attribute.KeyValue
}

type logCall struct {
	name  string
	attrs []attribute.KeyValue
}

type fakeMetrics struct{ calls []metricCall }

func (f *fakeMetrics) Add(_ context.Context, name string, amount float64, kvs []attribute.KeyValue) {
	f.calls = append(f.calls, metricCall{name, amount, kvs})
}

func (f *fakeMetrics) named(name string) []metricCall {
	var out []metricCall
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

type fakeLogs struct{ calls []logCall }

func (f *fakeLogs) Emit(_ context.Context, name string, kvs []attribute.KeyValue) {
	f.calls = append(f.calls, logCall{name, kvs})
}

func (f *fakeLogs) named(name string) []logCall {
	var out []logCall
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	tr      *Translator
	metrics *fakeMetrics
	logs    *fakeLogs
	clock   *fakeClock
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	cfg := Config{
		Profile:          profile.For(profile.Native),
		Enabled:          true,
		IncludeSessionID: true,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	h := &harness{
		metrics: &fakeMetrics{},
		logs:    &fakeLogs{},
		clock:   &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	h.tr = New(cfg, attrs.Identity{UserID: "user-1", AppVersion: "0.9.0"}, h.metrics, h.logs, WithClock(h.clock.now))
	return h
}

func mirrored(c *Config)       { c.Profile = profile.For(profile.Mirrored) }
func toolDetails(c *Config)    { c.LogToolDetails = true }
func promptLogging(c *Config)  { c.LogUserPrompts = true }
func startDisabled(c *Config)  { c.Enabled = false }
func withoutSession(c *Config) { c.IncludeSessionID = false }

func (h *harness) send(t *testing.T, kind, payloadJSON string) *ToggleResult {
	t.Helper()
	require.True(t, json.Valid([]byte(payloadJSON)), "test payload must be valid JSON: %s", payloadJSON)
	return h.tr.Handle(context.Background(), hostevent.Event{Kind: kind, Payload: json.RawMessage(payloadJSON)})
}

func attr(t *testing.T, kvs []attribute.KeyValue, key string) attribute.Value {
	t.Helper()
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	t.Fatalf("attribute %q not found in %v", key, kvs)
	return attribute.Value{}
}

func hasAttr(kvs []attribute.KeyValue, key string) bool {
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return true
		}
	}
	return false
}

// --- session ---

func TestSessionCreated_Native(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindSessionCreated, `{"info":{"id":"sess-1","title":"T"}}`)

	counts := h.metrics.named(telemetry.MetricSessionCount)
	require.Len(t, counts, 1)
	assert.Equal(t, 1.0, counts[0].amount)
	assert.Equal(t, "sess-1", attr(t, counts[0].attrs, attrs.KeySessionID).AsString())
	assert.Equal(t, "user-1", attr(t, counts[0].attrs, attrs.KeyUserID).AsString())

	created := h.logs.named(EventSessionCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "T", attr(t, created[0].attrs, "session.title").AsString())
	assert.Equal(t, 1, h.tr.State().Sessions.Len())
}

func TestSessionCreated_MirroredSuppressesLogOnly(t *testing.T) {
	h := newHarness(t, mirrored)
	h.send(t, hostevent.KindSessionCreated, `{"info":{"id":"sess-1","title":"T"}}`)

	assert.Len(t, h.metrics.named(telemetry.MetricSessionCount), 1)
	assert.Empty(t, h.logs.calls)

	// The suppressed event must not consume a sequence number.
	h.send(t, hostevent.KindChatMessage, `{"sessionID":"sess-1","parts":[{"type":"text","text":"x"}]}`)
	require.Len(t, h.logs.calls, 1)
	assert.Equal(t, "0", attr(t, h.logs.calls[0].attrs, attrs.KeyEventSequence).AsString())
}

func TestSessionCreated_NoID(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindSessionCreated, `{"info":{"title":"T"}}`)
	assert.Empty(t, h.metrics.calls)
	assert.Empty(t, h.logs.calls)
}

func TestSessionCreated_SessionIDExcluded(t *testing.T) {
	h := newHarness(t, withoutSession)
	h.send(t, hostevent.KindSessionCreated, `{"info":{"id":"sess-1"}}`)
	require.Len(t, h.metrics.calls, 1)
	assert.False(t, hasAttr(h.metrics.calls[0].attrs, attrs.KeySessionID))
}

func TestSessionIdle_AccruesActiveTime(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindSessionCreated, `{"info":{"id":"s1"}}`)
	h.clock.advance(90 * time.Second)
	h.send(t, hostevent.KindSessionIdle, `{"sessionID":"s1"}`)

	active := h.metrics.named(telemetry.MetricActiveTime)
	require.Len(t, active, 1)
	assert.InDelta(t, 90.0, active[0].amount, 0.001)

	// Second idle counts only from the previous one.
	h.clock.advance(10 * time.Second)
	h.send(t, hostevent.KindSessionIdle, `{"sessionID":"s1"}`)
	active = h.metrics.named(telemetry.MetricActiveTime)
	require.Len(t, active, 2)
	assert.InDelta(t, 10.0, active[1].amount, 0.001)
}

func TestSessionIdle_WallClock(t *testing.T) {
	h := newHarness(t)
	h.tr = New(h.tr.cfg, attrs.Identity{UserID: "u"}, h.metrics, h.logs)
	h.send(t, hostevent.KindSessionCreated, `{"info":{"id":"s1"}}`)
	time.Sleep(1100 * time.Millisecond)
	h.send(t, hostevent.KindSessionIdle, `{"sessionID":"s1"}`)

	active := h.metrics.named(telemetry.MetricActiveTime)
	require.Len(t, active, 1)
	assert.InDelta(t, 1.1, active[0].amount, 0.5)
}

func TestSessionIdle_UnknownOrNoElapsed(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindSessionIdle, `{"sessionID":"ghost"}`)
	h.send(t, hostevent.KindSessionCreated, `{"info":{"id":"s1"}}`)
	h.send(t, hostevent.KindSessionIdle, `{"sessionID":"s1"}`)
	assert.Empty(t, h.metrics.named(telemetry.MetricActiveTime))
}

func TestSessionStatus_TouchesOnly(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindSessionCreated, `{"info":{"id":"s1"}}`)
	h.clock.advance(30 * time.Second)
	h.send(t, hostevent.KindSessionStatus, `{"sessionID":"s1","status":{"type":"busy"}}`)
	h.clock.advance(5 * time.Second)
	h.send(t, hostevent.KindSessionIdle, `{"sessionID":"s1"}`)

	active := h.metrics.named(telemetry.MetricActiveTime)
	require.Len(t, active, 1)
	assert.InDelta(t, 5.0, active[0].amount, 0.001)
	assert.Len(t, h.metrics.calls, 2, "status itself emits nothing")
}

func TestSessionError(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindSessionError, `{"sessionID":"s1","error":{"name":"APIError","data":{"message":"rate limited","statusCode":429,"isRetryable":true}}}`)

	errs := h.logs.named(EventAPIError)
	require.Len(t, errs, 1)
	kvs := errs[0].attrs
	assert.Equal(t, "APIError", attr(t, kvs, "error").AsString())
	assert.Equal(t, "rate limited", attr(t, kvs, "error_message").AsString())
	assert.Equal(t, int64(429), attr(t, kvs, "status_code").AsInt64())
	assert.True(t, attr(t, kvs, "is_retryable").AsBool())
}

func TestSessionError_NoPayload(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindSessionError, `{"sessionID":"s1"}`)
	assert.Empty(t, h.logs.calls)
}

func TestSessionDiff(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindSessionDiff, `{"sessionID":"s1","diff":[{"file":"a","additions":3,"deletions":2},{"file":"b","additions":4,"deletions":0}]}`)

	loc := h.metrics.named(telemetry.MetricLinesOfCode)
	require.Len(t, loc, 2)
	assert.Equal(t, 7.0, loc[0].amount)
	assert.Equal(t, "added", attr(t, loc[0].attrs, "type").AsString())
	assert.Equal(t, 2.0, loc[1].amount)
	assert.Equal(t, "removed", attr(t, loc[1].attrs, "type").AsString())
}

func TestSessionDiff_SkipsZeroAndEmpty(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindSessionDiff, `{"sessionID":"s1","diff":[]}`)
	h.send(t, hostevent.KindSessionDiff, `{"sessionID":"s1","diff":[{"file":"a","additions":1,"deletions":0}]}`)
	loc := h.metrics.named(telemetry.MetricLinesOfCode)
	require.Len(t, loc, 1)
	assert.Equal(t, "added", attr(t, loc[0].attrs, "type").AsString())
}

func TestFileEdited_AlternateKeys(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindFileEdited, `{"file":"a.go","linesAdded":5,"linesRemoved":0}`)
	h.send(t, hostevent.KindFileEdited, `{"file":"b.go","additions":0,"deletions":2}`)
	h.send(t, hostevent.KindFileEdited, `{"file":"c.go"}`)

	loc := h.metrics.named(telemetry.MetricLinesOfCode)
	require.Len(t, loc, 2)
	assert.Equal(t, 5.0, loc[0].amount)
	assert.Equal(t, "added", attr(t, loc[0].attrs, "type").AsString())
	assert.Equal(t, 2.0, loc[1].amount)
	assert.Equal(t, "removed", attr(t, loc[1].attrs, "type").AsString())
}

// --- messages ---

const assistantTurn = `{"info":{"id":"msg_1","sessionID":"s1","role":"assistant","modelID":"claude-sonnet-4-5","providerID":"anthropic",
	"cost":0.0123,"time":{"created":1000,"completed":3500},
	"tokens":{"input":100,"output":40,"reasoning":0,"cache":{"read":7,"write":0}}}}`

func TestMessageUpdated_EmitsUsageAndRequest(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindMessageUpdated, assistantTurn)

	usage := h.metrics.named(telemetry.MetricTokenUsage)
	require.Len(t, usage, 3, "zero cacheCreation must be skipped")
	byType := map[string]float64{}
	for _, u := range usage {
		byType[attr(t, u.attrs, "type").AsString()] = u.amount
		assert.Equal(t, "claude-sonnet-4-5", attr(t, u.attrs, "model").AsString())
	}
	assert.Equal(t, map[string]float64{"input": 100, "output": 40, "cacheRead": 7}, byType)

	cost := h.metrics.named(telemetry.MetricCostUsage)
	require.Len(t, cost, 1)
	assert.InDelta(t, 0.0123, cost[0].amount, 1e-9)

	req := h.logs.named(EventAPIRequest)
	require.Len(t, req, 1)
	kvs := req[0].attrs
	assert.Equal(t, int64(100), attr(t, kvs, "input_tokens").AsInt64())
	assert.Equal(t, int64(40), attr(t, kvs, "output_tokens").AsInt64())
	assert.Equal(t, int64(7), attr(t, kvs, "cache_read_tokens").AsInt64())
	assert.Equal(t, int64(0), attr(t, kvs, "cache_creation_tokens").AsInt64())
	assert.Equal(t, int64(2500), attr(t, kvs, "duration_ms").AsInt64())
	assert.Equal(t, "normal", attr(t, kvs, "speed").AsString())
	assert.Equal(t, "anthropic", attr(t, kvs, "provider").AsString())
	assert.Equal(t, "s1", attr(t, kvs, attrs.KeySessionID).AsString())
	assert.Empty(t, h.logs.named(EventAPIError))
}

func TestMessageUpdated_DedupByMessageID(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 4; i++ {
		h.send(t, hostevent.KindMessageUpdated, assistantTurn)
	}
	assert.Len(t, h.logs.named(EventAPIRequest), 1)
	assert.Len(t, h.metrics.named(telemetry.MetricTokenUsage), 3)
	assert.Len(t, h.metrics.named(telemetry.MetricCostUsage), 1)
}

func TestMessageUpdated_PartialUpdatesDoNotConsumeKey(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindMessageUpdated, `{"info":{"id":"msg_1","role":"assistant","time":{"created":1000}}}`)
	h.send(t, hostevent.KindMessageUpdated, `{"info":{"id":"msg_1","role":"assistant","time":{"created":1000},"tokens":{"input":1,"output":0}}}`)
	assert.Empty(t, h.logs.calls)

	h.send(t, hostevent.KindMessageUpdated, assistantTurn)
	assert.Len(t, h.logs.named(EventAPIRequest), 1)
}

func TestMessageUpdated_IgnoresUserRole(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindMessageUpdated, strings.Replace(assistantTurn, `"assistant"`, `"user"`, 1))
	assert.Empty(t, h.logs.calls)
	assert.Empty(t, h.metrics.calls)
}

func TestMessageUpdated_MissingCreatedAndZeroCost(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindMessageUpdated, `{"info":{"id":"m2","role":"assistant","modelID":"m","time":{"completed":50},"tokens":{"input":3}}}`)

	req := h.logs.named(EventAPIRequest)
	require.Len(t, req, 1)
	assert.Equal(t, int64(0), attr(t, req[0].attrs, "duration_ms").AsInt64())
	assert.Equal(t, int64(0), attr(t, req[0].attrs, "output_tokens").AsInt64())
	assert.Empty(t, h.metrics.named(telemetry.MetricCostUsage))
}

func TestMessageUpdated_WithError(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindMessageUpdated, `{"info":{"id":"m3","role":"assistant","modelID":"m","time":{"created":10,"completed":20},
		"tokens":{"input":1,"output":1},"error":{"name":"APIError","data":{"message":"boom","statusCode":500,"isRetryable":false}}}}`)

	assert.Len(t, h.logs.named(EventAPIRequest), 1)
	errs := h.logs.named(EventAPIError)
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", attr(t, errs[0].attrs, "error_message").AsString())
	assert.Equal(t, int64(500), attr(t, errs[0].attrs, "status_code").AsInt64())
	assert.False(t, attr(t, errs[0].attrs, "is_retryable").AsBool())
	assert.Equal(t, "m", attr(t, errs[0].attrs, "model").AsString())
}

func TestMessagePart_RetryNotDeduplicated(t *testing.T) {
	h := newHarness(t)
	retry := `{"part":{"id":"prt_1","sessionID":"s1","type":"retry","attempt":2,"error":{"name":"APIError","data":{"message":"overloaded","statusCode":529,"isRetryable":true}}}}`
	h.send(t, hostevent.KindMessagePart, retry)
	h.send(t, hostevent.KindMessagePart, retry)

	errs := h.logs.named(EventAPIError)
	require.Len(t, errs, 2)
	assert.Equal(t, int64(2), attr(t, errs[0].attrs, "attempt").AsInt64())
	assert.Equal(t, int64(529), attr(t, errs[0].attrs, "status_code").AsInt64())
}

func TestMessagePart_NonRetryIgnored(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindMessagePart, `{"part":{"type":"text","text":"hi"}}`)
	assert.Empty(t, h.logs.calls)
}

func TestChatMessage_PromptText(t *testing.T) {
	h := newHarness(t, promptLogging)
	h.send(t, hostevent.KindChatMessage, `{"sessionID":"s1","agent":"build","model":{"providerID":"anthropic","modelID":"m1"},
		"parts":[{"type":"text","text":"Hello"},{"type":"file","mime":"image/png","url":"data:"},{"type":"text","text":"World"}]}`)

	prompts := h.logs.named(EventUserPrompt)
	require.Len(t, prompts, 1)
	kvs := prompts[0].attrs
	assert.Equal(t, "Hello\nWorld", attr(t, kvs, "prompt").AsString())
	assert.Equal(t, int64(11), attr(t, kvs, "prompt_length").AsInt64())
	assert.Equal(t, "build", attr(t, kvs, "agent").AsString())
	assert.Equal(t, "anthropic", attr(t, kvs, "model_provider").AsString())
	assert.Equal(t, "m1", attr(t, kvs, "model").AsString())
	assert.Len(t, attr(t, kvs, attrs.KeyPromptID).AsString(), 36)
}

func TestChatMessage_PromptOmittedByDefault(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindChatMessage, `{"sessionID":"s1","parts":[{"type":"text","text":"secret"}]}`)
	prompts := h.logs.named(EventUserPrompt)
	require.Len(t, prompts, 1)
	assert.False(t, hasAttr(prompts[0].attrs, "prompt"))
	assert.Equal(t, int64(6), attr(t, prompts[0].attrs, "prompt_length").AsInt64())
}

func TestChatMessage_PromptTruncated(t *testing.T) {
	h := newHarness(t, promptLogging)
	long := strings.Repeat("a", 5000)
	h.send(t, hostevent.KindChatMessage, `{"parts":[{"type":"text","text":"`+long+`"}]}`)
	kvs := h.logs.named(EventUserPrompt)[0].attrs
	assert.Len(t, attr(t, kvs, "prompt").AsString(), 4096)
	assert.Equal(t, int64(5000), attr(t, kvs, "prompt_length").AsInt64())
}

func TestChatMessage_CorrelatesLaterEvents(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindChatMessage, `{"sessionID":"s1","parts":[{"type":"text","text":"one"}]}`)
	first := attr(t, h.logs.calls[0].attrs, attrs.KeyPromptID).AsString()

	h.send(t, hostevent.KindMessageUpdated, assistantTurn)
	req := h.logs.named(EventAPIRequest)
	require.Len(t, req, 1)
	assert.Equal(t, first, attr(t, req[0].attrs, attrs.KeyPromptID).AsString())

	h.send(t, hostevent.KindChatMessage, `{"sessionID":"s1","parts":[{"type":"text","text":"two"}]}`)
	prompts := h.logs.named(EventUserPrompt)
	second := attr(t, prompts[1].attrs, attrs.KeyPromptID).AsString()
	assert.NotEqual(t, first, second)
}

func TestChatMessage_MirroredStringifiesNumbers(t *testing.T) {
	h := newHarness(t, mirrored)
	h.send(t, hostevent.KindChatMessage, `{"parts":[{"type":"text","text":"Hello"},{"type":"text","text":"World"}]}`)
	kvs := h.logs.named(EventUserPrompt)[0].attrs
	v := attr(t, kvs, "prompt_length")
	assert.Equal(t, attribute.STRING, v.Type())
	assert.Equal(t, "11", v.AsString())
	assert.Equal(t, "0", attr(t, kvs, attrs.KeyEventSequence).AsString())
}

// --- tools ---

func TestToolResult_Duration(t *testing.T) {
	h := newHarness(t, toolDetails)
	h.send(t, hostevent.KindToolBefore, `{"tool":"read","sessionID":"s1","callID":"c1","args":{"filePath":"/x"}}`)
	h.clock.advance(150 * time.Millisecond)
	h.send(t, hostevent.KindToolAfter, `{"tool":"read","sessionID":"s1","callID":"c1","output":"hello"}`)

	results := h.logs.named(EventToolResult)
	require.Len(t, results, 1)
	kvs := results[0].attrs
	assert.GreaterOrEqual(t, attr(t, kvs, "duration_ms").AsInt64(), int64(100))
	assert.Equal(t, int64(5), attr(t, kvs, "tool_result_size_bytes").AsInt64())
	assert.Equal(t, "read", attr(t, kvs, "tool_name").AsString())
	assert.True(t, attr(t, kvs, "success").AsBool())
	assert.JSONEq(t, `{"filePath":"/x"}`, attr(t, kvs, "tool_parameters").AsString())
	assert.Equal(t, 0, h.tr.State().Tools.Len())
}

func TestToolResult_Orphan(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindToolAfter, `{"tool":"read","callID":"nope","output":"x"}`)
	results := h.logs.named(EventToolResult)
	require.Len(t, results, 1)
	assert.Equal(t, int64(0), attr(t, results[0].attrs, "duration_ms").AsInt64())
}

func TestToolResult_RedactedWithoutDetails(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindToolBefore, `{"tool":"mcp_github","callID":"c1","args":{"token":"x"}}`)
	h.send(t, hostevent.KindToolAfter, `{"tool":"mcp_github","callID":"c1","output":"ok"}`)
	kvs := h.logs.named(EventToolResult)[0].attrs
	assert.Equal(t, redactedToolName, attr(t, kvs, "tool_name").AsString())
	assert.False(t, hasAttr(kvs, "tool_parameters"))
	assert.False(t, hasAttr(kvs, "tool_result_size_bytes"))
}

func TestToolResult_SuccessHeuristic(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindToolAfter, `{"tool":"bash","callID":"c1","output":"Error: file not found"}`)
	h.send(t, hostevent.KindToolAfter, `{"tool":"bash","callID":"c2","output":"all good"}`)
	results := h.logs.named(EventToolResult)
	require.Len(t, results, 2)
	assert.False(t, attr(t, results[0].attrs, "success").AsBool())
	assert.True(t, attr(t, results[1].attrs, "success").AsBool())
}

func TestToolResult_ParametersCapped(t *testing.T) {
	h := newHarness(t, toolDetails)
	big := strings.Repeat("x", 3000)
	h.send(t, hostevent.KindToolBefore, `{"tool":"write","callID":"c1","args":{"content":"`+big+`"}}`)
	h.send(t, hostevent.KindToolAfter, `{"tool":"write","callID":"c1","output":""}`)
	kvs := h.logs.named(EventToolResult)[0].attrs
	assert.Len(t, attr(t, kvs, "tool_parameters").AsString(), 2048)
}

func TestToolAfter_CommitAndPullRequest(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindToolBefore, `{"tool":"bash","callID":"c1","args":{"command":"git add . && git commit -m 'fix'"}}`)
	h.send(t, hostevent.KindToolAfter, `{"tool":"bash","callID":"c1","output":"[main abc123] fix"}`)
	h.send(t, hostevent.KindToolBefore, `{"tool":"bash","callID":"c2","args":{"command":"gh pr create --fill"}}`)
	h.send(t, hostevent.KindToolAfter, `{"tool":"bash","callID":"c2","output":"https://github.com/o/r/pull/1"}`)
	h.send(t, hostevent.KindToolBefore, `{"tool":"bash","callID":"c3","args":{"command":"git status"}}`)
	h.send(t, hostevent.KindToolAfter, `{"tool":"bash","callID":"c3","output":"clean"}`)

	assert.Len(t, h.metrics.named(telemetry.MetricCommitCount), 1)
	assert.Len(t, h.metrics.named(telemetry.MetricPullRequests), 1)
}

func TestToolAfter_ArgsFromAfterPayload(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindToolAfter, `{"tool":"bash","callID":"c9","args":{"command":"git commit -am wip"},"output":""}`)
	assert.Len(t, h.metrics.named(telemetry.MetricCommitCount), 1)
}

func TestToolAfter_WriteAndEditLines(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindToolAfter, `{"tool":"write","callID":"w1","output":"a\nb\nc\n"}`)
	h.send(t, hostevent.KindToolAfter, `{"tool":"Edit","callID":"e1","output":"x\ny"}`)
	h.send(t, hostevent.KindToolAfter, `{"tool":"edit","callID":"e2","output":""}`)

	loc := h.metrics.named(telemetry.MetricLinesOfCode)
	require.Len(t, loc, 2)
	assert.Equal(t, 3.0, loc[0].amount)
	assert.Equal(t, "added", attr(t, loc[0].attrs, "type").AsString())
	assert.Equal(t, 2.0, loc[1].amount)
	assert.Equal(t, "modified", attr(t, loc[1].attrs, "type").AsString())
}

func TestToolBefore_EmitsNothing(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindToolBefore, `{"tool":"bash","callID":"c1","args":{}}`)
	assert.Empty(t, h.metrics.calls)
	assert.Empty(t, h.logs.calls)
	assert.Equal(t, 1, h.tr.State().Tools.Len())
}

func TestPermissionReplied(t *testing.T) {
	h := newHarness(t)
	for _, resp := range []string{"once", "always", "reject", "", "bogus"} {
		h.send(t, hostevent.KindPermissionReplied, `{"sessionID":"s1","permissionID":"p","response":"`+resp+`"}`)
	}
	decisions := h.metrics.named(telemetry.MetricToolDecision)
	require.Len(t, decisions, 5)
	var got []string
	for _, d := range decisions {
		got = append(got, attr(t, d.attrs, "decision").AsString())
	}
	assert.Equal(t, []string{"accept", "accept", "reject", "reject", "reject"}, got)
}

// --- toggle & gating ---

func TestToggle_DisablesAndReenables(t *testing.T) {
	h := newHarness(t)
	res := h.send(t, hostevent.KindToggle, `{"argument":"off"}`)
	require.NotNil(t, res)
	assert.False(t, res.Enabled)
	assert.True(t, res.Previous)
	assert.True(t, res.Changed())
	assert.Equal(t, "Telemetry disabled", res.Message)

	h.send(t, hostevent.KindSessionCreated, `{"info":{"id":"s1"}}`)
	h.send(t, hostevent.KindChatMessage, `{"parts":[{"type":"text","text":"x"}]}`)
	assert.Empty(t, h.metrics.calls)
	assert.Len(t, h.logs.calls, 1, "only the toggled event")

	res = h.send(t, hostevent.KindToggle, `{"argument":""}`)
	assert.True(t, res.Enabled)
	h.send(t, hostevent.KindSessionCreated, `{"info":{"id":"s1"}}`)
	assert.Len(t, h.metrics.named(telemetry.MetricSessionCount), 1)
}

func TestToggle_EmitsWhileDisabled(t *testing.T) {
	h := newHarness(t, startDisabled)
	res := h.send(t, hostevent.KindToggle, `{"argument":"off"}`)
	assert.False(t, res.Changed())

	toggled := h.logs.named(EventToggled)
	require.Len(t, toggled, 1)
	assert.False(t, attr(t, toggled[0].attrs, "enabled").AsBool())
}

func TestToggle_UnknownArgument(t *testing.T) {
	h := newHarness(t)
	res := h.send(t, hostevent.KindToggle, `{"argument":"maybe"}`)
	assert.True(t, res.Enabled)
	assert.False(t, res.Changed())
	assert.Contains(t, res.Message, "Unknown argument")
}

func TestHandle_UnknownKindIgnored(t *testing.T) {
	h := newHarness(t)
	assert.Nil(t, h.send(t, "lsp.client.diagnostics", `{"x":1}`))
	assert.Empty(t, h.metrics.calls)
	assert.Empty(t, h.logs.calls)
	assert.False(t, Known("lsp.client.diagnostics"))
	assert.True(t, Known(hostevent.KindToolAfter))
}

func TestHandle_MalformedPayloadDegrades(t *testing.T) {
	h := newHarness(t)
	h.tr.Handle(context.Background(), hostevent.Event{Kind: hostevent.KindToolAfter, Payload: json.RawMessage(`{broken`)})
	results := h.logs.named(EventToolResult)
	require.Len(t, results, 1)
	assert.Equal(t, int64(0), attr(t, results[0].attrs, "duration_ms").AsInt64())
}

// --- cross-cutting ---

func TestSequence_StrictlyIncreasingWithoutGaps(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindSessionCreated, `{"info":{"id":"s1"}}`)
	h.send(t, hostevent.KindChatMessage, `{"sessionID":"s1","parts":[{"type":"text","text":"go"}]}`)
	h.send(t, hostevent.KindToolAfter, `{"tool":"bash","callID":"c1","output":"ok"}`)
	h.send(t, hostevent.KindMessageUpdated, assistantTurn)
	h.send(t, hostevent.KindMessageUpdated, assistantTurn)
	h.send(t, hostevent.KindSessionError, `{"error":{"name":"E"}}`)
	h.send(t, hostevent.KindToggle, `{"argument":"toggle"}`)

	require.Len(t, h.logs.calls, 6)
	for i, c := range h.logs.calls {
		assert.Equal(t, int64(i), attr(t, c.attrs, attrs.KeyEventSequence).AsInt64(), c.name)
	}
}

func TestBaseAttributesOnEveryEmission(t *testing.T) {
	h := newHarness(t)
	h.send(t, hostevent.KindSessionCreated, `{"info":{"id":"s1"}}`)
	h.send(t, hostevent.KindFileEdited, `{"additions":1}`)
	h.send(t, hostevent.KindChatMessage, `{"parts":[]}`)
	for _, m := range h.metrics.calls {
		assert.True(t, hasAttr(m.attrs, attrs.KeyUserID), m.name)
		assert.False(t, hasAttr(m.attrs, attrs.KeyEventSequence), "metrics carry no event attributes")
	}
	for _, l := range h.logs.calls {
		assert.True(t, hasAttr(l.attrs, attrs.KeyUserID), l.name)
		assert.True(t, hasAttr(l.attrs, attrs.KeyEventTimestamp), l.name)
	}
}

func TestMirrored_MetricAttributesKeepTypes(t *testing.T) {
	h := newHarness(t, mirrored)
	h.send(t, hostevent.KindMessageUpdated, assistantTurn)
	for _, l := range h.logs.calls {
		for _, kv := range l.attrs {
			assert.NotEqual(t, attribute.INT64, kv.Value.Type(), "%s.%s", l.name, kv.Key)
			assert.NotEqual(t, attribute.FLOAT64, kv.Value.Type(), "%s.%s", l.name, kv.Key)
		}
	}
	assert.Equal(t, "100", attr(t, h.logs.named(EventAPIRequest)[0].attrs, "input_tokens").AsString())
	assert.Equal(t, "0.0123", attr(t, h.logs.named(EventAPIRequest)[0].attrs, "cost_usd").AsString())
	assert.NotEmpty(t, h.metrics.calls)
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 0, countLines("\n"))
	assert.Equal(t, 1, countLines("one"))
	assert.Equal(t, 2, countLines("one\ntwo\n"))
}
