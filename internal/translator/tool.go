package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/agentotel/internal/payload"
	"github.com/steveyegge/agentotel/internal/telemetry"
)

// redactedToolName replaces tool names unless tool details are logged.
const redactedToolName = "tool"

var (
	commitPattern      = regexp.MustCompile(`\bgit\s+(?:-\S+\s+)*commit\b`)
	pullRequestPattern = regexp.MustCompile(`\bgh\s+pr\s+create\b`)
)

type toolClass int

const (
	toolOther toolClass = iota
	toolShell
	toolWrite
	toolEdit
)

func classify(tool string) toolClass {
	switch strings.ToLower(tool) {
	case "bash", "shell":
		return toolShell
	case "write":
		return toolWrite
	case "edit", "multiedit", "patch":
		return toolEdit
	default:
		return toolOther
	}
}

// permissionReplied maps the user's answer to a decision.
func (t *Translator) permissionReplied(ctx context.Context, p gjson.Result) {
	decision := "reject"
	switch payload.FirstString(p, "response", "reply") {
	case "once", "always":
		decision = "accept"
	}
	tags := []attribute.KeyValue{
		attribute.String("decision", decision),
		attribute.String("source", "user"),
	}
	if tool := payload.FirstString(p, "tool", "permission.tool", "type"); tool != "" {
		tags = append(tags, attribute.String("tool_name", tool))
	}
	t.add(ctx, payload.OwningSessionID(p), telemetry.MetricToolDecision, 1, tags...)
}

func (t *Translator) toolBefore(p gjson.Result) {
	var args json.RawMessage
	if a := p.Get("args"); a.Exists() {
		args = json.RawMessage(a.Raw)
	}
	t.state.Tools.Begin(payload.CallID(p), payload.ToolName(p), args)
}

func (t *Translator) toolAfter(ctx context.Context, p gjson.Result) {
	callID := payload.CallID(p)
	res, _ := t.state.Tools.End(callID)

	tool := payload.ToolName(p)
	if tool == "" {
		tool = res.Tool
	}
	args := p.Get("args")
	if len(res.Args) > 0 {
		args = gjson.ParseBytes(res.Args)
	}
	output := payload.Text(p.Get("output"))
	sessionID := payload.OwningSessionID(p)

	switch classify(tool) {
	case toolShell:
		cmd := payload.Command(args)
		if commitPattern.MatchString(cmd) {
			t.add(ctx, sessionID, telemetry.MetricCommitCount, 1)
		}
		if pullRequestPattern.MatchString(cmd) {
			t.add(ctx, sessionID, telemetry.MetricPullRequests, 1)
		}
	case toolWrite:
		t.add(ctx, sessionID, telemetry.MetricLinesOfCode, float64(countLines(output)), attribute.String("type", "added"))
	case toolEdit:
		t.add(ctx, sessionID, telemetry.MetricLinesOfCode, float64(countLines(output)), attribute.String("type", "modified"))
	}

	name := redactedToolName
	if t.cfg.LogToolDetails {
		name = tool
	}
	fields := []attribute.KeyValue{
		attribute.String("tool_name", name),
		attribute.Int64("duration_ms", res.ElapsedMs),
		// Heuristic: tools report failure in their output text.
		attribute.Bool("success", !strings.Contains(output, "Error")),
	}
	if callID != "" {
		fields = append(fields, attribute.String("call_id", callID))
	}
	if t.cfg.LogToolDetails {
		fields = append(fields,
			attribute.String("tool_parameters", telemetry.Truncate(compactJSON(args), maxToolParamsChars)),
			attribute.Int64("tool_result_size_bytes", int64(len(output))),
		)
	}
	t.emit(ctx, sessionID, EventToolResult, fields...)
}

// countLines counts newline-separated lines; a trailing newline does not
// open a new line.
func countLines(s string) int {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func compactJSON(r gjson.Result) string {
	if !r.Exists() {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(r.Raw)); err != nil {
		return r.Raw
	}
	return buf.String()
}
