// Package payload extracts logical fields from host event payloads.
//
// Upstream payloads are loosely shaped: the same field may live under
// different keys depending on the event or host version. Each extractor
// below documents the key priority it checks. Missing or mistyped fields
// resolve to zero values; nothing here returns an error.
package payload

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Parse wraps raw JSON for extraction. Invalid JSON yields an empty result.
func Parse(raw []byte) gjson.Result {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return gjson.Result{}
	}
	return gjson.ParseBytes(raw)
}

// FirstString returns the first path holding a non-empty string.
func FirstString(p gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := p.Get(path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// FirstNumber returns the first path holding a number (numeric strings are
// accepted), and whether one was found.
func FirstNumber(p gjson.Result, paths ...string) (float64, bool) {
	for _, path := range paths {
		v := p.Get(path)
		switch v.Type {
		case gjson.Number:
			return v.Num, true
		case gjson.String:
			if n := gjson.Parse(v.Str); n.Type == gjson.Number {
				return n.Num, true
			}
		}
	}
	return 0, false
}

// FirstInt is FirstNumber truncated to int64, zero when absent.
func FirstInt(p gjson.Result, paths ...string) int64 {
	n, _ := FirstNumber(p, paths...)
	return int64(n)
}

// SessionID resolves a session identifier: info.id, then id, then sessionID,
// then info.sessionID.
func SessionID(p gjson.Result) string {
	return FirstString(p, "info.id", "id", "sessionID", "info.sessionID")
}

// OwningSessionID resolves the session that owns a message, part or tool
// call: sessionID, then info.sessionID, then part.sessionID. Unlike SessionID
// it never reads a bare id, which belongs to the message itself.
func OwningSessionID(p gjson.Result) string {
	return FirstString(p, "sessionID", "info.sessionID", "part.sessionID", "sessionId")
}

// SessionTitle reads info.title, then title.
func SessionTitle(p gjson.Result) string {
	return FirstString(p, "info.title", "title")
}

// LineCounts reads added/removed line counts from a file edit payload.
// Added: additions, then linesAdded, then added. Removed: deletions, then
// linesRemoved, then removed.
func LineCounts(p gjson.Result) (added, removed int64) {
	added = FirstInt(p, "additions", "linesAdded", "added")
	removed = FirstInt(p, "deletions", "linesRemoved", "removed")
	return added, removed
}

// DiffTotals sums additions and deletions across the entries of diff.
// ok is false when diff is absent or empty.
func DiffTotals(p gjson.Result) (added, removed int64, ok bool) {
	diff := p.Get("diff")
	if !diff.IsArray() {
		return 0, 0, false
	}
	entries := diff.Array()
	if len(entries) == 0 {
		return 0, 0, false
	}
	for _, e := range entries {
		a, r := LineCounts(e)
		added += a
		removed += r
	}
	return added, removed, true
}

// ErrorInfo describes an upstream error payload.
type ErrorInfo struct {
	Name       string
	Message    string
	StatusCode int64
	HasStatus  bool
	Retryable  bool
	HasRetry   bool
}

// Error reads an error object: name; message from data.message then
// message; statusCode from data.statusCode then statusCode; retryability
// from data.isRetryable then isRetryable. ok is false when e is absent.
func Error(e gjson.Result) (info ErrorInfo, ok bool) {
	if !e.Exists() || e.Type == gjson.Null {
		return ErrorInfo{}, false
	}
	if e.Type == gjson.String {
		return ErrorInfo{Name: "Error", Message: e.Str}, true
	}
	info.Name = FirstString(e, "name", "type")
	info.Message = FirstString(e, "data.message", "message")
	if n, found := FirstNumber(e, "data.statusCode", "statusCode", "status"); found {
		info.StatusCode, info.HasStatus = int64(n), true
	}
	for _, path := range []string{"data.isRetryable", "isRetryable"} {
		if v := e.Get(path); v.IsBool() {
			info.Retryable, info.HasRetry = v.Bool(), true
			break
		}
	}
	return info, true
}

// Tokens holds the four token counters of an assistant turn.
type Tokens struct {
	Input         int64
	Output        int64
	CacheRead     int64
	CacheCreation int64
}

// MessageTokens reads info.tokens: input, output, cache.read and
// cache.write (cacheRead / cacheWrite accepted as flat alternates).
// ok is false when there is no tokens object.
func MessageTokens(info gjson.Result) (Tokens, bool) {
	t := info.Get("tokens")
	if !t.IsObject() {
		return Tokens{}, false
	}
	return Tokens{
		Input:         FirstInt(t, "input"),
		Output:        FirstInt(t, "output"),
		CacheRead:     FirstInt(t, "cache.read", "cacheRead"),
		CacheCreation: FirstInt(t, "cache.write", "cacheWrite", "cacheCreation"),
	}, true
}

// CallID reads callID, then callId, then id.
func CallID(p gjson.Result) string {
	return FirstString(p, "callID", "callId", "id")
}

// ToolName reads tool, then name.
func ToolName(p gjson.Result) string {
	return FirstString(p, "tool", "name")
}

// Command reads the shell command from tool arguments: command, then cmd.
func Command(args gjson.Result) string {
	return FirstString(args, "command", "cmd")
}

// Text returns p as text: strings verbatim, anything else as raw JSON, and
// the empty string when absent.
func Text(p gjson.Result) string {
	switch p.Type {
	case gjson.String:
		return p.Str
	case gjson.Null:
		return ""
	default:
		return p.Raw
	}
}

// PromptText joins the text of every text-typed part with newlines, trims the
// result and strips one layer of surrounding double quotes.
func PromptText(parts gjson.Result) string {
	var texts []string
	for _, part := range parts.Array() {
		if part.Get("type").String() != "text" {
			continue
		}
		if text := part.Get("text"); text.Type == gjson.String {
			texts = append(texts, text.Str)
		}
	}
	s := strings.TrimSpace(strings.Join(texts, "\n"))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s
}
