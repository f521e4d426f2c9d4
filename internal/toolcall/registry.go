// Package toolcall tracks in-flight tool invocations between the host's
// before and after signals.
package toolcall

import (
	"encoding/json"
	"time"
)

// Call is an in-flight invocation.
type Call struct {
	ID        string
	Tool      string
	StartedAt time.Time
	Args      json.RawMessage
}

// Result is returned by End for a matched call.
type Result struct {
	Tool      string
	ElapsedMs int64 // never negative
	Args      json.RawMessage
}

// Registry is not safe for concurrent use.
type Registry struct {
	now     func() time.Time
	pending map[string]Call
}

// NewRegistry returns an empty registry. now may be nil for time.Now.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{now: now, pending: make(map[string]Call)}
}

// Begin records a call start. A duplicate id replaces the earlier record.
func (r *Registry) Begin(callID, tool string, args json.RawMessage) {
	r.pending[callID] = Call{ID: callID, Tool: tool, StartedAt: r.now(), Args: args}
}

// End removes the call and reports its elapsed time. ok is false for calls
// that were never begun; callers report a zero duration in that case.
func (r *Registry) End(callID string) (res Result, ok bool) {
	c, ok := r.pending[callID]
	if !ok {
		return Result{}, false
	}
	delete(r.pending, callID)
	elapsed := r.now().Sub(c.StartedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return Result{Tool: c.Tool, ElapsedMs: elapsed, Args: c.Args}, true
}

// Len returns the number of pending calls.
func (r *Registry) Len() int { return len(r.pending) }
