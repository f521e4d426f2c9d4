// Package sequence issues per-process event sequence numbers and tracks the
// prompt correlation id attached to log events.
package sequence

import "github.com/google/uuid"

// Tracker is not safe for concurrent use; events are handled serially.
type Tracker struct {
	next     int64
	promptID string
	newID    func() string
}

// New returns a Tracker whose first Next call returns 0.
func New() *Tracker {
	return &Tracker{newID: uuid.NewString}
}

// Next returns the current sequence value and advances the counter.
// Call it exactly once per emitted log event.
func (t *Tracker) Next() int64 {
	n := t.next
	t.next++
	return n
}

// NewPromptID generates a fresh correlation id and makes it current.
func (t *Tracker) NewPromptID() string {
	t.promptID = t.newID()
	return t.promptID
}

// PromptID returns the current correlation id, if a prompt has been seen.
func (t *Tracker) PromptID() (string, bool) {
	return t.promptID, t.promptID != ""
}
