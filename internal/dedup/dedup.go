// Package dedup tracks processed unit-of-work identifiers so a redelivered
// signal does not emit its telemetry twice.
package dedup

// Set remembers every key it has seen for the process lifetime. Assistant
// turns are few per session so the map is left unbounded.
//
// Not safe for concurrent use; the translator handles events serially.
type Set struct {
	processed map[string]struct{}
}

// New creates an empty Set.
func New() *Set {
	return &Set{processed: make(map[string]struct{})}
}

// AlreadyProcessed returns true if key has been seen before.
// If not seen, marks it as processed and returns false.
func (s *Set) AlreadyProcessed(key string) bool {
	if key == "" {
		return false // empty keys can't be deduped; allow processing
	}
	if _, ok := s.processed[key]; ok {
		return true
	}
	s.processed[key] = struct{}{}
	return false
}

// Size returns the number of tracked keys.
func (s *Set) Size() int { return len(s.processed) }
