package dedup

import (
	"fmt"
	"testing"
)

func TestSet_BasicDedup(t *testing.T) {
	t.Parallel()
	s := New()

	if s.AlreadyProcessed("msg_001") {
		t.Error("first call should return false (not a duplicate)")
	}
	if !s.AlreadyProcessed("msg_001") {
		t.Error("second call should return true (duplicate)")
	}
	if s.AlreadyProcessed("msg_002") {
		t.Error("different key should return false")
	}
}

func TestSet_EmptyKey(t *testing.T) {
	t.Parallel()
	s := New()

	if s.AlreadyProcessed("") {
		t.Error("empty key should return false")
	}
	if s.AlreadyProcessed("") {
		t.Error("empty key should always return false")
	}
	if s.Size() != 0 {
		t.Errorf("Size() = %d, empty keys must not be tracked", s.Size())
	}
}

func TestSet_Size(t *testing.T) {
	t.Parallel()
	s := New()

	s.AlreadyProcessed("msg_001")
	s.AlreadyProcessed("msg_002")
	s.AlreadyProcessed("msg_001")

	if s.Size() != 2 {
		t.Errorf("Size() = %d, want 2", s.Size())
	}
}

func TestSet_ManyKeys(t *testing.T) {
	t.Parallel()
	s := New()

	for i := 0; i < 100; i++ {
		if s.AlreadyProcessed(fmt.Sprintf("msg_%03d", i)) {
			t.Errorf("first call for msg_%03d should return false", i)
		}
	}
	for i := 0; i < 100; i++ {
		if !s.AlreadyProcessed(fmt.Sprintf("msg_%03d", i)) {
			t.Errorf("second call for msg_%03d should return true", i)
		}
	}
}
