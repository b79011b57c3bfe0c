package metrics

import (
	"testing"
	"time"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	d := timer.Duration()
	if d < 10*time.Millisecond {
		t.Errorf("expected at least 10ms elapsed, got %v", d)
	}
	if d > time.Second {
		t.Errorf("elapsed time implausibly large: %v", d)
	}
}

func TestTimerObserveDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)

	// Must not panic and must record a positive observation
	timer.ObserveDuration(ReconciliationDuration)
}
