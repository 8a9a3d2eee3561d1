package health

import (
	"errors"
	"testing"
	"time"
)

func TestLoopMonitorNeverTickedIsUnhealthy(t *testing.T) {
	var m LoopMonitor
	if ok, _, _ := m.Healthy(time.Now(), time.Second); ok {
		t.Fatal("expected never-ticked monitor to be unhealthy")
	}
}

func TestLoopMonitorHealthyWithinMaxAge(t *testing.T) {
	var m LoopMonitor
	m.Tick()

	ok, age, _ := m.Healthy(time.Now(), time.Second)
	if !ok {
		t.Fatalf("expected fresh tick to be healthy, age %s", age)
	}

	ok, age, _ = m.Healthy(time.Now().Add(time.Minute), time.Second)
	if ok {
		t.Fatalf("expected stale tick to be unhealthy, age %s", age)
	}
	if age < 59*time.Second {
		t.Fatalf("expected age near a minute, got %s", age)
	}
}

func TestLoopMonitorReportsLastError(t *testing.T) {
	var m LoopMonitor
	m.Tick()
	m.SetError(nil)

	if _, _, lastErr := m.Healthy(time.Now(), time.Second); lastErr != "" {
		t.Fatalf("expected no error recorded, got %q", lastErr)
	}

	m.SetError(errors.New("publish failed"))
	if _, _, lastErr := m.Healthy(time.Now(), time.Second); lastErr != "publish failed" {
		t.Fatalf("expected last error to surface, got %q", lastErr)
	}
}
