package taskmanager

import (
	"testing"
	"time"
)

func TestNewDefaultsIntervalWhenNonPositive(t *testing.T) {
	m := New(nil, nil, 0)
	if m.interval != 2*time.Second {
		t.Fatalf("expected default 2s polling interval, got %v", m.interval)
	}

	m = New(nil, nil, -time.Second)
	if m.interval != 2*time.Second {
		t.Fatalf("expected negative interval to fall back to 2s, got %v", m.interval)
	}
}

func TestNewKeepsExplicitInterval(t *testing.T) {
	m := New(nil, nil, 5*time.Second)
	if m.interval != 5*time.Second {
		t.Fatalf("expected explicit interval to be kept, got %v", m.interval)
	}
}
