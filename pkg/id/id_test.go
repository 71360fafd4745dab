package id

import (
	"testing"
	"time"
)

func withClock(t *testing.T, fn func() int64) {
	t.Helper()
	NowMs = fn
	t.Cleanup(func() { NowMs = func() int64 { return time.Now().UnixMilli() } })
}

func TestOrderingMonotonic(t *testing.T) {
	g := NewGenerator()
	withClock(t, func() int64 { return 1000 })

	a := g.Next()
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a<b")
	}
	if a.Millis() != 1000 {
		t.Fatalf("millis = %d, want 1000", a.Millis())
	}
}

func TestClockRegressionGuard(t *testing.T) {
	g := NewGenerator()
	now := int64(1000)
	withClock(t, func() int64 { return now })

	a := g.Next()
	now = 900
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected b>a despite clock regression")
	}
}

func TestSeedContinuesAfterPersistedKey(t *testing.T) {
	withClock(t, func() int64 { return 500 })
	persisted := makeID(2000, 7)

	g := NewGenerator()
	g.Seed(persisted)
	next := g.Next()
	if persisted.Compare(next) >= 0 {
		t.Fatalf("expected id after seed to sort after %s, got %s", persisted, next)
	}

	g.Seed(makeID(10, 0))
	if again := g.Next(); next.Compare(again) >= 0 {
		t.Fatalf("older seed must not rewind the generator")
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := makeID(123456, 42)
	got, err := Parse(orig.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != orig {
		t.Fatalf("got %s want %s", got, orig)
	}
	if _, err := Parse("abc"); err == nil {
		t.Fatalf("expected error for short input")
	}
	if _, err := FromBytes([]byte{1, 2}); err == nil {
		t.Fatalf("expected error for short slice")
	}
}

func TestSequenceOverflowWaitsNextMs(t *testing.T) {
	g := NewGenerator()
	withClock(t, func() int64 { return 2000 })

	g.lastMs = 2000
	g.sequence = ^uint64(0) - 1
	_ = g.Next()

	done := make(chan struct{})
	go func() {
		_ = g.Next()
		close(done)
	}()
	time.AfterFunc(10*time.Millisecond, func() { NowMs = func() int64 { return 2001 } })

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for overflow handling")
	}
}
