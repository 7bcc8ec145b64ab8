package limiter

import (
	"errors"
	"testing"
	"time"

	"notifier/pkg/config"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(maxPerDay, cooldownMin int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	l := NewLimiter(config.NotificationConfig{MaxPerDay: maxPerDay, CooldownMinutes: cooldownMin}, WithClock(clock.Now))
	return l, clock
}

func TestDailyCap(t *testing.T) {
	l, clock := newTestLimiter(2, 0)

	for i := 0; i < 2; i++ {
		if err := l.Reserve("u1"); err != nil {
			t.Fatalf("Reserve %d: unexpected error %v", i, err)
		}
	}
	if err := l.Reserve("u1"); !errors.Is(err, ErrDailyCap) {
		t.Errorf("Expected ErrDailyCap, got %v", err)
	}
	// Other users are independent.
	if err := l.Reserve("u2"); err != nil {
		t.Errorf("Expected u2 to be allowed, got %v", err)
	}

	next := l.NextAllowed("u1")
	if !next.Equal(time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected next allowed at midnight, got %v", next)
	}

	clock.Advance(15 * time.Hour)
	if err := l.Reserve("u1"); err != nil {
		t.Errorf("Expected cap to reset on a new day, got %v", err)
	}
}

func TestCooldown(t *testing.T) {
	l, clock := newTestLimiter(0, 30)

	if err := l.Reserve("u1"); err != nil {
		t.Fatalf("First reserve failed: %v", err)
	}
	clock.Advance(10 * time.Minute)
	if err := l.Allow("u1"); !errors.Is(err, ErrCooldown) {
		t.Errorf("Expected ErrCooldown, got %v", err)
	}
	if next := l.NextAllowed("u1"); !next.Equal(clock.Now().Add(20 * time.Minute)) {
		t.Errorf("Unexpected next allowed time %v", next)
	}

	clock.Advance(20 * time.Minute)
	if err := l.Reserve("u1"); err != nil {
		t.Errorf("Expected reserve after cooldown, got %v", err)
	}
}

func TestAllowDoesNotConsume(t *testing.T) {
	l, _ := newTestLimiter(1, 0)

	for i := 0; i < 3; i++ {
		if err := l.Allow("u1"); err != nil {
			t.Fatalf("Allow %d: %v", i, err)
		}
	}
	if sent, _ := l.GetStatus("u1"); sent != 0 {
		t.Errorf("Allow must not count, got %d", sent)
	}
	if !l.NextAllowed("u1").IsZero() {
		t.Error("Fresh user should be allowed now")
	}
}

func TestReleaseReturnsSlot(t *testing.T) {
	l, clock := newTestLimiter(10, 30)

	if err := l.Reserve("u1"); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	first := clock.Now()
	clock.Advance(time.Hour)
	if err := l.Reserve("u1"); err != nil {
		t.Fatalf("second Reserve: %v", err)
	}

	l.Release("u1")

	sent, last := l.GetStatus("u1")
	if sent != 1 {
		t.Errorf("Expected 1 delivery after release, got %d", sent)
	}
	if !last.Equal(first) {
		t.Errorf("Expected last sent restored to %v, got %v", first, last)
	}
	if err := l.Reserve("u1"); err != nil {
		t.Errorf("Released slot should be reservable again, got %v", err)
	}
}

func TestReleaseWithoutReserve(t *testing.T) {
	l, _ := newTestLimiter(1, 30)

	l.Release("u1")

	if sent, last := l.GetStatus("u1"); sent != 0 || !last.IsZero() {
		t.Errorf("Expected untouched state, got sent=%d last=%v", sent, last)
	}
	if err := l.Reserve("u1"); err != nil {
		t.Errorf("Expected reserve to succeed, got %v", err)
	}
}

func TestResetDaily(t *testing.T) {
	l, _ := newTestLimiter(1, 0)
	_ = l.Reserve("u1")
	if err := l.Reserve("u1"); !errors.Is(err, ErrDailyCap) {
		t.Fatalf("Expected cap, got %v", err)
	}

	l.ResetDaily()

	if err := l.Reserve("u1"); err != nil {
		t.Errorf("Expected reserve after reset, got %v", err)
	}
}

func TestUnlimited(t *testing.T) {
	l, _ := newTestLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if err := l.Reserve("u1"); err != nil {
			t.Fatalf("Reserve %d: %v", i, err)
		}
	}
	if sent, last := l.GetStatus("u1"); sent != 100 || last.IsZero() {
		t.Errorf("Unexpected status sent=%d last=%v", sent, last)
	}
}
