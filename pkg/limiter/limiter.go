// Package limiter enforces per-user notification limits: a daily cap and a
// minimum spacing between deliveries.
package limiter

import (
	"errors"
	"sync"
	"time"

	"notifier/pkg/config"
)

var (
	// ErrDailyCap is returned when the user already received the daily maximum.
	ErrDailyCap = errors.New("daily notification cap reached")
	// ErrCooldown is returned when the previous delivery was too recent.
	ErrCooldown = errors.New("notification cooldown active")
)

// Limiter tracks delivery limits for every user it has seen.
type Limiter struct {
	users     map[string]*UserLimiter
	now       func() time.Time
	maxPerDay int
	cooldown  time.Duration
	mu        sync.Mutex
}

// UserLimiter is the limit state for one user. Counters reset when the UTC
// date changes.
type UserLimiter struct {
	lastSent  time.Time
	prevSent  time.Time
	day       string
	sentToday int
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter from the notification settings. A MaxPerDay of
// zero disables the daily cap; a zero cooldown disables spacing.
func NewLimiter(cfg config.NotificationConfig, opts ...Option) *Limiter {
	l := &Limiter{
		users:     make(map[string]*UserLimiter),
		now:       time.Now,
		maxPerDay: cfg.MaxPerDay,
		cooldown:  cfg.Cooldown(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) user(userID string, now time.Time) *UserLimiter {
	u, ok := l.users[userID]
	if !ok {
		u = &UserLimiter{}
		l.users[userID] = u
	}
	if day := now.UTC().Format("2006-01-02"); u.day != day {
		u.day = day
		u.sentToday = 0
	}
	return u
}

func (l *Limiter) check(u *UserLimiter, now time.Time) error {
	if l.maxPerDay > 0 && u.sentToday >= l.maxPerDay {
		return ErrDailyCap
	}
	if l.cooldown > 0 && !u.lastSent.IsZero() && now.Sub(u.lastSent) < l.cooldown {
		return ErrCooldown
	}
	return nil
}

// Allow reports whether userID may be notified now without reserving a slot.
func (l *Limiter) Allow(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	return l.check(l.user(userID, now), now)
}

// Reserve records a delivery to userID if the limits allow it.
func (l *Limiter) Reserve(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	u := l.user(userID, now)
	if err := l.check(u, now); err != nil {
		return err
	}
	u.sentToday++
	u.prevSent = u.lastSent
	u.lastSent = now
	return nil
}

// Release hands back the slot taken by the last Reserve for userID, used when
// the delivery it was reserved for did not go out. The cooldown is measured
// from the previous delivery again.
func (l *Limiter) Release(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.user(userID, l.now())
	if u.sentToday > 0 {
		u.sentToday--
	}
	u.lastSent = u.prevSent
	u.prevSent = time.Time{}
}

// NextAllowed returns the earliest time userID could be notified again. The
// zero time means now.
func (l *Limiter) NextAllowed(userID string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	u := l.user(userID, now)

	var next time.Time
	if l.maxPerDay > 0 && u.sentToday >= l.maxPerDay {
		y, m, d := now.UTC().Date()
		next = time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	}
	if l.cooldown > 0 && !u.lastSent.IsZero() {
		if until := u.lastSent.Add(l.cooldown); until.After(now) && until.After(next) {
			next = until
		}
	}
	return next
}

// GetStatus returns how many notifications userID received today.
func (l *Limiter) GetStatus(userID string) (sentToday int, lastSent time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.user(userID, l.now())
	return u.sentToday, u.lastSent
}

// ResetDaily clears every daily counter. Cooldowns are kept.
func (l *Limiter) ResetDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, u := range l.users {
		u.sentToday = 0
	}
}
