// Package resetcode keeps short-lived password reset codes keyed by email.
package resetcode

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"cambria.dev/dashboard/internal/obs"
)

const (
	// DefaultTTL is how long an issued code stays redeemable.
	DefaultTTL = 15 * time.Minute
	// DefaultMaxAttempts is how many wrong codes burn an entry.
	DefaultMaxAttempts = 5
)

// Entry is the single live code for an email.
type Entry struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Attempts  int       `json:"attempts,omitempty"`
}

func (e Entry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Backend persists entries. Load reports ok=false when no entry exists.
type Backend interface {
	Load(ctx context.Context, email string) (Entry, bool, error)
	Save(ctx context.Context, e Entry) error
	Delete(ctx context.Context, email string) error
}

// atomicRedeemer is implemented by backends that can compare-and-delete in one
// round trip, which holds across processes sharing the backend.
type atomicRedeemer interface {
	Redeem(ctx context.Context, email, code string, now time.Time, maxAttempts int) (userID string, ok bool, err error)
}

// Ledger issues and redeems codes on top of a Backend.
type Ledger struct {
	backend     Backend
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	locks       *keyedMutex
}

// Option configures Ledger.
type Option func(*Ledger)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

func New(backend Backend, opts ...Option) (*Ledger, error) {
	if backend == nil {
		return nil, errors.New("resetcode: backend is required")
	}
	l := &Ledger{backend: backend, ttl: DefaultTTL, maxAttempts: DefaultMaxAttempts, now: time.Now, locks: newKeyedMutex()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store records code for email, replacing any previous entry.
func (l *Ledger) Store(ctx context.Context, email, code, userID string) error {
	k := key(email)
	if k == "" || code == "" {
		return errors.New("resetcode: email and code are required")
	}
	unlock := l.locks.Lock(k)
	defer unlock()
	return l.backend.Save(ctx, Entry{
		Email:     k,
		Code:      code,
		UserID:    userID,
		ExpiresAt: l.now().Add(l.ttl),
	})
}

// Verify reports whether code matches the live entry for email.
// An expired entry is deleted and never matches.
func (l *Ledger) Verify(ctx context.Context, email, code string) (bool, error) {
	k := key(email)
	unlock := l.locks.Lock(k)
	defer unlock()
	e, ok, err := l.live(ctx, k)
	if err != nil || !ok {
		return false, err
	}
	return e.Code == code, nil
}

// Consume deletes the entry for email whether or not it exists.
func (l *Ledger) Consume(ctx context.Context, email string) error {
	k := key(email)
	unlock := l.locks.Lock(k)
	defer unlock()
	return l.backend.Delete(ctx, k)
}

// LookupUserID returns the user the live code was issued for.
func (l *Ledger) LookupUserID(ctx context.Context, email string) (string, bool, error) {
	k := key(email)
	unlock := l.locks.Lock(k)
	defer unlock()
	e, ok, err := l.live(ctx, k)
	if err != nil || !ok {
		return "", false, err
	}
	return e.UserID, true, nil
}

// Redeem verifies code and consumes the entry in one step, returning the owning user id.
// A mismatched code counts as a failed attempt; the entry is deleted once the
// attempts reach the configured maximum.
func (l *Ledger) Redeem(ctx context.Context, email, code string) (string, bool, error) {
	k := key(email)
	if k == "" || code == "" {
		return "", false, nil
	}
	unlock := l.locks.Lock(k)
	defer unlock()
	if r, ok := l.backend.(atomicRedeemer); ok {
		return r.Redeem(ctx, k, code, l.now(), l.maxAttempts)
	}
	e, ok, err := l.live(ctx, k)
	if err != nil || !ok {
		return "", false, err
	}
	if e.Code != code {
		return "", false, l.recordMiss(ctx, e)
	}
	if err := l.backend.Delete(ctx, k); err != nil {
		return "", false, err
	}
	return e.UserID, true, nil
}

// recordMiss bumps the failed-attempt count, dropping the entry at the limit.
func (l *Ledger) recordMiss(ctx context.Context, e Entry) error {
	e.Attempts++
	if e.Attempts >= l.maxAttempts {
		obs.ObserveResetCode("locked")
		obs.Logger().Warn("reset code burned after failed attempts", zap.String("email", e.Email), zap.Int("attempts", e.Attempts))
		return l.backend.Delete(ctx, e.Email)
	}
	return l.backend.Save(ctx, e)
}

// live loads the entry for k, deleting it when expired. Callers hold the key lock.
func (l *Ledger) live(ctx context.Context, k string) (Entry, bool, error) {
	e, ok, err := l.backend.Load(ctx, k)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if e.expired(l.now()) {
		if err := l.backend.Delete(ctx, k); err != nil {
			obs.Logger().Warn("delete expired reset code", zap.String("email", k), zap.Error(err))
		}
		obs.ObserveResetCode("expired")
		return Entry{}, false, nil
	}
	return e, true, nil
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
