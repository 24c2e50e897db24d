package app

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CooldownStore keeps the time of the most recent admitted alert per user.
type CooldownStore interface {
	// Admit records now for userID unless an entry younger than window exists.
	// With force the entry is overwritten unconditionally. When the admission
	// is rejected, remaining is the wait until the window closes.
	Admit(ctx context.Context, userID string, now time.Time, window time.Duration, force bool) (remaining time.Duration, ok bool, err error)
	// Release drops the entry if it still holds stamp.
	Release(ctx context.Context, userID string, stamp time.Time) error
}

// Admission is the result of CooldownGuard.Admit.
type Admission struct {
	Allowed   bool
	Remaining time.Duration // Set when rejected
	Stamp     time.Time     // Recorded last-alert time when allowed
}

// CooldownGuard prevents a user from firing alerts more often than once per window.
type CooldownGuard struct {
	store  CooldownStore
	window time.Duration
}

func NewCooldownGuard(store CooldownStore, window time.Duration) *CooldownGuard {
	return &CooldownGuard{store: store, window: window}
}

// Window returns the configured cooldown window.
func (g *CooldownGuard) Window() time.Duration {
	return g.window
}

// Admit checks and, on success, records the alert time in one step.
func (g *CooldownGuard) Admit(ctx context.Context, userID string, now time.Time, force bool) (Admission, error) {
	remaining, ok, err := g.store.Admit(ctx, userID, now, g.window, force)
	if err != nil {
		return Admission{}, fmt.Errorf("cooldown check for user %s: %w", userID, err)
	}
	if !ok {
		return Admission{Remaining: remaining}, nil
	}
	return Admission{Allowed: true, Stamp: now}, nil
}

// Release undoes an admission whose alert could not be persisted.
func (g *CooldownGuard) Release(ctx context.Context, userID string, stamp time.Time) error {
	return g.store.Release(ctx, userID, stamp)
}

// MemoryCooldownStore is the single-instance CooldownStore.
type MemoryCooldownStore struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{last: make(map[string]time.Time)}
}

func (s *MemoryCooldownStore) Admit(_ context.Context, userID string, now time.Time, window time.Duration, force bool) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.last[userID]; ok && !force {
		if elapsed := now.Sub(last); elapsed < window {
			return window - elapsed, false, nil
		}
	}
	s.last[userID] = now
	return 0, true, nil
}

func (s *MemoryCooldownStore) Release(_ context.Context, userID string, stamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A newer admission (e.g. a forced one) must survive.
	if last, ok := s.last[userID]; ok && last.Equal(stamp) {
		delete(s.last, userID)
	}
	return nil
}

// Prune removes entries whose window has passed and returns how many were dropped.
func (s *MemoryCooldownStore) Prune(now time.Time, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, last := range s.last {
		if now.Sub(last) >= window {
			delete(s.last, userID)
			removed++
		}
	}
	return removed
}
