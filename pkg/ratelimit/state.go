// Package ratelimit tracks the upstream's advertised request budget and gates
// outbound calls before they would be rejected.
//
// It reads the X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset
// and Retry-After headers. State is kept in-process and, when a durable
// cache store is configured, shared through it so that separate processes on
// one host observe the same budget.
package ratelimit

import (
	"time"
)

// StoreKey is the durable key holding the shared state.
const StoreKey = "ratelimit:upstream"

// Thresholds for rate limit decisions.
const (
	// RemainingCritical blocks requests when fewer calls than this remain.
	RemainingCritical = 1

	// RemainingWarning throttles requests when fewer calls than this remain.
	RemainingWarning = 5

	// RemainingHealthy indicates normal operation at or above this budget.
	RemainingHealthy = 20
)

// State is the upstream request budget as last advertised.
type State struct {
	// Limit is the window size from X-RateLimit-Limit (0 if unknown).
	Limit int `json:"limit"`

	// Remaining is the number of calls left in the window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was observed.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// defaultState is assumed until the upstream advertises a budget.
func defaultState(now time.Time) *State {
	return &State{
		Remaining:  100,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state is older than maxAge at now.
func (s *State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// IsExpired returns true once the advertised window has reset; the budget no
// longer applies.
func (s *State) IsExpired(now time.Time) bool {
	return !now.Before(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *State) NeedsCriticalBlock() bool {
	return s.Remaining < RemainingCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < RemainingWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the time until the window resets at now, or 0.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth updates IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingHealthy
}
