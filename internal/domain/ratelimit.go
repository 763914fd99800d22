package domain

import "time"

// RateLimitWindow is a per-identity fixed-window usage counter. It is created
// lazily on an identity's first submission and expires implicitly: the next
// read after WindowStart+duration resets it.
type RateLimitWindow struct {
	IdentityHash string
	Count        int
	WindowStart  time.Time
}

// WindowDecision is the outcome of one check-and-consume evaluation.
type WindowDecision struct {
	Allowed   bool
	Remaining int
	// Count and WindowStart are the values to persist when Allowed.
	Count       int
	WindowStart time.Time
}

// DecideWindow evaluates the fixed-window algorithm for one request. A nil
// window means the identity has no row yet. The decision is pure; persisting
// it atomically is the store's job.
func DecideWindow(win *RateLimitWindow, now time.Time, limit int, duration time.Duration) WindowDecision {
	if win == nil || now.Sub(win.WindowStart) > duration {
		return WindowDecision{Allowed: true, Remaining: limit - 1, Count: 1, WindowStart: now}
	}
	if win.Count >= limit {
		return WindowDecision{Allowed: false, Remaining: 0, Count: win.Count, WindowStart: win.WindowStart}
	}
	next := win.Count + 1
	return WindowDecision{Allowed: true, Remaining: limit - next, Count: next, WindowStart: win.WindowStart}
}
