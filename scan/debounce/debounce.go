// Package debounce suppresses duplicate and overlapping code events. The decode
// loop re-reports the same physical label many times per second while it stays
// in frame; without this filter a single scan would open multiple inspections.
package debounce

import (
	"sync"
	"time"

	"returnscan/scan/source"
)

// DefaultQuietWindow is the minimum gap between two accepted camera decodes.
const DefaultQuietWindow = 2 * time.Second

// Filter drops events arriving within the quiet window of the previously
// accepted event, and any event arriving while a prior one is still being
// resolved. All state is instance-owned so concurrent sessions never interfere.
type Filter struct {
	quiet time.Duration
	now   func() time.Time

	mu           sync.Mutex
	lastAccepted time.Time
	busy         bool
}

func New(quiet time.Duration) *Filter {
	if quiet <= 0 {
		quiet = DefaultQuietWindow
	}
	return &Filter{quiet: quiet, now: time.Now}
}

// Accept decides whether ev may proceed. An accepted event marks the filter
// busy; the caller must Release once resolution of that event has finished.
// Manual entries bypass the quiet window (a deliberate human action) but still
// respect the busy flag.
func (f *Filter) Accept(ev source.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return false
	}
	at := ev.At
	if at.IsZero() {
		at = f.now()
	}
	if !ev.Manual && !f.lastAccepted.IsZero() && at.Sub(f.lastAccepted) < f.quiet {
		return false
	}
	f.lastAccepted = at
	f.busy = true
	return true
}

// Release clears the busy flag after the accepted event has been fully
// resolved (notice shown, or inspection closed).
func (f *Filter) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
}

// Busy reports whether an accepted event is still being resolved.
func (f *Filter) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}
