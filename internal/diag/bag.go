package diag

import (
	"cmp"
	"slices"
	"sync"
)

// Bag collects diagnostics up to a limit. It is safe for concurrent use,
// so worker goroutines can report into one bag.
type Bag struct {
	mu      sync.Mutex
	items   []Diagnostic
	max     int
	dropped int
}

// NewBag creates a bag holding at most max diagnostics; max <= 0 means no limit.
func NewBag(max int) *Bag {
	return &Bag{max: max}
}

// Add stores d and reports whether it fit under the limit.
func (b *Bag) Add(d Diagnostic) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && len(b.items) >= b.max {
		b.dropped++
		return false
	}
	b.items = append(b.items, d)
	return true
}

// Report implements Reporter.
func (b *Bag) Report(d Diagnostic) { b.Add(d) }

// HasErrors reports whether any diagnostic is an error.
func (b *Bag) HasErrors() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.ContainsFunc(b.items, func(d Diagnostic) bool { return d.Severity >= SevError })
}

// Len returns the number of stored diagnostics.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dropped returns how many diagnostics the limit turned away.
func (b *Bag) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Items returns a sorted copy: by unit, then severity (errors first), then code.
func (b *Bag) Items() []Diagnostic {
	b.mu.Lock()
	out := slices.Clone(b.items)
	b.mu.Unlock()
	slices.SortStableFunc(out, func(x, y Diagnostic) int {
		if c := cmp.Compare(x.Unit, y.Unit); c != 0 {
			return c
		}
		if c := cmp.Compare(y.Severity, x.Severity); c != 0 {
			return c
		}
		return cmp.Compare(x.Code, y.Code)
	})
	return out
}
