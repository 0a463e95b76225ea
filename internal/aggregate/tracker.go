// Package aggregate tracks the collective state of all matched transfers.
package aggregate

import (
	"fmt"
	"maps"
	"sync"

	"github.com/meigma/xferwatch/core"
)

// Tracker counts matched and completed transfers and stores completion
// summaries keyed by transfer key. It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	matched   int
	completed int
	seen      map[string]int
	issued    map[string]struct{}
	pending   map[string]struct{}
	results   map[string]string
	summaries map[string]core.Summary
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		seen:      make(map[string]int),
		issued:    make(map[string]struct{}),
		pending:   make(map[string]struct{}),
		results:   make(map[string]string),
		summaries: make(map[string]core.Summary),
	}
}

// Register records a newly matched transfer for url and returns its key.
// The first registration of a URL uses the URL itself; later ones are
// suffixed "#2", "#3" and so on, skipping suffixes already issued, so no
// two transfers ever share a key.
func (t *Tracker) Register(url string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.matched++
	n := t.seen[url]
	for {
		n++
		key := url
		if n > 1 {
			key = fmt.Sprintf("%s#%d", url, n)
		}
		if _, taken := t.issued[key]; taken {
			continue
		}
		t.seen[url] = n
		t.issued[key] = struct{}{}
		t.pending[key] = struct{}{}
		return key
	}
}

// Complete records the completion of the transfer registered under key.
// It reports false, changing nothing, if key is unknown or already complete.
func (t *Tracker) Complete(key string, s core.Summary) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[key]; !ok {
		return false
	}
	delete(t.pending, key)
	t.completed++
	t.results[key] = s.Text
	t.summaries[key] = s
	return true
}

// AllDone reports whether at least one transfer matched and all matched
// transfers completed.
func (t *Tracker) AllDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allDoneLocked()
}

func (t *Tracker) allDoneLocked() bool {
	return t.matched > 0 && t.completed == t.matched
}

// Snapshot returns a copy of the current aggregate state.
func (t *Tracker) Snapshot() core.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return core.Snapshot{
		TotalMatched:   t.matched,
		TotalCompleted: t.completed,
		AllDone:        t.allDoneLocked(),
		Results:        maps.Clone(t.results),
	}
}

// Summary returns the stored summary for key.
func (t *Tracker) Summary(key string) (core.Summary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.summaries[key]
	return s, ok
}

// Pending returns the keys of transfers that have not completed.
func (t *Tracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.pending))
	for k := range t.pending {
		keys = append(keys, k)
	}
	return keys
}
