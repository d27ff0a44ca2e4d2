// Package ledger tracks per-URL crawl progress across batch runs. A Ledger is
// the in-memory mapping; FileStore loads and atomically rewrites it as CSV.
package ledger

import (
	"fmt"
	"strings"
	"sync"
)

// Status is the crawl state recorded for one start URL.
type Status string

// Recorded statuses.
const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ParseStatus accepts a status name in any case.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusCompleted, StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown status %q", raw)
	}
}

// Entry is the progress of one start URL.
type Entry struct {
	URL      string `json:"url"`
	Status   Status `json:"status"`
	LastPage int    `json:"last_page"`
}

// ResumePage is the first page the next attempt should request.
func (e Entry) ResumePage() int {
	if e.LastPage < 0 {
		return 1
	}
	return e.LastPage + 1
}

// Ledger is an insertion-ordered url-keyed set of entries. It is safe for
// concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Entry
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]Entry)}
}

// Get returns the entry for url.
func (l *Ledger) Get(url string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[url]
	return e, ok
}

// Put inserts or replaces the entry for e.URL. A replaced entry keeps its
// original position.
func (l *Ledger) Put(e Entry) {
	if e.LastPage < 0 {
		e.LastPage = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[e.URL]; !ok {
		l.order = append(l.order, e.URL)
	}
	l.entries[e.URL] = e
}

// Entries returns a copy of every entry in first-seen order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.order))
	for _, url := range l.order {
		out = append(out, l.entries[url])
	}
	return out
}

// Len reports the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Counts tallies entries per status.
func (l *Ledger) Counts() map[Status]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := map[Status]int{
		StatusPending:   0,
		StatusCompleted: 0,
		StatusFailed:    0,
	}
	for _, e := range l.entries {
		out[e.Status]++
	}
	return out
}
