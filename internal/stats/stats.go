// Package stats counts tool invocations.
//
// Counters have at-least-once semantics: every dispatch attempt increments,
// regardless of whether the tool succeeded, and duplicate increments under
// retry are tolerated. The counts feed an approximate usage ranking, not an
// exact audit trail, so storage failures are logged and swallowed rather than
// surfaced to the caller.
package stats

import (
	"context"
	"sort"
	"sync"
)

// Entry is one tool's usage count.
type Entry struct {
	Tool  string `json:"tool_name"`
	Count int64  `json:"call_count"`
}

// Recorder counts tool invocations by name.
//
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Increment adds one to the named tool's counter, creating it on first
	// use. It never fails from the caller's perspective.
	Increment(ctx context.Context, tool string)

	// Snapshot returns all counters sorted by count descending (ties broken
	// by name ascending).
	Snapshot(ctx context.Context) ([]Entry, error)
}

// Memory is an in-process Recorder. Counters live for the process lifetime
// and are never removed.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int64
}

// Compile-time interface check.
var _ Recorder = (*Memory)(nil)

// NewMemory returns an empty in-memory Recorder.
func NewMemory() *Memory {
	return &Memory{counts: make(map[string]int64)}
}

// Increment implements Recorder.
func (m *Memory) Increment(_ context.Context, tool string) {
	m.mu.Lock()
	m.counts[tool]++
	m.mu.Unlock()
}

// Snapshot implements Recorder.
func (m *Memory) Snapshot(context.Context) ([]Entry, error) {
	m.mu.Lock()
	entries := make([]Entry, 0, len(m.counts))
	for tool, count := range m.counts {
		entries = append(entries, Entry{Tool: tool, Count: count})
	}
	m.mu.Unlock()

	sortEntries(entries)
	return entries, nil
}

// sortEntries orders entries by count descending, then name ascending.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Tool < entries[j].Tool
	})
}
