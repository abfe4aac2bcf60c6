// Package timeline holds an immutable, time-sorted view of recorded feed
// messages. Timestamps are fixed-width ISO-8601 UTC, so lexicographic string
// comparison equals chronological ordering and the binary search needs no
// time parsing.
package timeline

import (
	"sort"

	"github.com/snarg/f12mqtt/internal/model"
)

// Timeline is an immutable sorted vector of timeline entries.
type Timeline struct {
	entries []model.Message
}

// New copies and stable-sorts the given entries by timestamp.
func New(entries []model.Message) *Timeline {
	sorted := make([]model.Message, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TS < sorted[j].TS
	})
	return &Timeline{entries: sorted}
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	return len(t.entries)
}

// At returns the entry at index i.
func (t *Timeline) At(i int) model.Message {
	return t.entries[i]
}

// FindIndex returns the index of the first entry with timestamp >= ts. It
// returns Len() when ts is past the end and 0 when before the start (or the
// timeline is empty).
func (t *Timeline) FindIndex(ts string) int {
	return sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].TS >= ts
	})
}

// Range returns entries with indices in [a, b], both inclusive, clamped to
// valid bounds. Returns nil when the clamped range is empty.
func (t *Timeline) Range(a, b int) []model.Message {
	if a < 0 {
		a = 0
	}
	if b >= len(t.entries) {
		b = len(t.entries) - 1
	}
	if a > b {
		return nil
	}
	out := make([]model.Message, b-a+1)
	copy(out, t.entries[a:b+1])
	return out
}

// Start returns the first timestamp, or "" when empty.
func (t *Timeline) Start() string {
	if len(t.entries) == 0 {
		return ""
	}
	return t.entries[0].TS
}

// End returns the last timestamp, or "" when empty.
func (t *Timeline) End() string {
	if len(t.entries) == 0 {
		return ""
	}
	return t.entries[len(t.entries)-1].TS
}
