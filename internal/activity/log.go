// SPDX-License-Identifier: MIT

// Package activity keeps a small in-memory trail of flow events for display.
package activity

import (
	"sync"
	"time"
)

// maxEntries caps the trail at 10 retained entries plus the current one.
const maxEntries = 11

// Entry is a single timestamped log line.
type Entry struct {
	Time time.Time
	Text string
}

// String renders the entry the way the demo UI displays it.
func (e Entry) String() string {
	return "[" + e.Time.Format("15:04:05") + "] " + e.Text
}

// Log is an append-only, capped, newest-first event ring.
// The zero value is not usable; call New.
type Log struct {
	mu      sync.Mutex
	now     func() time.Time
	entries []Entry
}

// New returns an empty log.
func New() *Log {
	return &Log{now: time.Now}
}

// Append prepends a new entry, dropping the oldest beyond the cap.
func (l *Log) Append(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]Entry, 0, maxEntries)
	next = append(next, Entry{Time: l.now(), Text: text})
	if len(l.entries) > maxEntries-1 {
		next = append(next, l.entries[:maxEntries-1]...)
	} else {
		next = append(next, l.entries...)
	}
	l.entries = next
}

// Entries returns a newest-first copy of the current entries.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
