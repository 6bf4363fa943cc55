package app

import "sync"

// DefaultHistorySize bounds RecentHistory.
const DefaultHistorySize = 20

// History is a bounded ring of raw column rows, most recent last.
// Written by the read loop, read from any goroutine.
type History struct {
	mu   sync.RWMutex
	rows [][]string
	next int
	size int
	full bool
}

// NewHistory creates a history holding at most size rows. Sizes outside
// 1..DefaultHistorySize become DefaultHistorySize.
func NewHistory(size int) *History {
	if size <= 0 || size > DefaultHistorySize {
		size = DefaultHistorySize
	}
	return &History{rows: make([][]string, size), size: size}
}

// Push appends a row, evicting the oldest when full.
func (h *History) Push(row []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows[h.next] = row
	h.next = (h.next + 1) % h.size
	if h.next == 0 {
		h.full = true
	}
}

// Latest returns the most recent row.
func (h *History) Latest() ([]string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.full && h.next == 0 {
		return nil, false
	}
	return h.rows[(h.next-1+h.size)%h.size], true
}

// Len returns the number of stored rows.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return h.size
	}
	return h.next
}

// Rows returns the stored rows oldest first.
func (h *History) Rows() [][]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.full {
		return append([][]string(nil), h.rows[:h.next]...)
	}
	out := make([][]string, 0, h.size)
	out = append(out, h.rows[h.next:]...)
	return append(out, h.rows[:h.next]...)
}
