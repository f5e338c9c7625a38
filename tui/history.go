// Package tui provides a Bubble Tea terminal UI for querying a response
// rules system.
package tui

import "strings"

// History keeps the most recent input lines with cursor-based navigation.
type History struct {
	lines  []string
	max    int
	cursor int // -1 = not navigating, 0..len-1 = position in lines
}

// NewHistory creates a history holding at most max lines.
func NewHistory(max int) *History {
	return &History{
		lines:  make([]string, 0, max),
		max:    max,
		cursor: -1,
	}
}

// Push records a line. Blank lines and consecutive duplicates are skipped.
func (h *History) Push(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if n := len(h.lines); n > 0 && h.lines[n-1] == line {
		return
	}
	h.lines = append(h.lines, line)
	if len(h.lines) > h.max {
		h.lines = h.lines[len(h.lines)-h.max:]
	}
}

// Lines returns the recorded lines, oldest first.
func (h *History) Lines() []string {
	return append([]string(nil), h.lines...)
}

// Prev moves to the previous (older) line and stops at the oldest.
func (h *History) Prev() (string, bool) {
	if len(h.lines) == 0 {
		return "", false
	}
	switch {
	case h.cursor == -1:
		h.cursor = len(h.lines) - 1
	case h.cursor > 0:
		h.cursor--
	}
	return h.lines[h.cursor], true
}

// Next moves to the next (newer) line. Moving past the newest returns
// false and ends navigation.
func (h *History) Next() (string, bool) {
	if h.cursor == -1 {
		return "", false
	}
	h.cursor++
	if h.cursor >= len(h.lines) {
		h.cursor = -1
		return "", false
	}
	return h.lines[h.cursor], true
}

// ResetCursor ends navigation.
func (h *History) ResetCursor() {
	h.cursor = -1
}
