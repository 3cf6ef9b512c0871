package chat

import (
	"strings"
	"sync"
)

// DefaultTranscriptSize is the number of lines a Transcript keeps by default.
const DefaultTranscriptSize = 200

// Transcript keeps displayed lines, most recent first.
type Transcript struct {
	lines []DisplayLine
	limit int
	mu    sync.RWMutex
}

// NewTranscript creates a Transcript holding at most limit lines.
// A non-positive limit selects DefaultTranscriptSize.
func NewTranscript(limit int) *Transcript {
	if limit <= 0 {
		limit = DefaultTranscriptSize
	}
	return &Transcript{limit: limit}
}

// Append puts line in front of the existing lines, dropping the oldest past the limit.
func (t *Transcript) Append(line DisplayLine) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lines = append(t.lines, DisplayLine{})
	copy(t.lines[1:], t.lines)
	t.lines[0] = line
	if len(t.lines) > t.limit {
		t.lines = t.lines[:t.limit]
	}
}

// Lines returns a copy of the lines, most recent first.
func (t *Transcript) Lines() []DisplayLine {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]DisplayLine(nil), t.lines...)
}

// Len returns the number of lines held.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.lines)
}

// String renders one "author: text" line per entry, most recent first.
func (t *Transcript) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	for _, line := range t.lines {
		b.WriteString(line.String())
		b.WriteByte('\n')
	}
	return b.String()
}
