// Package cefr models Common European Framework of Reference proficiency
// levels, A1 (lowest) to C2 (highest).
package cefr

import (
	"errors"
	"fmt"
	"strings"
)

// Level is one CEFR token.
type Level string

const (
	A1 Level = "A1"
	A2 Level = "A2"
	B1 Level = "B1"
	B2 Level = "B2"
	C1 Level = "C1"
	C2 Level = "C2"
)

// All is the filter value that matches every level.
const All = "all"

// Levels lists every level in ascending order.
var Levels = []Level{A1, A2, B1, B2, C1, C2}

// ErrInvalidLevel is returned for tokens outside A1..C2.
var ErrInvalidLevel = errors.New("invalid CEFR level")

// Parse validates s, ignoring surrounding whitespace. Case matters: "b1" is
// rejected the same way a model answer of "b1" would be.
func Parse(s string) (Level, error) {
	l := Level(strings.TrimSpace(s))
	if l.Rank() < 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
	return l, nil
}

// Rank is the position of l in Levels, or -1 when l is not a level.
func (l Level) Rank() int {
	for i, candidate := range Levels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Range is an inclusive span of levels. A single level has Start == End.
type Range struct {
	Start Level
	End   Level
}

// ParseRange reads "B1", "A2-B1" or "A2 - B1". Endpoints given in descending
// order are swapped.
func ParseRange(s string) (Range, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Range{}, false
	}
	parts := strings.SplitN(s, "-", 2)
	start, err := Parse(parts[0])
	if err != nil {
		return Range{}, false
	}
	if len(parts) == 1 {
		return Range{Start: start, End: start}, true
	}
	end, err := Parse(parts[1])
	if err != nil {
		return Range{}, false
	}
	if end.Rank() < start.Rank() {
		start, end = end, start
	}
	return Range{Start: start, End: end}, true
}

// Contains reports whether l falls inside r, endpoints included.
func (r Range) Contains(l Level) bool {
	rank := l.Rank()
	return rank >= 0 && rank >= r.Start.Rank() && rank <= r.End.Rank()
}

// InRange reports whether a book graded bookLevel matches the library filter
// filterLevel. "all" matches everything; a single-level book matches only its
// own level; a range matches every level between its endpoints.
func InRange(bookLevel, filterLevel string) bool {
	filterLevel = strings.TrimSpace(filterLevel)
	if filterLevel == All {
		return true
	}
	bookLevel = strings.TrimSpace(bookLevel)
	if !strings.Contains(bookLevel, "-") {
		return bookLevel == filterLevel
	}
	r, ok := ParseRange(bookLevel)
	if !ok {
		return false
	}
	l, err := Parse(filterLevel)
	if err != nil {
		return false
	}
	return r.Contains(l)
}
