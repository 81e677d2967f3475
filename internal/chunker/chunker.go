package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

// Window is one emitted piece of text. Offset counts runes from the start of
// the input.
type Window struct {
	Offset  int
	Content string
}

// Splitter cuts text into fixed-size rune windows. Consecutive windows share
// exactly Overlap runes.
type Splitter struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

func (s *Splitter) Size() int {
	return s.size
}

func (s *Splitter) Overlap() int {
	return s.overlap
}

func (s *Splitter) Split(text string) []Window {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := s.size - s.overlap
	out := make([]Window, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		// the tail is already covered by the previous window
		if start > 0 && end-start <= s.overlap {
			break
		}
		piece := string(runes[start:end])
		if isBlank(piece) {
			continue
		}
		out = append(out, Window{Offset: start, Content: piece})
		if end == len(runes) {
			break
		}
	}
	return out
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
