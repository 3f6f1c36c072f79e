package pipeline

import "strings"

// Span is one produced segment: an exact slice of the source text together
// with its character offsets. Offsets grow monotonically with position;
// consecutive spans share at most overlap characters.
type Span struct {
	Content   string
	StartChar int
	EndChar   int
}

// Segmenter splits extracted text into overlapping spans close to a target
// size. Boundaries are chosen on a separator priority list: paragraph
// break, line break, then word break, falling back to a hard character cut when
// no separator is in range.
type Segmenter struct {
	size    int
	overlap int
}

// separators in priority order; the empty string means "cut anywhere".
var separators = []string{"\n\n", "\n", " "}

// NewSegmenter creates a segmenter with the given target size and overlap.
// Overlap is clamped below half the target size so every span makes forward
// progress.
func NewSegmenter(size, overlap int) *Segmenter {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size/2 {
		overlap = size / 4
	}
	return &Segmenter{size: size, overlap: overlap}
}

// Segment splits text into spans. Offsets are tracked with a forward-moving
// cursor, never by re-searching the produced chunk in the source, so a chunk
// whose text also occurs earlier in the document still gets its true offsets.
func (s *Segmenter) Segment(text string) []Span {
	if len(text) == 0 {
		return nil
	}

	var spans []Span
	start := 0
	for start < len(text) {
		end := start + s.size
		if end >= len(text) {
			end = len(text)
		} else {
			end = s.breakpoint(text, start, end)
		}

		spans = append(spans, Span{
			Content:   text[start:end],
			StartChar: start,
			EndChar:   end,
		})

		if end == len(text) {
			break
		}
		next := end - s.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return spans
}

// breakpoint moves end back to just after the highest-priority separator
// found in the second half of the window, keeping the span coherent near a
// natural boundary. Returns the original end if no separator is in range.
func (s *Segmenter) breakpoint(text string, start, end int) int {
	minEnd := start + s.size/2
	window := text[minEnd:end]
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			return minEnd + i + len(sep)
		}
	}
	return end
}
