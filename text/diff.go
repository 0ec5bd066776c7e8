package text

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// SegmentKind represents the kind of a diff segment
type SegmentKind int

const (
	SegmentUnchanged SegmentKind = iota
	SegmentAdded
	SegmentRemoved
)

// String returns the string representation of SegmentKind
func (k SegmentKind) String() string {
	switch k {
	case SegmentUnchanged:
		return "unchanged"
	case SegmentAdded:
		return "added"
	case SegmentRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Segment is a contiguous run of text that is either common to both inputs
// or present in exactly one of them. A diff is an ordered list of segments:
// concatenating the unchanged+removed segments reproduces the old text, and
// concatenating the unchanged+added segments reproduces the new text.
type Segment struct {
	Kind SegmentKind
	Text string
}

// Diff computes a line-granularity diff between oldText and newText.
// Segment boundaries always fall on line boundaries (except possibly the
// final segment when the text lacks a trailing newline). The result is
// deterministic for identical inputs.
func Diff(oldText, newText string) []Segment {
	if oldText == newText {
		if oldText == "" {
			return nil
		}
		return []Segment{{Kind: SegmentUnchanged, Text: oldText}}
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(chars1, chars2, false)
	lineDiffs := dmp.DiffCharsToLines(diffs, lineArray)

	return toSegments(lineDiffs)
}

// DiffChars computes a character-granularity diff between oldText and
// newText, with semantic cleanup applied so that edits align with word
// and token boundaries where possible.
func DiffChars(oldText, newText string) []Segment {
	if oldText == newText {
		if oldText == "" {
			return nil
		}
		return []Segment{{Kind: SegmentUnchanged, Text: oldText}}
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	return toSegments(diffs)
}

// toSegments converts diffmatchpatch output to segments, dropping empty runs
func toSegments(diffs []diffmatchpatch.Diff) []Segment {
	segments := make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		var kind SegmentKind
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			kind = SegmentUnchanged
		case diffmatchpatch.DiffDelete:
			kind = SegmentRemoved
		case diffmatchpatch.DiffInsert:
			kind = SegmentAdded
		}
		segments = append(segments, Segment{Kind: kind, Text: d.Text})
	}
	return segments
}

// OldText reconstructs the old input from a diff
func OldText(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if s.Kind != SegmentAdded {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// NewText reconstructs the new input from a diff
func NewText(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if s.Kind != SegmentRemoved {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// HasChanges reports whether the diff contains any added or removed segment
func HasChanges(segments []Segment) bool {
	for _, s := range segments {
		if s.Kind != SegmentUnchanged {
			return true
		}
	}
	return false
}

// LineSimilarity computes a similarity score between two lines (0.0 to 1.0)
// using Levenshtein ratio: 1 - (levenshtein_distance / max_length)
// Higher score means more similar. Empty lines have 0 similarity with non-empty lines.
func LineSimilarity(line1, line2 string) float64 {
	if line1 == "" && line2 == "" {
		return 1.0
	}
	if line1 == "" || line2 == "" {
		return 0.0
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(line1, line2, false)
	levenshteinDist := dmp.DiffLevenshtein(diffs)

	maxLen := max(len(line1), len(line2))
	if maxLen == 0 {
		return 0.0
	}

	return 1.0 - float64(levenshteinDist)/float64(maxLen)
}

// FindFirstChangedLine compares old lines with new lines and returns the first line number (1-indexed)
// where they differ. Returns 0 if no differences found.
// The baseLineOffset is added to the result to convert from relative to absolute line numbers.
func FindFirstChangedLine(oldLines, newLines []string, baseLineOffset int) int {
	minLen := min(len(oldLines), len(newLines))

	for i := 0; i < minLen; i++ {
		if oldLines[i] != newLines[i] {
			return i + 1 + baseLineOffset
		}
	}

	// If lengths differ, the first "extra" line is a change
	if len(oldLines) != len(newLines) {
		return minLen + 1 + baseLineOffset
	}

	return 0
}

// FindLastChangedLine returns the last line number (1-indexed, in old
// coordinates) where oldLines and newLines differ, scanning from the end.
// Returns 0 if no differences found.
func FindLastChangedLine(oldLines, newLines []string, baseLineOffset int) int {
	oi, ni := len(oldLines), len(newLines)
	for oi > 0 && ni > 0 && oldLines[oi-1] == newLines[ni-1] {
		oi--
		ni--
	}
	if oi == 0 && ni == 0 {
		return 0
	}
	if oi == 0 {
		// Pure append after the old text
		return len(oldLines) + baseLineOffset
	}
	return oi + baseLineOffset
}

// splitLines splits text by newline and removes trailing empty element if present
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// commonPrefixLen returns the length of the common byte prefix of a and b
func commonPrefixLen(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// commonSuffixLen returns the length of the common byte suffix of a and b,
// bounded so it never overlaps a prefix of length limit.
func commonSuffixLen(a, b string, limit int) int {
	n := min(len(a), len(b)) - limit
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}
