package text

import (
	"strings"

	"difftab/types"
)

// ChangeSpans reduces a diff of oldText vs newText to an ordered list of
// non-overlapping replacement spans in old-text byte offsets. Applying the
// spans to oldText reproduces newText exactly.
//
// Spans are computed line-first: whole added or removed line blocks become
// single spans, while a removed block immediately followed by an added block
// is refined with a character-level diff so that small in-line edits produce
// tight spans instead of whole-line replacements.
func ChangeSpans(oldText, newText string) []types.ChangeSpan {
	if oldText == newText {
		return nil
	}

	segments := Diff(oldText, newText)

	var spans []types.ChangeSpan
	oldOffset := 0
	i := 0
	for i < len(segments) {
		seg := segments[i]
		switch seg.Kind {
		case SegmentUnchanged:
			oldOffset += len(seg.Text)
			i++

		case SegmentRemoved:
			if i+1 < len(segments) && segments[i+1].Kind == SegmentAdded &&
				LineSimilarity(seg.Text, segments[i+1].Text) >= SimilarityThreshold {
				// Related blocks: refine with a character diff
				spans = append(spans, refineSpans(seg.Text, segments[i+1].Text, oldOffset)...)
				oldOffset += len(seg.Text)
				i += 2
			} else if i+1 < len(segments) && segments[i+1].Kind == SegmentAdded {
				// Unrelated blocks: one whole-block replacement span
				spans = append(spans, types.ChangeSpan{
					From:     oldOffset,
					To:       oldOffset + len(seg.Text),
					Inserted: segments[i+1].Text,
				})
				oldOffset += len(seg.Text)
				i += 2
			} else {
				spans = append(spans, types.ChangeSpan{
					From: oldOffset,
					To:   oldOffset + len(seg.Text),
				})
				oldOffset += len(seg.Text)
				i++
			}

		case SegmentAdded:
			spans = append(spans, types.ChangeSpan{
				From:     oldOffset,
				To:       oldOffset,
				Inserted: seg.Text,
			})
			i++
		}
	}

	return spans
}

// refineSpans runs a character-level diff over a removed/added block pair and
// emits spans offset into old-text coordinates. Adjacent delete+insert runs
// collapse into a single replacement span.
func refineSpans(removed, added string, baseOffset int) []types.ChangeSpan {
	segments := DiffChars(removed, added)

	var spans []types.ChangeSpan
	pos := baseOffset
	i := 0
	for i < len(segments) {
		seg := segments[i]
		switch seg.Kind {
		case SegmentUnchanged:
			pos += len(seg.Text)
			i++

		case SegmentRemoved:
			span := types.ChangeSpan{From: pos, To: pos + len(seg.Text)}
			if i+1 < len(segments) && segments[i+1].Kind == SegmentAdded {
				span.Inserted = segments[i+1].Text
				i++
			}
			spans = append(spans, span)
			pos = span.To
			i++

		case SegmentAdded:
			spans = append(spans, types.ChangeSpan{
				From:     pos,
				To:       pos,
				Inserted: seg.Text,
			})
			i++
		}
	}

	return spans
}

// ApplySpans applies ordered non-overlapping spans to oldText and returns the
// resulting text. It is the inverse of ChangeSpans:
// ApplySpans(old, ChangeSpans(old, new)) == new.
func ApplySpans(oldText string, spans []types.ChangeSpan) string {
	if len(spans) == 0 {
		return oldText
	}

	var b strings.Builder
	last := 0
	for _, span := range spans {
		from, to := span.From, span.To
		if from < last {
			from = last
		}
		if to < from {
			to = from
		}
		if from > len(oldText) {
			from = len(oldText)
		}
		if to > len(oldText) {
			to = len(oldText)
		}
		b.WriteString(oldText[last:from])
		b.WriteString(span.Inserted)
		last = to
	}
	b.WriteString(oldText[last:])
	return b.String()
}

// CursorAfterSpans returns the byte offset in the new text immediately after
// the last span's inserted content, or -1 when there are no spans. This is
// where the cursor lands after an accept when the prediction carries no
// explicit cursor marker.
func CursorAfterSpans(spans []types.ChangeSpan) int {
	if len(spans) == 0 {
		return -1
	}

	delta := 0
	for _, span := range spans[:len(spans)-1] {
		delta += len(span.Inserted) - (span.To - span.From)
	}
	last := spans[len(spans)-1]
	return last.From + delta + len(last.Inserted)
}

// NarrowAnchor returns the smallest byte range [from, to) of oldText outside
// of which oldText and newText are byte-identical. A pure insertion yields
// from == to. Equal inputs yield the degenerate range at the end of the text.
func NarrowAnchor(oldText, newText string) (int, int) {
	from := commonPrefixLen(oldText, newText)
	suffix := commonSuffixLen(oldText, newText, from)
	return from, len(oldText) - suffix
}

// Replacement returns the slice of newText that replaces [from, to) of
// oldText, assuming the texts agree outside that range:
// oldText[:from] + Replacement(...) + oldText[to:] == newText.
func Replacement(oldText, newText string, from, to int) string {
	newTo := len(newText) - (len(oldText) - to)
	if from < 0 {
		from = 0
	}
	if newTo < from {
		return ""
	}
	if newTo > len(newText) {
		newTo = len(newText)
	}
	if from > len(newText) {
		return ""
	}
	return newText[from:newTo]
}
