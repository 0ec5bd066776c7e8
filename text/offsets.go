package text

import "strings"

// CursorToOffset converts a 1-indexed row and 0-indexed byte column into a
// byte offset within the joined lines. Out-of-range positions clamp to the
// nearest valid offset.
func CursorToOffset(lines []string, row, col int) int {
	offset := 0
	for i := 0; i < row-1 && i < len(lines); i++ {
		offset += len(lines[i]) + 1 // +1 for newline
	}
	if row >= 1 && row <= len(lines) {
		offset += min(col, len(lines[row-1]))
	}
	return offset
}

// OffsetToLineCol converts a byte offset into a 1-indexed row and 0-indexed
// byte column. Offsets past the end of text clamp to the final position.
func OffsetToLineCol(text string, offset int) (row, col int) {
	if offset < 0 {
		return 1, 0
	}
	if offset > len(text) {
		offset = len(text)
	}

	row = 1
	col = 0
	for i := 0; i < offset; i++ {
		if text[i] == '\n' {
			row++
			col = 0
		} else {
			col++
		}
	}
	return row, col
}

// LineStartOffset returns the byte offset of the start of the given
// 1-indexed line. Lines past the end of text clamp to len(text).
func LineStartOffset(text string, line int) int {
	if line <= 1 {
		return 0
	}
	offset := 0
	remaining := line - 1
	for remaining > 0 {
		idx := strings.IndexByte(text[offset:], '\n')
		if idx == -1 {
			return len(text)
		}
		offset += idx + 1
		remaining--
	}
	return offset
}

// ApplyRangeEdit replaces the byte range [startIdx, endIdx) of text with
// insert and returns the resulting text along with the 1-indexed first and
// last lines touched by the edit in the new text. Indices are clamped.
func ApplyRangeEdit(text string, startIdx, endIdx int, insert string) (newText string, startLine, endLine int) {
	if startIdx < 0 {
		startIdx = 0
	}
	if endIdx > len(text) {
		endIdx = len(text)
	}
	if startIdx > endIdx {
		startIdx = endIdx
	}

	startLine, _ = OffsetToLineCol(text, startIdx)
	newText = text[:startIdx] + insert + text[endIdx:]

	// Don't count a trailing newline as an extra line
	insertLines := strings.Count(insert, "\n") + 1
	if strings.HasSuffix(insert, "\n") {
		insertLines--
	}
	endLine = startLine + insertLines - 1
	return newText, startLine, endLine
}

// ExtractLines returns the lines of text covering the 1-indexed inclusive
// range [startLine, endLine], clamped to the text bounds.
func ExtractLines(text string, startLine, endLine int) []string {
	lines := strings.Split(text, "\n")
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > endLine {
		return nil
	}
	return lines[startLine-1 : endLine]
}
