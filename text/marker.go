package text

import "strings"

// Sentinel tokens shared with the rewrite prompt format. Predicted text may
// embed CursorMarker to request an explicit post-accept cursor position.
const (
	CursorMarker        = "<|user_cursor_is_here|>"
	EditableRegionStart = "<|editable_region_start|>"
	EditableRegionEnd   = "<|editable_region_end|>"
	StartOfFile         = "<|start_of_file|>"
)

// ExtractCursorMarker strips every occurrence of the cursor marker from text
// and returns the cleaned text along with the byte offset of the first
// marker. The offset is relative to the cleaned text. Returns -1 when no
// marker is present.
func ExtractCursorMarker(text string) (string, int) {
	idx := strings.Index(text, CursorMarker)
	if idx == -1 {
		return text, -1
	}
	return strings.ReplaceAll(text, CursorMarker, ""), idx
}

// InsertCursorMarker places the cursor marker at the given byte offset,
// clamping to the text bounds.
func InsertCursorMarker(text string, offset int) string {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	return text[:offset] + CursorMarker + text[offset:]
}

// StripSentinels removes the editable-region and start-of-file sentinels from
// text. The cursor marker is left alone so it can be extracted separately.
func StripSentinels(text string) string {
	text = strings.ReplaceAll(text, EditableRegionStart, "")
	text = strings.ReplaceAll(text, EditableRegionEnd, "")
	text = strings.ReplaceAll(text, StartOfFile, "")
	return text
}
