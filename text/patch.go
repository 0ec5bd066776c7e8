package text

import (
	"fmt"
	"strings"

	"difftab/types"
)

// contextLines is the number of unchanged lines captured on each side of a
// patch's changed block.
const contextLines = 2

// ExtractPatch computes a compact description of the edit that transformed
// oldText into newText. changeFrom is the byte offset in oldText where the
// edit began and bounds the changed block when leading lines are ambiguous
// (inserting a line identical to its neighbor attributes the change to the
// edit position, not past it).
//
// Returns nil when the texts are identical.
func ExtractPatch(oldText, newText string, changeFrom int) *types.Patch {
	if oldText == newText {
		return nil
	}

	oldLines := strings.Split(oldText, "\n")
	newLines := strings.Split(newText, "\n")

	// Equal leading lines, capped at the line containing the edit position
	changeLine := lineIndexAt(oldText, changeFrom)
	prefix := 0
	for prefix < len(oldLines) && prefix < len(newLines) && oldLines[prefix] == newLines[prefix] {
		if prefix >= changeLine {
			break
		}
		prefix++
	}

	// Equal trailing lines, never overlapping the prefix
	suffix := 0
	for suffix < len(oldLines)-prefix && suffix < len(newLines)-prefix &&
		oldLines[len(oldLines)-1-suffix] == newLines[len(newLines)-1-suffix] {
		suffix++
	}

	oldBlock := oldLines[prefix : len(oldLines)-suffix]
	newBlock := newLines[prefix : len(newLines)-suffix]
	if len(oldBlock) == 0 && len(newBlock) == 0 {
		return nil
	}

	patch := &types.Patch{
		Line:     prefix + 1,
		Original: strings.Join(oldBlock, "\n"),
		Modified: strings.Join(newBlock, "\n"),
	}

	beforeStart := max(0, prefix-contextLines)
	if beforeStart < prefix {
		patch.ContextBefore = append(patch.ContextBefore, oldLines[beforeStart:prefix]...)
	}

	afterStart := len(oldLines) - suffix
	afterEnd := min(len(oldLines), afterStart+contextLines)
	if afterStart < afterEnd {
		patch.ContextAfter = append(patch.ContextAfter, oldLines[afterStart:afterEnd]...)
	}

	patch.Rendered = renderPatch(patch, beforeStart+1, len(oldBlock), len(newBlock))
	return patch
}

// renderPatch formats a patch as a unified diff hunk:
//
//	@@ -1,3 +1,3 @@
//	 context
//	-old line
//	+new line
//	 context
func renderPatch(patch *types.Patch, hunkStart, oldCount, newCount int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n",
		hunkStart, len(patch.ContextBefore)+oldCount+len(patch.ContextAfter),
		hunkStart, len(patch.ContextBefore)+newCount+len(patch.ContextAfter))

	for _, line := range patch.ContextBefore {
		b.WriteString(" ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	if oldCount > 0 {
		for _, line := range strings.Split(patch.Original, "\n") {
			b.WriteString("-")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if newCount > 0 {
		for _, line := range strings.Split(patch.Modified, "\n") {
			b.WriteString("+")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	for _, line := range patch.ContextAfter {
		b.WriteString(" ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// lineIndexAt returns the 0-indexed line containing the given byte offset
func lineIndexAt(text string, offset int) int {
	if offset <= 0 {
		return 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	return strings.Count(text[:offset], "\n")
}
