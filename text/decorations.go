package text

import (
	"strings"

	"difftab/types"
)

// DecorationsFor derives the renderable decoration set for a suggestion by
// diffing its old and new text at line granularity. Ghost text is emitted
// per changed line: a line whose new content extends the old content gets an
// appended ghost at the split column, any other modification gets a
// replacing ghost, and lines with no counterpart get inserted or cleared
// ghost lines. One accept indicator is placed at the first changed line.
//
// Decorations are always recomputed from the suggestion as a whole, never
// patched incrementally.
func DecorationsFor(s *types.Suggestion) []types.Decoration {
	if s == nil || !s.HasChanges() {
		return nil
	}

	segments := Diff(s.OldText, s.NewText)

	var decorations []types.Decoration
	oldLine := 1 // 1-indexed, next old line to consume
	i := 0
	for i < len(segments) {
		seg := segments[i]
		lines := splitLines(seg.Text)

		switch seg.Kind {
		case SegmentUnchanged:
			oldLine += len(lines)
			i++

		case SegmentRemoved:
			if i+1 < len(segments) && segments[i+1].Kind == SegmentAdded {
				insLines := splitLines(segments[i+1].Text)
				decorations = append(decorations, modifiedBlockDecorations(lines, insLines, oldLine)...)
				oldLine += len(lines)
				i += 2
			} else {
				for j := range lines {
					decorations = append(decorations, types.Decoration{
						Kind:     types.DecorationGhostText,
						Line:     oldLine + j,
						Replaces: true,
					})
				}
				oldLine += len(lines)
				i++
			}

		case SegmentAdded:
			// Inserted lines anchor below the preceding old line. An
			// insertion before the first line has no preceding line and
			// anchors above line 1 instead.
			anchor := oldLine - 1
			above := false
			if anchor < 1 {
				anchor = 1
				above = true
			}
			for _, line := range lines {
				decorations = append(decorations, types.Decoration{
					Kind:  types.DecorationGhostText,
					Line:  anchor,
					Text:  line,
					Above: above,
				})
			}
			i++
		}
	}

	if len(decorations) == 0 {
		return nil
	}

	indicator := types.Decoration{
		Kind: types.DecorationAcceptIndicator,
		Line: decorations[0].Line,
	}
	return append(decorations, indicator)
}

// modifiedBlockDecorations pairs removed lines with inserted lines
// positionally. A new line that extends its old counterpart produces an
// appended ghost at the split column, anything else replaces the whole line.
func modifiedBlockDecorations(oldLines, newLines []string, startLine int) []types.Decoration {
	var decorations []types.Decoration

	n := max(len(oldLines), len(newLines))
	for j := 0; j < n; j++ {
		switch {
		case j < len(oldLines) && j < len(newLines):
			oldContent, newContent := oldLines[j], newLines[j]
			if oldContent == newContent {
				continue
			}
			if strings.HasPrefix(newContent, oldContent) && oldContent != "" {
				decorations = append(decorations, types.Decoration{
					Kind: types.DecorationGhostText,
					Line: startLine + j,
					Col:  len(oldContent),
					Text: newContent[len(oldContent):],
				})
			} else {
				decorations = append(decorations, types.Decoration{
					Kind:     types.DecorationGhostText,
					Line:     startLine + j,
					Text:     newContent,
					Replaces: true,
				})
			}

		case j < len(oldLines):
			// Old line with no counterpart goes away
			decorations = append(decorations, types.Decoration{
				Kind:     types.DecorationGhostText,
				Line:     startLine + j,
				Replaces: true,
			})

		default:
			// Extra new lines anchor below the last old line of the block
			anchor := startLine + max(0, len(oldLines)-1)
			decorations = append(decorations, types.Decoration{
				Kind: types.DecorationGhostText,
				Line: anchor,
				Text: newLines[j],
			})
		}
	}

	return decorations
}
