package text

import "difftab/types"

// MakeSuggestion builds a suggestion from the document text a prediction was
// computed against and the predicted replacement. The anchor covers the whole
// document by default; with partialAnchor it narrows to the smallest byte
// range outside of which the texts agree, so the accept transaction touches
// only the rewritten region.
func MakeSuggestion(oldText string, pred *types.Prediction, partialAnchor bool) *types.Suggestion {
	s := &types.Suggestion{
		OldText:      oldText,
		NewText:      pred.Text,
		AnchorFrom:   0,
		AnchorTo:     len(oldText),
		CursorOffset: pred.CursorOffset,
		Spans:        ChangeSpans(oldText, pred.Text),
	}
	if partialAnchor && len(s.Spans) > 0 {
		s.AnchorFrom, s.AnchorTo = NarrowAnchor(oldText, pred.Text)
	}
	return s
}

// AcceptTransaction builds the document transaction that realizes a
// suggestion: replace the anchored range with the corresponding slice of the
// new text. The cursor lands at the suggestion's explicit cursor offset when
// one was extracted, otherwise immediately after the last change.
func AcceptTransaction(s *types.Suggestion, tag string) *types.Transaction {
	insert := Replacement(s.OldText, s.NewText, s.AnchorFrom, s.AnchorTo)

	cursor := s.CursorOffset
	if cursor < 0 {
		cursor = CursorAfterSpans(s.Spans)
	}
	if cursor < 0 {
		cursor = s.AnchorFrom + len(insert)
	}
	if cursor > len(s.NewText) {
		cursor = len(s.NewText)
	}

	return &types.Transaction{
		From:   s.AnchorFrom,
		To:     s.AnchorTo,
		Insert: insert,
		Cursor: cursor,
		Tag:    tag,
	}
}
