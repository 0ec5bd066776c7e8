package provider

import (
	"testing"

	"difftab/assert"
	"difftab/client/openai"
	"difftab/types"
)

func TestSplitAtSelection(t *testing.T) {
	tests := []struct {
		name       string
		document   string
		from, to   int
		wantBefore string
		wantAfter  string
	}{
		{
			name:       "collapsed selection",
			document:   "hello world",
			from:       5,
			to:         5,
			wantBefore: "hello",
			wantAfter:  " world",
		},
		{
			name:       "range selection excluded",
			document:   "abc SELECTED def",
			from:       4,
			to:         12,
			wantBefore: "abc ",
			wantAfter:  " def",
		},
		{
			name:       "negative from clamped",
			document:   "abc",
			from:       -1,
			to:         0,
			wantBefore: "",
			wantAfter:  "abc",
		},
		{
			name:       "to past end clamped",
			document:   "abc",
			from:       1,
			to:         99,
			wantBefore: "a",
			wantAfter:  "",
		},
		{
			name:       "inverted range collapses",
			document:   "abcdef",
			from:       4,
			to:         2,
			wantBefore: "ab",
			wantAfter:  "cdef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, after := SplitAtSelection(&types.PredictRequest{
				Document:      tt.document,
				SelectionFrom: tt.from,
				SelectionTo:   tt.to,
			})
			assert.Equal(t, tt.wantBefore, before, "before")
			assert.Equal(t, tt.wantAfter, after, "after")
		})
	}
}

func TestTrimContext_NoBudget(t *testing.T) {
	p := testProvider(nil)
	ctx := &Context{Request: request("line 1\nline 2\n", 7)}

	err := TrimContext()(p, ctx)

	assert.NoError(t, err, "trim")
	assert.Equal(t, "line 1\n", ctx.Before, "before half")
	assert.Equal(t, "line 2\n", ctx.After, "after half")
	assert.Equal(t, ctx.Before, ctx.Prefix, "prefix untouched without a budget")
	assert.Equal(t, ctx.After, ctx.Suffix, "suffix untouched without a budget")
	assert.Equal(t, 0, ctx.MaxLines, "no output cap")
}

func TestTrimContext_TrimsAndCapsOutput(t *testing.T) {
	p := testProvider(nil)
	p.Config.MaxContextTokens = 4
	document := "aaaa\nbbbb\ncccc\ndddd\n"
	ctx := &Context{Request: request(document, len(document))}

	err := TrimContext()(p, ctx)

	assert.NoError(t, err, "trim")
	assert.Equal(t, document, ctx.Before, "before keeps the full half")
	assert.Equal(t, "dddd\n", ctx.Prefix, "prefix trimmed to budget at a line boundary")
	assert.Equal(t, "", ctx.Suffix, "suffix empty at end of document")
	assert.Equal(t, 2, ctx.MaxLines, "output capped to window height")
}

func TestRejectEmpty(t *testing.T) {
	p := testProvider(nil)

	ctx := &Context{Result: &openai.StreamResult{Text: " \n\t"}}
	pred, done := RejectEmpty()(p, ctx)
	assert.True(t, done, "whitespace-only rejected")
	assert.Equal(t, "", pred.Text, "declined prediction")

	ctx = &Context{Result: &openai.StreamResult{Text: "text"}}
	_, done = RejectEmpty()(p, ctx)
	assert.False(t, done, "real content passes")
}

func TestRejectTruncated(t *testing.T) {
	p := testProvider(nil)

	ctx := &Context{Result: &openai.StreamResult{Text: "x", FinishReason: "length"}}
	_, done := RejectTruncated()(p, ctx)
	assert.True(t, done, "length finish rejected")

	ctx = &Context{Result: &openai.StreamResult{Text: "x", FinishReason: "stop", StoppedEarly: true}}
	_, done = RejectTruncated()(p, ctx)
	assert.True(t, done, "early stream stop rejected")

	ctx = &Context{Result: &openai.StreamResult{Text: "x", FinishReason: "stop"}}
	_, done = RejectTruncated()(p, ctx)
	assert.False(t, done, "complete result passes")
}

func TestDropTailIfTruncated_CompletePasses(t *testing.T) {
	p := testProvider(nil)
	ctx := &Context{Result: &openai.StreamResult{Text: "line 1\npartial", FinishReason: "stop"}}

	_, done := DropTailIfTruncated()(p, ctx)

	assert.False(t, done, "complete result passes")
	assert.Equal(t, "line 1\npartial", ctx.Result.Text, "text untouched")
}

func TestDropTailIfTruncated_DropsPartialLine(t *testing.T) {
	p := testProvider(nil)
	ctx := &Context{Result: &openai.StreamResult{Text: "line 1\nline 2\npart", FinishReason: "length"}}

	_, done := DropTailIfTruncated()(p, ctx)

	assert.False(t, done, "trimmed result passes on")
	assert.Equal(t, "line 1\nline 2", ctx.Result.Text, "partial last line dropped")
}

func TestDropTailIfTruncated_SingleLineRejected(t *testing.T) {
	p := testProvider(nil)
	ctx := &Context{Result: &openai.StreamResult{Text: "partial", FinishReason: "length"}}

	pred, done := DropTailIfTruncated()(p, ctx)

	assert.True(t, done, "nothing whole remains")
	assert.Equal(t, "", pred.Text, "declined prediction")
}

func TestDropTailIfTruncated_EmptyAfterDropRejected(t *testing.T) {
	p := testProvider(nil)
	ctx := &Context{Result: &openai.StreamResult{Text: "\npartial", FinishReason: "length"}}

	pred, done := DropTailIfTruncated()(p, ctx)

	assert.True(t, done, "nothing whole remains after the cut")
	assert.Equal(t, "", pred.Text, "declined prediction")
}

func TestIsNoOpRewrite(t *testing.T) {
	assert.True(t, IsNoOpRewrite("abc", "abc"), "identical text")
	assert.True(t, IsNoOpRewrite("abc\n", "abc"), "trailing newline only")
	assert.True(t, IsNoOpRewrite("abc  \t", "abc\n\n"), "trailing whitespace only")
	assert.False(t, IsNoOpRewrite("abd", "abc"), "real change")
	assert.False(t, IsNoOpRewrite(" abc", "abc"), "leading whitespace is a change")
}
