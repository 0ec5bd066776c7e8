package provider

import (
	"errors"
	"strings"

	"difftab/client/openai"
	"difftab/logger"
	"difftab/types"
	"difftab/utils"
)

// Preprocessor shapes the context before prompt building.
// Return ErrSkipPrediction to decline without error, or another error to fail.
type Preprocessor func(p *Provider, ctx *Context) error

// PromptBuilder builds the backend request from the context
type PromptBuilder func(p *Provider, ctx *Context) *openai.CompletionRequest

// Postprocessor processes the raw completion result.
// Returns (prediction, done) - if done is true, the prediction is returned
// immediately.
type Postprocessor func(p *Provider, ctx *Context) (*types.Prediction, bool)

// ErrSkipPrediction is a sentinel error that preprocessors return to decline
// a prediction without treating it as an error.
var ErrSkipPrediction = errors.New("skip prediction")

// SplitAtSelection returns the document halves before and after the selected
// range. With a collapsed selection the halves abut at the cursor.
func SplitAtSelection(req *types.PredictRequest) (before, after string) {
	doc := req.Document
	from, to := req.SelectionFrom, req.SelectionTo
	if from < 0 {
		from = 0
	}
	if to > len(doc) {
		to = len(doc)
	}
	if from > to {
		from = to
	}
	return doc[:from], doc[to:]
}

// --- Preprocessors ---

// TrimContext returns a preprocessor that splits the document at the
// selection and trims the halves to the provider's context budget, keeping
// the text nearest the cursor. A trimmed window also caps streamed output at
// the window's height.
func TrimContext() Preprocessor {
	return func(p *Provider, ctx *Context) error {
		ctx.Before, ctx.After = SplitAtSelection(ctx.Request)

		var didTrim bool
		ctx.Prefix, ctx.Suffix, didTrim = utils.TrimPrefixSuffix(ctx.Before, ctx.After, p.Config.MaxContextTokens)
		if didTrim {
			ctx.MaxLines = strings.Count(ctx.Prefix, "\n") + strings.Count(ctx.Suffix, "\n") + 1
		}
		return nil
	}
}

// SkipIfMidLine returns a preprocessor that declines when the cursor has text
// after it on the same line. Plain continuation backends produce poor results
// in that position.
func SkipIfMidLine() Preprocessor {
	return func(p *Provider, ctx *Context) error {
		_, after := SplitAtSelection(ctx.Request)
		if after != "" && after[0] != '\n' {
			logger.Debug("%s: skipping, text after cursor", p.Name)
			return ErrSkipPrediction
		}
		return nil
	}
}

// --- Postprocessors ---

// RejectEmpty returns a postprocessor that rejects empty completions
func RejectEmpty() Postprocessor {
	return func(p *Provider, ctx *Context) (*types.Prediction, bool) {
		if strings.TrimSpace(ctx.Result.Text) == "" {
			logger.Debug("%s: rejected, empty or whitespace-only", p.Name)
			return p.EmptyPrediction(), true
		}
		return nil, false
	}
}

// RejectTruncated returns a postprocessor that rejects truncated completions
func RejectTruncated() Postprocessor {
	return func(p *Provider, ctx *Context) (*types.Prediction, bool) {
		if ctx.Result.FinishReason == "length" || ctx.Result.StoppedEarly {
			logger.Info("%s: rejected, truncated", p.Name)
			return p.EmptyPrediction(), true
		}
		return nil, false
	}
}

// DropTailIfTruncated returns a postprocessor that cuts a truncated result
// back to the last complete line, rejecting it when nothing whole remains.
func DropTailIfTruncated() Postprocessor {
	return func(p *Provider, ctx *Context) (*types.Prediction, bool) {
		if ctx.Result.FinishReason != "length" && !ctx.Result.StoppedEarly {
			return nil, false
		}

		idx := strings.LastIndexByte(ctx.Result.Text, '\n')
		if idx < 0 {
			logger.Info("%s: rejected, truncated single line", p.Name)
			return p.EmptyPrediction(), true
		}

		ctx.Result.Text = ctx.Result.Text[:idx]
		if strings.TrimSpace(ctx.Result.Text) == "" {
			logger.Info("%s: rejected, empty after dropping truncated line", p.Name)
			return p.EmptyPrediction(), true
		}

		logger.Info("%s: truncated, dropped partial last line", p.Name)
		return nil, false
	}
}

// IsNoOpRewrite reports whether replacing the document with newText would
// change nothing but trailing whitespace.
func IsNoOpRewrite(newText, oldText string) bool {
	return strings.TrimRight(newText, " \t\n\r") == strings.TrimRight(oldText, " \t\n\r")
}
