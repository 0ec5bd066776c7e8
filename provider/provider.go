package provider

import (
	"context"
	"errors"
	"fmt"

	"difftab/client/openai"
	"difftab/engine"
	"difftab/logger"
	"difftab/text"
	"difftab/types"
)

// Compile-time check that Provider implements engine.Predictor
var _ engine.Predictor = (*Provider)(nil)

// Client is the completion transport (enables mocking in tests)
type Client interface {
	DoCompletion(ctx context.Context, req *openai.CompletionRequest) (*openai.CompletionResponse, error)
	DoStreamingCompletion(ctx context.Context, req *openai.CompletionRequest, maxLines int) (*openai.StreamResult, error)
}

// Context carries data through the prediction pipeline
type Context struct {
	Request *types.PredictRequest

	// Before and After are the document halves outside the selected range,
	// the splice points for prompt windows. Set by TrimContext.
	Before string
	After  string

	// Prefix and Suffix are the prompt context actually sent: Before and
	// After trimmed to the provider's token budget.
	Prefix string
	Suffix string

	// MaxLines caps streamed output lines (0 = no limit)
	MaxLines int

	Result *openai.StreamResult
}

// Provider implements engine.Predictor with a configurable pipeline
type Provider struct {
	Name           string
	Config         *types.ProviderConfig
	Client         Client
	Streaming      bool
	Preprocessors  []Preprocessor
	PromptBuilder  PromptBuilder
	Postprocessors []Postprocessor
}

// Predict implements engine.Predictor. Preprocessors shape the prompt
// context, the prompt builder produces the backend request, and
// postprocessors turn the raw completion into a whole-document prediction.
func (p *Provider) Predict(ctx context.Context, req *types.PredictRequest) (*types.Prediction, error) {
	pctx := &Context{Request: req}

	for _, pre := range p.Preprocessors {
		if err := pre(p, pctx); err != nil {
			if errors.Is(err, ErrSkipPrediction) {
				return p.EmptyPrediction(), nil
			}
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
	}

	completionReq := p.PromptBuilder(p, pctx)
	p.logRequest(completionReq, pctx.MaxLines)

	var result *openai.StreamResult
	if p.Streaming {
		var err error
		result, err = p.Client.DoStreamingCompletion(ctx, completionReq, pctx.MaxLines)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
	} else {
		resp, err := p.Client.DoCompletion(ctx, completionReq)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		result = &openai.StreamResult{}
		if len(resp.Choices) > 0 {
			result.Text = resp.Choices[0].Text
			result.FinishReason = resp.Choices[0].FinishReason
		}
	}
	pctx.Result = result
	p.logResponse(result)

	for _, post := range p.Postprocessors {
		if pred, done := post(p, pctx); done {
			return pred, nil
		}
	}

	return p.EmptyPrediction(), nil
}

// EmptyPrediction returns a declined prediction
func (p *Provider) EmptyPrediction() *types.Prediction {
	return &types.Prediction{Text: "", CursorOffset: -1}
}

// BuildPrediction normalizes a spliced replacement document into the
// prediction handed back to the engine. An embedded cursor marker wins over
// the explicit offset; pass -1 to leave placement to the accept path.
// Returns an empty prediction when the rewrite matches the document.
func (p *Provider) BuildPrediction(ctx *Context, newText string, cursorOffset int) (*types.Prediction, bool) {
	if cleaned, at := text.ExtractCursorMarker(newText); at >= 0 {
		newText = cleaned
		cursorOffset = at
	}

	if IsNoOpRewrite(newText, ctx.Request.Document) {
		logger.Debug("%s: rejected, rewrite matches the document", p.Name)
		return p.EmptyPrediction(), true
	}

	if cursorOffset > len(newText) {
		cursorOffset = len(newText)
	}

	return &types.Prediction{Text: newText, CursorOffset: cursorOffset}, true
}

func (p *Provider) logRequest(req *openai.CompletionRequest, maxLines int) {
	logger.Debug("%s provider request:\n  URL: %s%s\n  Model: %s\n  Temperature: %.2f\n  MaxTokens: %d\n  MaxLines: %d\n  Prompt length: %d chars\n  Prompt:\n%s",
		p.Name,
		p.Config.ProviderURL,
		p.Config.CompletionPath,
		req.Model,
		req.Temperature,
		req.MaxTokens,
		maxLines,
		len(req.Prompt),
		req.Prompt)
}

func (p *Provider) logResponse(result *openai.StreamResult) {
	logger.Debug("%s provider response:\n  Text length: %d chars\n  FinishReason: %s\n  StoppedEarly: %v\n  Text: %q",
		p.Name,
		len(result.Text),
		result.FinishReason,
		result.StoppedEarly,
		result.Text)
}
