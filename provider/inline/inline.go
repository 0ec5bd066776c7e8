package inline

import (
	"difftab/client/openai"
	"difftab/provider"
	"difftab/types"
)

// NewProvider creates a plain-completion provider for models without FIM
// support. The prompt is everything before the cursor and generation stops at
// the first newline, so it only ever finishes the current line. Requests with
// text after the cursor on the same line are skipped.
func NewProvider(config *types.ProviderConfig) *provider.Provider {
	return &provider.Provider{
		Name:      "inline",
		Config:    config,
		Client:    openai.NewClient(config.ProviderURL, config.CompletionPath, config.APIKey),
		Streaming: false,
		Preprocessors: []provider.Preprocessor{
			provider.SkipIfMidLine(),
			provider.TrimContext(),
		},
		PromptBuilder: buildPrompt,
		Postprocessors: []provider.Postprocessor{
			provider.RejectEmpty(),
			provider.RejectTruncated(),
			spliceCompletion,
		},
	}
}

func buildPrompt(p *provider.Provider, ctx *provider.Context) *openai.CompletionRequest {
	return &openai.CompletionRequest{
		Model:       p.Config.ProviderModel,
		Prompt:      ctx.Prefix,
		Temperature: p.Config.ProviderTemperature,
		MaxTokens:   p.Config.ProviderMaxTokens,
		TopK:        p.Config.ProviderTopK,
		Stop:        []string{"\n"},
		N:           1,
		Echo:        false,
	}
}

func spliceCompletion(p *provider.Provider, ctx *provider.Context) (*types.Prediction, bool) {
	completion := ctx.Result.Text
	newText := ctx.Before + completion + ctx.After
	return p.BuildPrediction(ctx, newText, len(ctx.Before)+len(completion))
}
