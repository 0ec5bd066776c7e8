package fim

import (
	"difftab/client/openai"
	"difftab/provider"
	"difftab/types"
)

// NewProvider creates a fill-in-the-middle prediction provider. The backend
// completes the gap between the text before and after the selection; the
// result is spliced back so the engine sees a whole-document rewrite.
func NewProvider(config *types.ProviderConfig) *provider.Provider {
	return &provider.Provider{
		Name:      "fim",
		Config:    config,
		Client:    openai.NewClient(config.ProviderURL, config.CompletionPath, config.APIKey),
		Streaming: false,
		Preprocessors: []provider.Preprocessor{
			provider.TrimContext(),
		},
		PromptBuilder: buildPrompt,
		Postprocessors: []provider.Postprocessor{
			provider.RejectEmpty(),
			provider.DropTailIfTruncated(),
			spliceCompletion,
		},
	}
}

// getFIMTokens returns the FIM tokens from config
func getFIMTokens(config *types.ProviderConfig) (prefix, suffix, middle string) {
	return config.FIMTokens.Prefix, config.FIMTokens.Suffix, config.FIMTokens.Middle
}

func buildPrompt(p *provider.Provider, ctx *provider.Context) *openai.CompletionRequest {
	prefixToken, suffixToken, middleToken := getFIMTokens(p.Config)

	return &openai.CompletionRequest{
		Model:       p.Config.ProviderModel,
		Prompt:      prefixToken + ctx.Prefix + suffixToken + ctx.Suffix + middleToken,
		Temperature: p.Config.ProviderTemperature,
		MaxTokens:   p.Config.ProviderMaxTokens,
		TopK:        p.Config.ProviderTopK,
		N:           1,
		Echo:        false,
	}
}

// spliceCompletion inserts the completion between the document halves. The
// completion replaces the selected range, which is empty at a bare cursor.
func spliceCompletion(p *provider.Provider, ctx *provider.Context) (*types.Prediction, bool) {
	completion := ctx.Result.Text
	newText := ctx.Before + completion + ctx.After
	return p.BuildPrediction(ctx, newText, len(ctx.Before)+len(completion))
}
