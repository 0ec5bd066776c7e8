package rewrite

import (
	"context"
	"fmt"
	"strings"

	"difftab/client/predict"
	"difftab/engine"
	"difftab/logger"
	"difftab/provider"
	"difftab/text"
	"difftab/types"
	"difftab/utils"
)

// Provider asks the backend to rewrite an editable region around the cursor
// instead of filling a gap, so it can suggest edits before the cursor as well
// as after it. The region is marked with sentinels in the prompt and the
// model returns the whole region rewritten.
type Provider struct {
	config *types.ProviderConfig
	client *predict.Client
}

var _ engine.Predictor = (*Provider)(nil)

// contextLines is the number of read-only lines shown on each side of the
// editable region.
const contextLines = 5

const instruction = "You are a code completion assistant and your task is to analyze user edits and then rewrite an excerpt that the user provides, suggesting the appropriate edits within the excerpt, taking into account the cursor location."

// NewProvider creates a region-rewrite provider.
func NewProvider(config *types.ProviderConfig) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Provider{
		config: config,
		client: predict.NewClient(config.ProviderURL, config.APIKey, 0),
	}, nil
}

// region describes the editable slice of the document and the read-only
// context window around it. All bounds are byte offsets on line starts,
// except end/contextEnd which may land on the end of the document.
type region struct {
	start        int
	end          int
	contextStart int
	contextEnd   int
}

// Predict implements engine.Predictor.
func (p *Provider) Predict(ctx context.Context, req *types.PredictRequest) (*types.Prediction, error) {
	doc := req.Document
	cursor := req.SelectionTo
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(doc) {
		cursor = len(doc)
	}

	r := regionAround(doc, cursor, p.config.MaxContextTokens)
	prompt := buildPrompt(buildUserEdits(req), req.ExtraContext, p.buildExcerpt(req, r, cursor))

	// The model regenerates the whole region, so the generation limit follows
	// the region budget rather than the usual completion cap.
	maxTokens := p.config.MaxContextTokens
	if maxTokens == 0 {
		maxTokens = p.config.ProviderMaxTokens
	}

	predictReq := &predict.Request{
		Model:       p.config.ProviderModel,
		Prompt:      prompt,
		Temperature: p.config.ProviderTemperature,
		MaxTokens:   maxTokens,
		Stop:        []string{"\n" + text.EditableRegionEnd},
		PrivacyMode: p.config.PrivacyMode,
	}

	logger.Debug("rewrite provider request:\n  Model: %s\n  Region: bytes %d-%d of %d\n  Prompt length: %d chars\n  Prompt:\n%s",
		predictReq.Model, r.start, r.end, len(doc), len(prompt), prompt)

	resp, err := p.client.DoPredict(ctx, predictReq)
	if err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}

	logger.Debug("rewrite provider response:\n  RequestID: %s\n  FinishReason: %s\n  Text length: %d chars\n  Text: %q",
		resp.RequestID, resp.FinishReason, len(resp.Text), resp.Text)

	if strings.TrimSpace(resp.Text) == "" {
		logger.Debug("rewrite: empty response")
		return emptyPrediction(), nil
	}

	return p.parseResponse(req, r, cursor, resp), nil
}

// regionAround picks the editable region: the text nearest the cursor that
// fits the token budget, cut on line boundaries, plus the context window.
func regionAround(doc string, cursor, maxTokens int) region {
	regionPrefix, regionSuffix, _ := utils.TrimPrefixSuffix(doc[:cursor], doc[cursor:], maxTokens)

	r := region{
		start: cursor - len(regionPrefix),
		end:   cursor + len(regionSuffix),
	}
	r.contextStart = backLines(doc, r.start, contextLines)
	r.contextEnd = forwardLines(doc, r.end, contextLines)
	return r
}

// backLines returns the offset of the line start n lines before pos.
// pos must be a line start.
func backLines(doc string, pos, n int) int {
	for ; n > 0 && pos > 0; n-- {
		pos = strings.LastIndexByte(doc[:pos-1], '\n') + 1
	}
	return pos
}

// forwardLines returns the offset one past the newline n lines after pos.
// pos must be a line start or the end of the document.
func forwardLines(doc string, pos, n int) int {
	for ; n > 0 && pos < len(doc); n-- {
		nl := strings.IndexByte(doc[pos:], '\n')
		if nl < 0 {
			return len(doc)
		}
		pos += nl + 1
	}
	return pos
}

// advanceLines returns the offset of the end of the nth line at or after pos,
// excluding its newline.
func advanceLines(doc string, pos, n int) int {
	for i := 0; i < n; i++ {
		nl := strings.IndexByte(doc[pos:], '\n')
		if nl < 0 {
			return len(doc)
		}
		if i == n-1 {
			return pos + nl
		}
		pos += nl + 1
	}
	return pos
}

// buildUserEdits formats the last recorded edit as a unified diff section.
func buildUserEdits(req *types.PredictRequest) string {
	if req.Patch == nil || req.Patch.Rendered == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("User edited \"")
	b.WriteString(req.FilePath)
	b.WriteString("\":\n")
	b.WriteString("```diff\n")
	b.WriteString(req.Patch.Rendered)
	b.WriteString("\n```")
	return b.String()
}

// buildExcerpt renders the document window as a fenced excerpt with region
// sentinels and the cursor marker.
func (p *Provider) buildExcerpt(req *types.PredictRequest, r region, cursor int) string {
	doc := req.Document
	var b strings.Builder

	b.WriteString("```")
	b.WriteString(req.FilePath)
	b.WriteString("\n")

	if r.contextStart == 0 {
		b.WriteString(text.StartOfFile)
		b.WriteString("\n")
	}

	b.WriteString(doc[r.contextStart:r.start])
	b.WriteString(text.EditableRegionStart)
	b.WriteString("\n")

	b.WriteString(doc[r.start:cursor])
	b.WriteString(text.CursorMarker)
	b.WriteString(doc[cursor:r.end])
	if !strings.HasSuffix(doc[r.start:r.end], "\n") {
		b.WriteString("\n")
	}
	b.WriteString(text.EditableRegionEnd)

	if after := doc[r.end:r.contextEnd]; after != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSuffix(after, "\n"))
	}
	b.WriteString("\n```")

	return b.String()
}

// buildPrompt wraps the excerpt in the instruction template.
func buildPrompt(userEdits, extraContext, excerpt string) string {
	var b strings.Builder

	b.WriteString("### Instruction:\n")
	b.WriteString(instruction)
	b.WriteString("\n\n")

	b.WriteString("### User Edits:\n\n")
	b.WriteString(userEdits)
	b.WriteString("\n\n")

	if extraContext != "" {
		b.WriteString("### Context:\n\n")
		b.WriteString(extraContext)
		b.WriteString("\n\n")
	}

	b.WriteString("### User Excerpt:\n\n")
	b.WriteString(excerpt)
	b.WriteString("\n\n")

	b.WriteString("### Response:\n")

	return b.String()
}

// parseResponse extracts the rewritten region and splices it back into the
// document. A response without region sentinels falls back to parseSimple.
func (p *Provider) parseResponse(req *types.PredictRequest, r region, cursor int, resp *predict.Response) *types.Prediction {
	doc := req.Document

	// Echoed cursor markers carry no meaning in the response
	content, _ := text.ExtractCursorMarker(resp.Text)

	startIdx := strings.Index(content, text.EditableRegionStart)
	if startIdx == -1 {
		return p.parseSimple(req, cursor, content, resp.FinishReason)
	}
	content = content[startIdx:]

	nl := strings.IndexByte(content, '\n')
	if nl == -1 {
		return emptyPrediction()
	}
	content = content[nl+1:]

	// The stop token normally eats the end marker; cut it off if it survived
	newRegion := content
	if endIdx := strings.Index(content, "\n"+text.EditableRegionEnd); endIdx != -1 {
		newRegion = content[:endIdx]
	}

	replaceEnd := r.end
	if resp.FinishReason == "length" {
		// Ran out mid-line: keep whole lines and shorten the replaced range
		// to match, leaving the rest of the region untouched.
		idx := strings.LastIndexByte(newRegion, '\n')
		if idx < 0 {
			logger.Debug("rewrite: rejected, only truncated content")
			return emptyPrediction()
		}
		newRegion = newRegion[:idx]
		replaceEnd = advanceLines(doc, r.start, strings.Count(newRegion, "\n")+1)
		if replaceEnd > r.end {
			replaceEnd = r.end
		}
		logger.Info("rewrite: truncated, replacing bytes %d-%d of region %d-%d",
			r.start, replaceEnd, r.start, r.end)
	} else if strings.HasSuffix(doc[r.start:r.end], "\n") {
		// The end marker sits on its own line, so the region's final newline
		// never comes back in the response.
		newRegion += "\n"
	}

	if newRegion == doc[r.start:replaceEnd] {
		logger.Debug("rewrite: rejected, region unchanged")
		return emptyPrediction()
	}

	newText := doc[:r.start] + newRegion + doc[replaceEnd:]
	if provider.IsNoOpRewrite(newText, doc) {
		logger.Debug("rewrite: rejected, rewrite matches the document")
		return emptyPrediction()
	}

	return &types.Prediction{Text: newText, CursorOffset: -1}
}

// parseSimple handles responses without region sentinels by treating the text
// as a rewrite of the lines from the cursor down.
func (p *Provider) parseSimple(req *types.PredictRequest, cursor int, content, finishReason string) *types.Prediction {
	content = text.StripSentinels(content)

	if finishReason == "length" {
		idx := strings.LastIndexByte(content, '\n')
		if idx < 0 {
			return emptyPrediction()
		}
		content = content[:idx]
	}
	if strings.TrimSpace(content) == "" {
		return emptyPrediction()
	}

	doc := req.Document
	replaceEnd := advanceLines(doc, cursor, strings.Count(content, "\n")+1)

	newText := doc[:cursor] + content + doc[replaceEnd:]
	if provider.IsNoOpRewrite(newText, doc) {
		return emptyPrediction()
	}

	return &types.Prediction{Text: newText, CursorOffset: -1}
}

func emptyPrediction() *types.Prediction {
	return &types.Prediction{Text: "", CursorOffset: -1}
}
