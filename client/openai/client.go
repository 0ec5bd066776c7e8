package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"difftab/logger"
)

// DefaultCompletionPath is used when no completion path is configured.
const DefaultCompletionPath = "/v1/completions"

// CompletionRequest matches the OpenAI Completion API format
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	N           int      `json:"n"`
	Echo        bool     `json:"echo"`
	Stream      bool     `json:"stream"`
}

// CompletionResponse matches the OpenAI Completion API response format
type CompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int    `json:"index"`
		Text         string `json:"text"`
		Logprobs     any    `json:"logprobs"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// StreamChunk represents a single SSE chunk from a streaming response
type StreamChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int    `json:"index"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// StreamResult contains the accumulated result of a streaming completion
type StreamResult struct {
	Text         string
	FinishReason string
	StoppedEarly bool
}

// Client is a reusable OpenAI-compatible API client
type Client struct {
	HTTPClient     *http.Client
	URL            string
	CompletionPath string
	APIKey         string
}

// NewClient creates a new OpenAI-compatible client. completionPath defaults
// to DefaultCompletionPath; apiKey may be empty for unauthenticated backends.
func NewClient(url, completionPath, apiKey string) *Client {
	if completionPath == "" {
		completionPath = DefaultCompletionPath
	}
	return &Client{
		HTTPClient:     &http.Client{},
		URL:            url,
		CompletionPath: completionPath,
		APIKey:         apiKey,
	}
}

// DoCompletion sends a non-streaming completion request
func (c *Client) DoCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	req.Stream = false

	body, err := c.doRequest(ctx, req, "")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var resp CompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &resp, nil
}

// DoStreamingCompletion sends a streaming completion request and accumulates
// the SSE chunks into a single result. maxLines stops the stream after that
// many newlines (0 = no limit); req.Stop tokens are also honored client-side
// for backends that echo past them.
func (c *Client) DoStreamingCompletion(ctx context.Context, req *CompletionRequest, maxLines int) (*StreamResult, error) {
	req.Stream = true

	body, err := c.doRequest(ctx, req, "text/event-stream")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return c.readStream(body, maxLines, req.Stop), nil
}

// readStream reads an SSE stream, stopping after maxLines newlines or at the
// first stop token
func (c *Client) readStream(body io.Reader, maxLines int, stopTokens []string) *StreamResult {
	var textBuilder strings.Builder
	var finishReason string
	lineCount := 0
	stoppedEarly := false

	scanner := bufio.NewScanner(body)
scan:
	for scanner.Scan() {
		line := scanner.Text()

		// Skip blank keep-alives and comments
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		if line == "data: [DONE]" {
			break
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var chunk StreamChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			logger.Debug("openai stream: failed to parse chunk: %v", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		textBuilder.WriteString(chunk.Choices[0].Text)

		for _, stop := range stopTokens {
			if idx := strings.Index(textBuilder.String(), stop); idx >= 0 {
				text := textBuilder.String()[:idx]
				textBuilder.Reset()
				textBuilder.WriteString(text)
				finishReason = "stop"
				break scan
			}
		}

		lineCount += strings.Count(chunk.Choices[0].Text, "\n")
		if maxLines > 0 && lineCount >= maxLines {
			stoppedEarly = true
			logger.Debug("openai stream: stopping early at %d lines (max: %d)", lineCount, maxLines)
			break
		}

		if chunk.Choices[0].FinishReason != "" {
			finishReason = chunk.Choices[0].FinishReason
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("openai stream: scanner error: %v", err)
	}

	return &StreamResult{
		Text:         textBuilder.String(),
		FinishReason: finishReason,
		StoppedEarly: stoppedEarly,
	}
}

// doRequest sends the completion request and returns the response body on
// HTTP 200; the caller owns closing it
func (c *Client) doRequest(ctx context.Context, req *CompletionRequest, accept string) (io.ReadCloser, error) {
	// Marshal without HTML escaping so prompt sentinels survive intact
	var reqBody bytes.Buffer
	encoder := json.NewEncoder(&reqBody)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.URL+c.CompletionPath, &reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp.Body, nil
}
