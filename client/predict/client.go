package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"difftab/logger"

	"github.com/andybalholm/brotli"
)

// Request is the body for a prediction call. The fields follow the OpenAI
// completion format so vLLM-served models work unchanged; the prompt can run
// to tens of kilobytes, which is why the body goes over the wire compressed.
type Request struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Stop        []string `json:"stop,omitempty"`
	PrivacyMode bool     `json:"privacy_mode_enabled"`
}

// Response is the parsed prediction body.
type Response struct {
	RequestID    string `json:"request_id"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// Client is the HTTP client for prediction endpoints
type Client struct {
	HTTPClient *http.Client
	URL        string
	AuthToken  string
}

// NewClient creates a prediction client.
// timeoutMs is the HTTP client timeout in milliseconds (0 = no timeout)
func NewClient(url, apiKey string, timeoutMs int) *Client {
	timeout := time.Duration(0)
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		URL:       url,
		AuthToken: apiKey,
	}
}

// DoPredict sends a prediction request and returns the parsed response.
func (c *Client) DoPredict(ctx context.Context, req *Request) (*Response, error) {
	defer logger.Trace("predict.DoPredict")()

	// Marshal without HTML escaping so prompt sentinels survive intact
	var jsonBuf bytes.Buffer
	encoder := json.NewEncoder(&jsonBuf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Compress with brotli (quality 1 for speed)
	var compressed bytes.Buffer
	brotliWriter := brotli.NewWriterLevel(&compressed, 1)
	if _, err := brotliWriter.Write(jsonBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to compress request: %w", err)
	}
	if err := brotliWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close brotli writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.URL, &compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Content-Encoding", "br")
	if c.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &apiResp, nil
}
