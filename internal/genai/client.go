// Package genai wraps the Gemini generateContent REST API behind a plain
// text-in/text-out boundary. It knows nothing about rubrics or prompts;
// it acquires an API key per call and retries exactly once with the next
// key when the failure looks transient.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"
	defaultTimeout = 30 * time.Second
)

// KeySource supplies the next API key in rotation.
type KeySource interface {
	Acquire() string
}

// Client calls the Gemini API with per-call key rotation and timeout.
type Client struct {
	keys       KeySource
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a Client using keys from the given source.
// Empty model or non-positive timeout fall back to defaults.
func NewClient(keys KeySource, model string, timeout time.Duration) *Client {
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		keys:    keys,
		model:   model,
		baseURL: defaultBaseURL,
		timeout: timeout,
		// Timeout is enforced per request via context; the client itself
		// carries none so retries get a fresh budget.
		httpClient: &http.Client{},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(keys KeySource, model string, timeout time.Duration, baseURL string) *Client {
	c := NewClient(keys, model, timeout)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// generateRequest mirrors the generateContent request body.
type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends the prompt and returns the model's raw text output.
// JSON output is requested via response MIME type, but the returned text is
// not guaranteed to be valid JSON; parsing is the caller's concern.
//
// On a transient failure (timeout, rate limit, server error) the call is
// retried exactly once with the next key from the pool. Non-transient
// failures return immediately.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, &generationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      0.2,
	})
}

// GenerateText is Generate without the JSON response MIME type, for
// free-form output such as chat replies. Same retry-once policy.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, &generationConfig{Temperature: 0.7})
}

func (c *Client) generate(ctx context.Context, prompt string, cfg *generationConfig) (string, error) {
	text, err := c.generateOnce(ctx, prompt, cfg)
	if err == nil {
		return text, nil
	}
	if !isTransient(err) {
		return "", err
	}

	text, retryErr := c.generateOnce(ctx, prompt, cfg)
	if retryErr != nil {
		return "", fmt.Errorf("retry with next key failed: %w", retryErr)
	}
	return text, nil
}

func (c *Client) generateOnce(ctx context.Context, prompt string, cfg *generationConfig) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: cfg,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := c.keys.Acquire()
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(key))

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors and context deadlines are transient.
		return "", &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return "", &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return "", &serverError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	text := extractText(gr)
	if text == "" {
		return "", errors.New("empty model response")
	}
	return text, nil
}

// extractText concatenates the parts of the first candidate.
func extractText(gr generateResponse) string {
	if len(gr.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String())
}
