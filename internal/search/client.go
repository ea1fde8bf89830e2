// Package search wraps the Google Programmable Search JSON API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://www.googleapis.com"
	defaultTimeout = 10 * time.Second
	maxResults     = 10 // API hard limit per request
)

// Result is a single web search hit.
type Result struct {
	Title   string
	Snippet string
	URL     string
}

// Client queries a Programmable Search Engine instance.
type Client struct {
	apiKey     string
	engineID   string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a search client. Timeout <= 0 falls back to the default.
func NewClient(apiKey, engineID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:     apiKey,
		engineID:   engineID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, engineID string, timeout time.Duration, baseURL string) *Client {
	c := NewClient(apiKey, engineID, timeout)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"items"`
}

// Search returns up to n results for the query. A query that matches nothing
// yields an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string, n int) ([]Result, error) {
	if n <= 0 || n > maxResults {
		n = maxResults
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("cx", c.engineID)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(n))

	endpoint := c.baseURL + "/customsearch/v1?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	results := make([]Result, 0, len(sr.Items))
	for _, it := range sr.Items {
		if it.Link == "" {
			continue
		}
		results = append(results, Result{
			Title:   it.Title,
			Snippet: it.Snippet,
			URL:     it.Link,
		})
	}
	return results, nil
}
