package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultByteBudget   = 512 * 1024
	userAgent           = "pitcharena-enrich/1.0"
)

// Fetcher downloads a page and reduces it to a short plain-text excerpt.
// HTML is stripped to visible text; PDF results (market reports, papers)
// are extracted with a PDF text reader. Everything is bounded: one timeout
// and one byte budget per fetch.
type Fetcher struct {
	httpClient *http.Client
	byteBudget int64
}

// NewFetcher creates a Fetcher. Non-positive arguments fall back to defaults.
func NewFetcher(timeout time.Duration, byteBudget int64) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if byteBudget <= 0 {
		byteBudget = defaultByteBudget
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		byteBudget: byteBudget,
	}
}

// Excerpt fetches the URL and returns up to maxChars of extracted text.
func (f *Fetcher) Excerpt(ctx context.Context, url string, maxChars int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.byteBudget))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}

	contentType := resp.Header.Get("Content-Type")
	var text string
	switch {
	case strings.Contains(contentType, "application/pdf") || strings.HasSuffix(strings.ToLower(url), ".pdf"):
		text, err = pdfText(body)
	default:
		text, err = htmlText(body)
	}
	if err != nil {
		return "", err
	}

	return summarize(text, maxChars), nil
}

// htmlText strips an HTML document to its visible text.
func htmlText(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg":
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String(), nil
}

// pdfText extracts plain text from a PDF document.
func pdfText(body []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return sb.String(), nil
}

// summarize collapses whitespace and cuts at the last sentence boundary
// within maxChars, falling back to a word boundary.
func summarize(text string, maxChars int) string {
	s := strings.Join(strings.Fields(text), " ")
	if len(s) <= maxChars {
		return s
	}
	cut := s[:maxChars]
	if idx := strings.LastIndexAny(cut, ".!?"); idx > maxChars/3 {
		return cut[:idx+1]
	}
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		return cut[:idx]
	}
	return cut
}
