package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/pitcharena/internal/search"
)

type mockSearcher struct {
	mu       sync.Mutex
	queries  []string
	searchFn func(ctx context.Context, query string, n int) ([]search.Result, error)
}

func (m *mockSearcher) Search(ctx context.Context, query string, n int) ([]search.Result, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	return m.searchFn(ctx, query, n)
}

const samplePitch = "An AI assistant that helps nurses triage emergency room patients " +
	"by reading intake forms and flagging high-risk symptoms before a doctor is available."

func TestDeriveQueries_CountAndDiversity(t *testing.T) {
	queries := DeriveQueries(samplePitch)
	if len(queries) < 3 || len(queries) > 6 {
		t.Fatalf("got %d queries, want 3-6", len(queries))
	}

	seen := make(map[string]bool)
	for _, q := range queries {
		if q == "" {
			t.Error("empty query")
		}
		if seen[q] {
			t.Errorf("duplicate query %q", q)
		}
		seen[q] = true
	}
}

func TestDeriveQueries_Deterministic(t *testing.T) {
	a := DeriveQueries(samplePitch)
	b := DeriveQueries(samplePitch)
	if len(a) != len(b) {
		t.Fatalf("query counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("query %d differs: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestDedupeByURL(t *testing.T) {
	in := []search.Result{
		{Title: "A", URL: "https://example.com/a"},
		{Title: "A again", URL: "https://example.com/a/"},
		{Title: "B", URL: "https://example.com/b"},
	}
	out := dedupeByURL(in)
	if len(out) != 2 {
		t.Fatalf("got %d results, want 2", len(out))
	}
	if out[0].Title != "A" || out[1].Title != "B" {
		t.Errorf("out = %+v", out)
	}
}

func TestRankForDiversity_PenalizesNearDuplicates(t *testing.T) {
	in := []search.Result{
		{Title: "AI triage tools for hospitals", Snippet: "hospital triage with machine learning models", URL: "u1"},
		{Title: "AI triage tools for hospital care", Snippet: "hospital triage with machine learning systems", URL: "u2"},
		{Title: "Vertical farming subsidies", Snippet: "agriculture policy news roundup", URL: "u3"},
	}
	out := rankForDiversity(in)
	if len(out) != 3 {
		t.Fatalf("got %d results, want 3", len(out))
	}
	// The near-duplicate of the first hit sinks below the unrelated one.
	if out[1].URL != "u3" {
		t.Errorf("second pick = %s, want u3 (diverse topic)", out[1].URL)
	}
	if out[2].URL != "u2" {
		t.Errorf("last pick = %s, want u2 (near duplicate)", out[2].URL)
	}
}

func TestEnrich_BuildsBundle(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><script>ignored()</script></head><body><p>Emergency triage software adoption grew last year. Hospitals report faster intake.</p></body></html>`))
	}))
	defer page.Close()

	var calls int32
	searcher := &mockSearcher{
		searchFn: func(_ context.Context, query string, n int) ([]search.Result, error) {
			n64 := atomic.AddInt32(&calls, 1)
			return []search.Result{
				{Title: "Report: " + query, Snippet: "snippet for " + query, URL: fmt.Sprintf("%s/page/%d", page.URL, n64)},
			}, nil
		},
	}

	e := New(searcher, NewFetcher(time.Second, 0), Options{FetchPages: 1})
	bundle, err := e.Enrich(context.Background(), samplePitch)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(bundle.Sources) == 0 {
		t.Fatal("bundle has no sources")
	}
	if bundle.Sources[0].Excerpt == "" {
		t.Error("first source has no excerpt")
	}
	if strings.Contains(bundle.Sources[0].Excerpt, "ignored()") {
		t.Error("excerpt contains script content")
	}

	rendered := bundle.Render()
	if !strings.Contains(rendered, "URL: ") || !strings.Contains(rendered, "[1]") {
		t.Errorf("unexpected render format:\n%s", rendered)
	}
}

func TestEnrich_SearchFailure(t *testing.T) {
	searcher := &mockSearcher{
		searchFn: func(_ context.Context, _ string, _ int) ([]search.Result, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	e := New(searcher, NewFetcher(time.Second, 0), Options{})
	if _, err := e.Enrich(context.Background(), samplePitch); err == nil {
		t.Fatal("Enrich succeeded, want error on search failure")
	}
}

func TestEnrich_NoResults(t *testing.T) {
	searcher := &mockSearcher{
		searchFn: func(_ context.Context, _ string, _ int) ([]search.Result, error) {
			return nil, nil
		},
	}
	e := New(searcher, NewFetcher(time.Second, 0), Options{})
	if _, err := e.Enrich(context.Background(), samplePitch); !errors.Is(err, ErrNoResults) {
		t.Fatalf("Enrich error = %v, want ErrNoResults", err)
	}
}

func TestEnrich_PageFetchFailureIsSoft(t *testing.T) {
	searcher := &mockSearcher{
		searchFn: func(_ context.Context, query string, _ int) ([]search.Result, error) {
			return []search.Result{
				{Title: query, Snippet: "still useful snippet", URL: "http://127.0.0.1:1/unreachable"},
			}, nil
		},
	}
	e := New(searcher, NewFetcher(100*time.Millisecond, 0), Options{FetchPages: 1})
	bundle, err := e.Enrich(context.Background(), samplePitch)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(bundle.Sources) == 0 {
		t.Fatal("bundle empty despite usable snippets")
	}
	if bundle.Sources[0].Excerpt != "" {
		t.Error("excerpt present for unreachable page")
	}
}

func TestAssemble_RespectsCharBudget(t *testing.T) {
	e := New(nil, nil, Options{CharBudget: 100})
	long := Source{Title: "t", URL: "u", Snippet: strings.Repeat("x", 200)}
	short := Source{Title: "t2", URL: "u2", Snippet: "fits"}
	b := e.assemble([]Source{long, short})
	if len(b.Sources) != 1 || b.Sources[0].Title != "t2" {
		t.Errorf("assemble kept %+v, want only the source that fits", b.Sources)
	}
}

func TestSummarize_CutsAtSentence(t *testing.T) {
	text := "First sentence here. Second sentence is much longer and will not fit in the budget at all."
	got := summarize(text, 40)
	if got != "First sentence here." {
		t.Errorf("summarize = %q", got)
	}
}
