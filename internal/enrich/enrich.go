// Package enrich implements the agentic retrieval stage: it turns a pitch
// into diversified search queries, fans them out to a web search provider,
// ranks the merged hits for topical diversity, fetches the top pages, and
// assembles a bounded context bundle for the evaluation prompt. Everything
// here is best-effort: a failure means "evaluate without enrichment", never
// a blocked or broken evaluation.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/pitcharena/internal/search"
)

const (
	defaultResultsPerQuery = 4
	defaultFetchPages      = 2
	defaultExcerptChars    = 600
	defaultCharBudget      = 6000
	searchConcurrency      = 3
)

// ErrNoResults is returned when every search query came back empty.
var ErrNoResults = errors.New("enrich: no search results")

// Source is one retrieved web source in a Bundle.
type Source struct {
	Title   string
	URL     string
	Snippet string
	Excerpt string
}

// Bundle is the bounded context handed to the evaluation prompt. It is
// built per attempt and never persisted.
type Bundle struct {
	Sources []Source
}

// Searcher is the web search dependency.
type Searcher interface {
	Search(ctx context.Context, query string, n int) ([]search.Result, error)
}

// Options tune the enrichment pipeline. Zero values select defaults.
type Options struct {
	ResultsPerQuery int
	FetchPages      int
	ExcerptChars    int
	CharBudget      int
}

// Enricher runs the retrieval pipeline against a search provider.
type Enricher struct {
	searcher Searcher
	fetcher  *Fetcher
	opts     Options
}

// New creates an Enricher with the given search and fetch dependencies.
func New(searcher Searcher, fetcher *Fetcher, opts Options) *Enricher {
	if opts.ResultsPerQuery <= 0 {
		opts.ResultsPerQuery = defaultResultsPerQuery
	}
	if opts.FetchPages <= 0 {
		opts.FetchPages = defaultFetchPages
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = defaultExcerptChars
	}
	if opts.CharBudget <= 0 {
		opts.CharBudget = defaultCharBudget
	}
	return &Enricher{searcher: searcher, fetcher: fetcher, opts: opts}
}

// Enrich runs the full pipeline on a pitch:
//  1. Derive diversified queries via local heuristics.
//  2. Fan out searches concurrently, bounded per-call.
//  3. Merge, dedupe by URL, rank for topical diversity.
//  4. Fetch top pages and reduce each to a short excerpt.
//  5. Assemble the bundle under the total character budget.
//
// A search-stage failure or an empty result set returns an error; the
// caller falls back to un-enriched evaluation. Individual page-fetch
// failures only cost that source its excerpt.
func (e *Enricher) Enrich(ctx context.Context, pitch string) (*Bundle, error) {
	queries := DeriveQueries(pitch)

	perQuery := make([][]search.Result, len(queries))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(searchConcurrency)

	for i, q := range queries {
		g.Go(func() error {
			results, err := e.searcher.Search(gCtx, q, e.opts.ResultsPerQuery)
			if err != nil {
				return fmt.Errorf("query %q: %w", q, err)
			}
			perQuery[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search fan-out: %w", err)
	}

	var merged []search.Result
	for _, results := range perQuery {
		merged = append(merged, results...)
	}
	merged = rankForDiversity(dedupeByURL(merged))
	if len(merged) == 0 {
		return nil, ErrNoResults
	}

	sources := make([]Source, 0, len(merged))
	for i, r := range merged {
		src := Source{Title: r.Title, URL: r.URL, Snippet: r.Snippet}
		if i < e.opts.FetchPages {
			excerpt, err := e.fetcher.Excerpt(ctx, r.URL, e.opts.ExcerptChars)
			if err != nil {
				slog.Debug("enrich: page fetch failed, keeping snippet only", "url", r.URL, "error", err)
			} else {
				src.Excerpt = excerpt
			}
		}
		sources = append(sources, src)
	}

	return e.assemble(sources), nil
}

// assemble selects sources in rank order until the character budget is
// spent. A source that would blow the budget is skipped, not truncated,
// so every included entry stays coherent.
func (e *Enricher) assemble(sources []Source) *Bundle {
	b := &Bundle{}
	remaining := e.opts.CharBudget
	for _, src := range sources {
		cost := len(src.Title) + len(src.URL) + len(src.Snippet) + len(src.Excerpt)
		if cost > remaining {
			continue
		}
		b.Sources = append(b.Sources, src)
		remaining -= cost
	}
	return b
}

// Render formats the bundle as the context block embedded in the
// evaluation prompt.
func (b *Bundle) Render() string {
	var sb strings.Builder
	sb.WriteString("Current web context (auto-collected):\n")
	for i, src := range b.Sources {
		fmt.Fprintf(&sb, "[%d] %s\nURL: %s\nSnippet: %s\n", i+1, src.Title, src.URL, src.Snippet)
		if src.Excerpt != "" {
			fmt.Fprintf(&sb, "Excerpt: %s\n", src.Excerpt)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
