// Package eval scores pitches against the rubric through a tiered
// escalation policy: context-enriched generation first, plain generation
// second, deterministic synthetic scoring last. Evaluate never fails;
// a live event cannot tolerate an empty response, so the contract is
// "always a valid rubric", not "always a model-graded one".
package eval

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/pitcharena/internal/enrich"
	"github.com/kalambet/pitcharena/internal/rubric"
)

// Submission is one pitch to evaluate, with the identity display fields
// carried through to the persistence payloads.
type Submission struct {
	Identity   string
	Name       string
	Track      string
	Entry      string
	Pitch      string
	ReceivedAt time.Time
}

// Generator is the text-generation dependency.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ContextProvider is the optional retrieval dependency. A nil provider
// disables the agentic tier entirely.
type ContextProvider interface {
	Enrich(ctx context.Context, pitch string) (*enrich.Bundle, error)
}

// tier is one evaluation strategy. Tiers share a single signature and are
// tried in order; the first success short-circuits.
type tier struct {
	name string
	run  func(ctx context.Context, sub Submission) (*rubric.Evaluation, error)
}

// Engine applies the escalation policy.
type Engine struct {
	tiers []tier
}

// New creates an Engine. enricher may be nil, in which case evaluation
// starts at the baseline tier.
func New(gen Generator, enricher ContextProvider) *Engine {
	e := &Engine{}
	if enricher != nil {
		e.tiers = append(e.tiers, tier{name: "agentic", run: func(ctx context.Context, sub Submission) (*rubric.Evaluation, error) {
			return agenticTier(ctx, gen, enricher, sub)
		}})
	}
	e.tiers = append(e.tiers,
		tier{name: "baseline", run: func(ctx context.Context, sub Submission) (*rubric.Evaluation, error) {
			return generateAndParse(ctx, gen, baselinePrompt(sub))
		}},
		tier{name: "synthetic", run: func(ctx context.Context, sub Submission) (*rubric.Evaluation, error) {
			return rubric.Synthetic(sub.Pitch), nil
		}},
	)
	return e
}

// Evaluate runs the tiers in order and returns the first success. The
// synthetic tier cannot fail, so the result is always structurally valid.
func (e *Engine) Evaluate(ctx context.Context, sub Submission) *rubric.Evaluation {
	for _, t := range e.tiers {
		ev, err := t.run(ctx, sub)
		if err == nil {
			slog.Info("pitch evaluated", "identity", sub.Identity, "tier", t.name, "total", ev.Total)
			return ev
		}
		slog.Warn("evaluation tier failed, escalating", "tier", t.name, "identity", sub.Identity, "error", err)
	}
	// Unreachable: the synthetic tier never errors. Kept as a hard floor
	// in case the tier list is ever misconfigured.
	return rubric.Synthetic(sub.Pitch)
}

func agenticTier(ctx context.Context, gen Generator, enricher ContextProvider, sub Submission) (*rubric.Evaluation, error) {
	bundle, err := enricher.Enrich(ctx, sub.Pitch)
	if err != nil {
		return nil, err
	}
	return generateAndParse(ctx, gen, enrichedPrompt(sub, bundle))
}

func generateAndParse(ctx context.Context, gen Generator, prompt string) (*rubric.Evaluation, error) {
	raw, err := gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return rubric.Parse(raw)
}
