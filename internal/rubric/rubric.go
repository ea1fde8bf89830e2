// Package rubric defines the fixed scoring rubric applied to every pitch:
// the named criteria, their bounds, aggregate computation, parsing of model
// output, and the deterministic synthetic scorer used when generation is
// unavailable.
package rubric

import (
	"math"
	"time"
)

// Score bounds for every criterion and for the aggregate.
const (
	MinScore = 0
	MaxScore = 100
)

// Criteria lists the rubric dimensions in canonical order. The names double
// as the required JSON keys in model responses.
var Criteria = []string{"aiRelevance", "creativity", "impact", "clarity", "funFactor"}

// Evaluation is a fully scored pitch. After construction through Parse or
// Synthetic, every criterion is within [MinScore, MaxScore] and Total equals
// the rounded mean of the criteria.
type Evaluation struct {
	AIRelevance int       `json:"aiRelevance"`
	Creativity  int       `json:"creativity"`
	Impact      int       `json:"impact"`
	Clarity     int       `json:"clarity"`
	FunFactor   int       `json:"funFactor"`
	Total       int       `json:"totalScore"`
	Feedback    string    `json:"feedback"`
	Fallback    bool      `json:"fallback,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// CriterionScores returns the criterion values in canonical order.
func (e *Evaluation) CriterionScores() []int {
	return []int{e.AIRelevance, e.Creativity, e.Impact, e.Clarity, e.FunFactor}
}

// Clamp forces v into the valid score range.
func Clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// Aggregate computes the rounded arithmetic mean of the given scores.
// Inputs are assumed already clamped.
func Aggregate(scores []int) int {
	if len(scores) == 0 {
		return MinScore
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}

// normalize clamps every criterion and recomputes Total, so the invariant
// holds regardless of what the model claimed.
func (e *Evaluation) normalize() {
	e.AIRelevance = Clamp(e.AIRelevance)
	e.Creativity = Clamp(e.Creativity)
	e.Impact = Clamp(e.Impact)
	e.Clarity = Clamp(e.Clarity)
	e.FunFactor = Clamp(e.FunFactor)
	e.Total = Aggregate(e.CriterionScores())
}
