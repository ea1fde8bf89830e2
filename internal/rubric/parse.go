package rubric

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const minFeedbackLength = 50

// responseSchema describes the structured response demanded from the model.
// Criterion values are numbers rather than integers because models
// occasionally emit "85.0"; they are rounded and clamped after validation.
var responseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"aiRelevance": map[string]any{"type": "number"},
		"creativity":  map[string]any{"type": "number"},
		"impact":      map[string]any{"type": "number"},
		"clarity":     map[string]any{"type": "number"},
		"funFactor":   map[string]any{"type": "number"},
		"totalScore":  map[string]any{"type": "number"},
		"feedback":    map[string]any{"type": "string", "minLength": minFeedbackLength},
	},
	"required": []any{"aiRelevance", "creativity", "impact", "clarity", "funFactor", "feedback"},
}

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(responseSchema)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rubric.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	return compiler.Compile("rubric.json")
})

// wireEvaluation accepts the loosely typed model output before normalization.
type wireEvaluation struct {
	AIRelevance float64 `json:"aiRelevance"`
	Creativity  float64 `json:"creativity"`
	Impact      float64 `json:"impact"`
	Clarity     float64 `json:"clarity"`
	FunFactor   float64 `json:"funFactor"`
	Feedback    string  `json:"feedback"`
}

// Parse turns raw model output into a validated Evaluation. It tolerates
// markdown code fences and conversational filler around the JSON object,
// validates the required keys and types against the response schema, then
// clamps every criterion and recomputes the aggregate. A structurally
// invalid response is an error; the caller escalates to the next tier.
func Parse(raw string) (*Evaluation, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling response schema: %w", err)
	}
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("response does not match rubric schema: %w", err)
	}

	var w wireEvaluation
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	ev := &Evaluation{
		AIRelevance: int(math.Round(w.AIRelevance)),
		Creativity:  int(math.Round(w.Creativity)),
		Impact:      int(math.Round(w.Impact)),
		Clarity:     int(math.Round(w.Clarity)),
		FunFactor:   int(math.Round(w.FunFactor)),
		Feedback:    strings.TrimSpace(w.Feedback),
		EvaluatedAt: time.Now().UTC(),
	}
	ev.normalize()
	return ev, nil
}

// extractJSON pulls the JSON object out of raw model text. Models frequently
// wrap output in ```json fences or prepend filler, so the parser strips
// fences first, then falls back to the outermost brace pair.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return s[start : end+1], nil
}
