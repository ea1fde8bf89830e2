package rubric

import (
	"strings"
	"time"
)

// fallbackFeedback is returned verbatim on every synthetic evaluation so
// that callers (and participants) can tell the result was not model-graded.
const fallbackFeedback = "This is a provisional score generated while the AI judge was unavailable. " +
	"To improve your pitch, state the problem you solve in one sentence, name your target " +
	"audience, explain what makes your use of AI essential rather than decorative, and " +
	"sketch the first step you would ship."

var aiKeywords = []string{"ai", "ml", "llm", "model", "machine learning", "neural", "gpt", "agent"}

var impactKeywords = []string{"help", "reduce", "improve", "save", "access", "health", "climate", "education"}

// Synthetic derives a deterministic evaluation from cheap local signals of
// the pitch text. It is the tier of last resort: it always succeeds, is
// never all-zero, and marks the result as a fallback. A longer, keyword-rich
// pitch scores measurably higher than a minimal one, so the leaderboard
// stays plausible even during a full provider outage.
func Synthetic(pitch string) *Evaluation {
	text := strings.ToLower(strings.TrimSpace(pitch))
	length := len(text)
	words := len(strings.Fields(text))

	// Length signal: grows with the pitch up to a cap, so effort is
	// rewarded but padding is not.
	base := 25 + min(length, 1500)/30

	aiRelevance := base - 5
	if containsAny(text, aiKeywords) {
		aiRelevance = base + 10
	}

	impact := base
	if containsAny(text, impactKeywords) {
		impact = base + 5
	}

	// A pitch in the expected word range reads as deliberately written.
	clarity := 45
	if words >= 40 && words <= 160 {
		clarity = 60
	}

	ev := &Evaluation{
		AIRelevance: Clamp(aiRelevance),
		Creativity:  50,
		Impact:      Clamp(impact),
		Clarity:     clarity,
		FunFactor:   45,
		Feedback:    fallbackFeedback,
		Fallback:    true,
		EvaluatedAt: time.Now().UTC(),
	}
	ev.Total = Aggregate(ev.CriterionScores())
	return ev
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
