package eval

import (
	"fmt"
	"strings"

	"github.com/kalambet/pitcharena/internal/enrich"
)

const rubricInstructions = `Score each of the following criteria as an integer from 0 to 100. Be critical and specific.
- aiRelevance: how central and plausible is the use of AI in this idea?
- creativity: how original is the concept?
- impact: what real-world benefit would it deliver, and how timely is it?
- clarity: how clearly is the pitch written and structured?
- funFactor: how memorable or delightful is the idea?

Also provide constructive feedback of 2-3 short paragraphs covering strengths and concrete improvements.

Respond ONLY with a JSON object (no markdown) with exactly these keys:
{"aiRelevance": 0-100, "creativity": 0-100, "impact": 0-100, "clarity": 0-100, "funFactor": 0-100, "totalScore": 0-100, "feedback": "<2-3 paragraphs>"}`

// baselinePrompt builds the rubric-only prompt, no retrieved context.
func baselinePrompt(sub Submission) string {
	var sb strings.Builder
	sb.WriteString("You are an expert judge for a startup pitch competition.\n")
	sb.WriteString("Evaluate the following pitch on its own merits.\n\n")
	writeSubmission(&sb, sub)
	sb.WriteString(rubricInstructions)
	return sb.String()
}

// enrichedPrompt embeds the retrieved context bundle ahead of the rubric
// so the model can judge the idea against the current market.
func enrichedPrompt(sub Submission, bundle *enrich.Bundle) string {
	var sb strings.Builder
	sb.WriteString("You are an expert judge for a startup pitch competition.\n")
	sb.WriteString("Evaluate the pitch using both the idea itself and the web context below.\n\n")
	writeSubmission(&sb, sub)
	sb.WriteString(bundle.Render())
	sb.WriteString("\nUse this context to judge the idea realistically against what already exists today.\n\n")
	sb.WriteString(rubricInstructions)
	return sb.String()
}

func writeSubmission(sb *strings.Builder, sub Submission) {
	if sub.Name != "" {
		fmt.Fprintf(sb, "Participant: %s", sub.Name)
		if sub.Track != "" {
			fmt.Fprintf(sb, " (%s)", sub.Track)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(sb, "Pitch:\n%s\n\n", strings.TrimSpace(sub.Pitch))
}
