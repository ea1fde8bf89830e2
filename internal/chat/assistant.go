// Package chat is the prototyping helper that runs alongside evaluation:
// a fixed-persona coding assistant participants use to turn their pitched
// idea into working prototype code during the event. It shares the
// generation stack with the evaluator but is strictly separated from
// scoring: the persona refuses to grade, and replies are free-form text,
// never rubric JSON.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// maxMessageLength bounds a single chat message.
const maxMessageLength = 4000

// persona pins the assistant to implementation help only. Participants
// build on their phones during the event, so replies must stay short and
// copy-paste ready.
const persona = `You are the arena's coding assistant. Participants are turning their pitched AI idea into a working prototype during a one-day event, mostly on phones, and you help with implementation only.

Rules:
- Answer with working code snippets or direct step-by-step instructions.
- Keep prose to at most five short bullets before the code; no paragraph longer than three sentences.
- Put all code in fenced blocks so it can be copied in one tap.
- Default to Python (FastAPI, Flask) and JavaScript (Node.js, React, Express) unless another language is requested.
- If the question is too vague to answer, ask exactly one clarifying question instead of guessing.
- You do not judge, score, or comment on the quality of ideas, and you never output rubric JSON or evaluation scores. If asked to, refuse briefly and redirect to implementation help.
- No motivational filler or small talk.

Participant message: `

// Generator is the free-form text generation dependency.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Assistant answers participant messages with the fixed persona. It is
// stateless: every message is a fresh prompt with no conversation memory.
type Assistant struct {
	gen Generator
}

func New(gen Generator) *Assistant {
	return &Assistant{gen: gen}
}

// Reply generates an assistant response to a single participant message.
func (a *Assistant) Reply(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("message is empty")
	}
	if n := utf8.RuneCountInString(message); n > maxMessageLength {
		return "", fmt.Errorf("message must be at most %d characters, got %d", maxMessageLength, n)
	}

	start := time.Now()
	reply, err := a.gen.GenerateText(ctx, persona+message)
	if err != nil {
		return "", fmt.Errorf("generating chat reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("empty chat reply")
	}

	slog.Info("chat reply generated",
		"message_chars", len(message),
		"reply_chars", len(reply),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return reply, nil
}
