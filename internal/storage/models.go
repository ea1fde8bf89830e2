package storage

import (
	"errors"
	"time"

	"github.com/kalambet/pitcharena/internal/rubric"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// LeaderboardEntry is the public ranking payload: one row per identity,
// exposing only the aggregate score.
type LeaderboardEntry struct {
	Identity  string    `json:"identity"`
	Name      string    `json:"name"`
	Track     string    `json:"track,omitempty"`
	Score     int       `json:"score"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile is the private per-identity payload: the full rubric and
// feedback, never exposed through the ranking API.
type Profile struct {
	Identity     string            `json:"identity"`
	Name         string            `json:"name"`
	Track        string            `json:"track,omitempty"`
	Entry        string            `json:"entry,omitempty"`
	Evaluation   rubric.Evaluation `json:"lastEvaluation"`
	EvaluatedAt  time.Time         `json:"evaluatedAt"`
	PersonalBest int               `json:"personalBestScore"`
	HasSubmitted bool              `json:"hasSubmitted"`
}
