// Package api exposes the pitch arena over HTTP and MCP: submit a pitch,
// poll its job, read the leaderboard and per-identity profiles.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/pitcharena/internal/eval"
	"github.com/kalambet/pitcharena/internal/queue"
	"github.com/kalambet/pitcharena/internal/rubric"
	"github.com/kalambet/pitcharena/internal/storage"
)

const maxRequestBodySize = 64 << 10 // 64KB

const (
	minPitchLength = 50
	maxPitchLength = 2000
)

// JobQueue abstracts the submission queue for the API layer.
type JobQueue interface {
	Enqueue(sub eval.Submission) (string, error)
	Status(id string) (queue.Job, error)
	Pending() int
}

// ResultStore abstracts the persistence reads the API serves.
type ResultStore interface {
	Leaderboard(limit int) ([]storage.LeaderboardEntry, error)
	GetProfile(identity string) (storage.Profile, error)
}

// ChatAssistant abstracts the prototyping helper for the API layer.
type ChatAssistant interface {
	Reply(ctx context.Context, message string) (string, error)
}

type AppDeps struct {
	Queue JobQueue
	Store ResultStore
	Chat  ChatAssistant // optional; if nil, /v1/chat reports unavailable
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Post("/v1/pitches", handleSubmitPitch(deps))
	r.Get("/v1/jobs/{id}", handleJobStatus(deps))
	r.Get("/v1/leaderboard", handleLeaderboard(deps))
	r.Get("/v1/profiles/{identity}", handleGetProfile(deps))
	r.Post("/v1/chat", handleChat(deps))

	return r
}

// SubmitRequest is the submission payload. Identity is the stable
// participant id (one scored pitch per identity); name is the display
// name for the leaderboard.
type SubmitRequest struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Track    string `json:"track"`
	Entry    string `json:"entry"`
	Pitch    string `json:"pitch"`
}

func (r *SubmitRequest) validate() error {
	if strings.TrimSpace(r.Identity) == "" {
		return fmt.Errorf("identity is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	n := utf8.RuneCountInString(strings.TrimSpace(r.Pitch))
	if n < minPitchLength {
		return fmt.Errorf("pitch must be at least %d characters, got %d", minPitchLength, n)
	}
	if n > maxPitchLength {
		return fmt.Errorf("pitch must be at most %d characters, got %d", maxPitchLength, n)
	}
	return nil
}

func handleSubmitPitch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := req.validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		id, err := deps.Queue.Enqueue(eval.Submission{
			Identity:   strings.TrimSpace(req.Identity),
			Name:       strings.TrimSpace(req.Name),
			Track:      strings.TrimSpace(req.Track),
			Entry:      strings.TrimSpace(req.Entry),
			Pitch:      strings.TrimSpace(req.Pitch),
			ReceivedAt: time.Now().UTC(),
		})
		switch {
		case errors.Is(err, queue.ErrDuplicateSubmission):
			httpError(w, http.StatusConflict, "duplicate_submission", "this identity already has a scored submission")
			return
		case errors.Is(err, queue.ErrQueueFull):
			httpError(w, http.StatusTooManyRequests, "queue_full", "the evaluation queue is full, try again later")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue submission: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"job_id":   id,
			"status":   string(queue.StatusQueued),
			"position": deps.Queue.Pending(),
		})
	}
}

// JobResponse is the polling payload. Result is present only once the
// job completes; error only once it fails.
type JobResponse struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	Result      *rubric.Evaluation `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	EnqueuedAt  time.Time          `json:"enqueuedAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
}

func handleJobStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := deps.Queue.Status(id)
		if errors.Is(err, queue.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}

		resp := JobResponse{
			ID:         job.ID,
			Status:     string(job.Status),
			Result:     job.Result,
			Error:      job.Err,
			EnqueuedAt: job.EnqueuedAt,
		}
		if !job.CompletedAt.IsZero() {
			completed := job.CompletedAt
			resp.CompletedAt = &completed
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleLeaderboard(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		entries, err := deps.Store.Leaderboard(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load leaderboard: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.LeaderboardEntry{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := chi.URLParam(r, "identity")

		p, err := deps.Store.GetProfile(identity)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p)
	}
}

// ChatRequest is a single assistant message; the conversation is
// stateless on the server.
type ChatRequest struct {
	Message string `json:"message"`
}

func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Chat == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "chat assistant is not configured")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		reply, err := deps.Chat.Reply(r.Context(), req.Message)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "chat failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reply": reply})
	}
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"pending": deps.Queue.Pending(),
		})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
