package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/pitcharena/internal/eval"
	"github.com/kalambet/pitcharena/internal/queue"
	"github.com/kalambet/pitcharena/internal/rubric"
	"github.com/kalambet/pitcharena/internal/storage"
)

// --- mocks ---

type mockQueue struct {
	enqueueFn func(sub eval.Submission) (string, error)
	statusFn  func(id string) (queue.Job, error)
	pending   int

	submissions []eval.Submission
}

func (m *mockQueue) Enqueue(sub eval.Submission) (string, error) {
	m.submissions = append(m.submissions, sub)
	if m.enqueueFn != nil {
		return m.enqueueFn(sub)
	}
	return "job-1", nil
}

func (m *mockQueue) Status(id string) (queue.Job, error) {
	if m.statusFn != nil {
		return m.statusFn(id)
	}
	return queue.Job{}, queue.ErrNotFound
}

func (m *mockQueue) Pending() int { return m.pending }

type mockStore struct {
	leaderboardFn func(limit int) ([]storage.LeaderboardEntry, error)
	profileFn     func(identity string) (storage.Profile, error)
}

func (m *mockStore) Leaderboard(limit int) ([]storage.LeaderboardEntry, error) {
	if m.leaderboardFn != nil {
		return m.leaderboardFn(limit)
	}
	return nil, nil
}

func (m *mockStore) GetProfile(identity string) (storage.Profile, error) {
	if m.profileFn != nil {
		return m.profileFn(identity)
	}
	return storage.Profile{}, storage.ErrNotFound
}

type mockChat struct {
	replyFn  func(message string) (string, error)
	messages []string
}

func (m *mockChat) Reply(_ context.Context, message string) (string, error) {
	m.messages = append(m.messages, message)
	if m.replyFn != nil {
		return m.replyFn(message)
	}
	return "Start with a FastAPI route and a SQLite table.", nil
}

// --- helpers ---

func validPitch() string {
	return strings.Repeat("An AI service that reviews startup pitches. ", 3)
}

func submitBody(identity, name, pitch string) string {
	b, _ := json.Marshal(map[string]string{
		"identity": identity,
		"name":     name,
		"track":    "CS",
		"entry":    "1RV23CS001",
		"pitch":    pitch,
	})
	return string(b)
}

func doRequest(t *testing.T, handler http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestSubmitPitch_Accepted(t *testing.T) {
	q := &mockQueue{}
	handler := NewAppHandler(AppDeps{Queue: q, Store: &mockStore{}})

	rec := doRequest(t, handler, http.MethodPost, "/v1/pitches", submitBody("uid-1", "Dana", validPitch()))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["job_id"] != "job-1" {
		t.Errorf("job_id = %v, want job-1", resp["job_id"])
	}
	if resp["status"] != "queued" {
		t.Errorf("status = %v, want queued", resp["status"])
	}

	if len(q.submissions) != 1 {
		t.Fatalf("enqueued %d submissions, want 1", len(q.submissions))
	}
	sub := q.submissions[0]
	if sub.Identity != "uid-1" || sub.Name != "Dana" || sub.Track != "CS" {
		t.Errorf("submission = %+v", sub)
	}
	if sub.ReceivedAt.IsZero() {
		t.Error("submission has no receipt time")
	}
}

func TestSubmitPitch_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing identity", submitBody("", "Dana", validPitch())},
		{"missing name", submitBody("uid-1", "", validPitch())},
		{"pitch too short", submitBody("uid-1", "Dana", "too short")},
		{"pitch too long", submitBody("uid-1", "Dana", strings.Repeat("x", 2001))},
		{"not json", "not json at all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &mockQueue{}
			handler := NewAppHandler(AppDeps{Queue: q, Store: &mockStore{}})

			rec := doRequest(t, handler, http.MethodPost, "/v1/pitches", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if len(q.submissions) != 0 {
				t.Error("invalid request reached the queue")
			}
		})
	}
}

func TestSubmitPitch_Duplicate(t *testing.T) {
	q := &mockQueue{
		enqueueFn: func(eval.Submission) (string, error) {
			return "", queue.ErrDuplicateSubmission
		},
	}
	handler := NewAppHandler(AppDeps{Queue: q, Store: &mockStore{}})

	rec := doRequest(t, handler, http.MethodPost, "/v1/pitches", submitBody("uid-1", "Dana", validPitch()))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestSubmitPitch_QueueFull(t *testing.T) {
	q := &mockQueue{
		enqueueFn: func(eval.Submission) (string, error) {
			return "", queue.ErrQueueFull
		},
	}
	handler := NewAppHandler(AppDeps{Queue: q, Store: &mockStore{}})

	rec := doRequest(t, handler, http.MethodPost, "/v1/pitches", submitBody("uid-1", "Dana", validPitch()))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestJobStatus_Completed(t *testing.T) {
	completed := time.Now().UTC()
	q := &mockQueue{
		statusFn: func(id string) (queue.Job, error) {
			if id != "job-1" {
				return queue.Job{}, queue.ErrNotFound
			}
			return queue.Job{
				ID:     "job-1",
				Status: queue.StatusCompleted,
				Result: &rubric.Evaluation{
					AIRelevance: 80, Creativity: 70, Impact: 75,
					Clarity: 72, FunFactor: 68, Total: 73,
					Feedback: "A focused pitch. The revenue model needs one more sentence of detail.",
				},
				EnqueuedAt:  completed.Add(-time.Minute),
				CompletedAt: completed,
			}, nil
		},
	}
	handler := NewAppHandler(AppDeps{Queue: q, Store: &mockStore{}})

	rec := doRequest(t, handler, http.MethodGet, "/v1/jobs/job-1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp JobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "completed" {
		t.Errorf("Status = %q, want completed", resp.Status)
	}
	if resp.Result == nil || resp.Result.Total != 73 {
		t.Errorf("Result = %+v", resp.Result)
	}
	if resp.CompletedAt == nil {
		t.Error("CompletedAt missing for a completed job")
	}
}

func TestJobStatus_Queued_OmitsResult(t *testing.T) {
	q := &mockQueue{
		statusFn: func(id string) (queue.Job, error) {
			return queue.Job{ID: id, Status: queue.StatusQueued, EnqueuedAt: time.Now().UTC()}, nil
		},
	}
	handler := NewAppHandler(AppDeps{Queue: q, Store: &mockStore{}})

	rec := doRequest(t, handler, http.MethodGet, "/v1/jobs/job-1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if strings.Contains(body, "result") || strings.Contains(body, "completedAt") {
		t.Errorf("queued job response leaks terminal fields: %s", body)
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	handler := NewAppHandler(AppDeps{Queue: &mockQueue{}, Store: &mockStore{}})

	rec := doRequest(t, handler, http.MethodGet, "/v1/jobs/ghost", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestLeaderboard(t *testing.T) {
	var gotLimit int
	store := &mockStore{
		leaderboardFn: func(limit int) ([]storage.LeaderboardEntry, error) {
			gotLimit = limit
			return []storage.LeaderboardEntry{
				{Identity: "uid-1", Name: "Dana", Score: 90},
				{Identity: "uid-2", Name: "Ravi", Score: 82},
			}, nil
		},
	}
	handler := NewAppHandler(AppDeps{Queue: &mockQueue{}, Store: store})

	rec := doRequest(t, handler, http.MethodGet, "/v1/leaderboard?limit=5", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotLimit != 5 {
		t.Errorf("limit = %d, want 5", gotLimit)
	}

	var entries []storage.LeaderboardEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "Dana" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestLeaderboard_EmptyIsArray(t *testing.T) {
	handler := NewAppHandler(AppDeps{Queue: &mockQueue{}, Store: &mockStore{}})

	rec := doRequest(t, handler, http.MethodGet, "/v1/leaderboard", "")

	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestLeaderboard_LimitClamped(t *testing.T) {
	var gotLimit int
	store := &mockStore{
		leaderboardFn: func(limit int) ([]storage.LeaderboardEntry, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	handler := NewAppHandler(AppDeps{Queue: &mockQueue{}, Store: store})

	doRequest(t, handler, http.MethodGet, "/v1/leaderboard?limit=9999", "")
	if gotLimit != 100 {
		t.Errorf("limit = %d, want clamp to 100", gotLimit)
	}

	doRequest(t, handler, http.MethodGet, "/v1/leaderboard?limit=bogus", "")
	if gotLimit != 20 {
		t.Errorf("limit = %d, want default 20", gotLimit)
	}
}

func TestGetProfile(t *testing.T) {
	store := &mockStore{
		profileFn: func(identity string) (storage.Profile, error) {
			if identity != "uid-1" {
				return storage.Profile{}, storage.ErrNotFound
			}
			return storage.Profile{
				Identity:     "uid-1",
				Name:         "Dana",
				PersonalBest: 88,
				HasSubmitted: true,
			}, nil
		},
	}
	handler := NewAppHandler(AppDeps{Queue: &mockQueue{}, Store: store})

	rec := doRequest(t, handler, http.MethodGet, "/v1/profiles/uid-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var p storage.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if p.PersonalBest != 88 || !p.HasSubmitted {
		t.Errorf("profile = %+v", p)
	}

	rec = doRequest(t, handler, http.MethodGet, "/v1/profiles/ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestChat(t *testing.T) {
	c := &mockChat{}
	handler := NewAppHandler(AppDeps{Queue: &mockQueue{}, Store: &mockStore{}, Chat: c})

	body := `{"message": "How do I persist submissions in SQLite?"}`
	rec := doRequest(t, handler, http.MethodPost, "/v1/chat", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["reply"] == "" {
		t.Error("response has no reply")
	}
	if len(c.messages) != 1 || c.messages[0] != "How do I persist submissions in SQLite?" {
		t.Errorf("messages = %v", c.messages)
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	c := &mockChat{}
	handler := NewAppHandler(AppDeps{Queue: &mockQueue{}, Store: &mockStore{}, Chat: c})

	rec := doRequest(t, handler, http.MethodPost, "/v1/chat", `{"message": "   "}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(c.messages) != 0 {
		t.Error("blank message reached the assistant")
	}
}

func TestChat_GenerationFailure(t *testing.T) {
	c := &mockChat{
		replyFn: func(string) (string, error) {
			return "", errors.New("upstream rate limited")
		},
	}
	handler := NewAppHandler(AppDeps{Queue: &mockQueue{}, Store: &mockStore{}, Chat: c})

	rec := doRequest(t, handler, http.MethodPost, "/v1/chat", `{"message": "help me wire up express"}`)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestChat_NotConfigured(t *testing.T) {
	handler := NewAppHandler(AppDeps{Queue: &mockQueue{}, Store: &mockStore{}})

	rec := doRequest(t, handler, http.MethodPost, "/v1/chat", `{"message": "hello"}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHealth(t *testing.T) {
	handler := NewAppHandler(AppDeps{Queue: &mockQueue{pending: 3}, Store: &mockStore{}})

	rec := doRequest(t, handler, http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if fmt.Sprintf("%v", resp["pending"]) != "3" {
		t.Errorf("pending = %v, want 3", resp["pending"])
	}
}
