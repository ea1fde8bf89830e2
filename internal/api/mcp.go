package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/pitcharena/internal/eval"
	"github.com/kalambet/pitcharena/internal/queue"
	"github.com/kalambet/pitcharena/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. It reuses the HTTP
// layer's queue, store, and chat abstractions.
type MCPDeps struct {
	Queue JobQueue
	Store ResultStore
	Chat  ChatAssistant // optional; if nil, the chat tool reports unavailable
}

// NewMCPServer creates an MCP server with the arena tools and the
// leaderboard resource registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"pitcharena",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("pitcharena — submit AI startup pitches for asynchronous scoring and track the event leaderboard."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("submit_pitch",
			mcp.WithDescription("Submit a startup pitch for asynchronous evaluation. Returns a job id to poll with get_job_status."),
			mcp.WithString("identity", mcp.Description("Stable participant id; one scored pitch per identity"), mcp.Required()),
			mcp.WithString("name", mcp.Description("Display name for the leaderboard"), mcp.Required()),
			mcp.WithString("pitch", mcp.Description("The pitch text (50-2000 characters)"), mcp.Required()),
			mcp.WithString("track", mcp.Description("Optional track or branch label")),
			mcp.WithString("entry", mcp.Description("Optional registration or entry number")),
		),
		mcpSubmitPitch(deps),
	)

	s.AddTool(
		mcp.NewTool("get_job_status",
			mcp.WithDescription("Poll an evaluation job. Returns the score and feedback once the job completes."),
			mcp.WithString("job_id", mcp.Description("Job id returned by submit_pitch"), mcp.Required()),
		),
		mcpJobStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("get_leaderboard",
			mcp.WithDescription("Read the public leaderboard, best scores first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 20)")),
		),
		mcpLeaderboard(deps),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Ask the arena's coding assistant for help turning a pitched idea into prototype code. Implementation help only; it does not score or judge."),
			mcp.WithString("message", mcp.Description("The question or request for the assistant"), mcp.Required()),
		),
		mcpChat(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"arena://leaderboard",
			"Leaderboard",
			mcp.WithResourceDescription("Current public leaderboard as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLeaderboard(deps),
	)

	return s
}

func mcpSubmitPitch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		identity, err := req.RequireString("identity")
		if err != nil {
			return mcpError("identity is required"), nil
		}
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		pitch, err := req.RequireString("pitch")
		if err != nil {
			return mcpError("pitch is required"), nil
		}

		pitch = strings.TrimSpace(pitch)
		if n := utf8.RuneCountInString(pitch); n < minPitchLength || n > maxPitchLength {
			return mcpError(fmt.Sprintf("pitch must be %d-%d characters, got %d", minPitchLength, maxPitchLength, n)), nil
		}

		id, err := deps.Queue.Enqueue(eval.Submission{
			Identity:   strings.TrimSpace(identity),
			Name:       strings.TrimSpace(name),
			Track:      req.GetString("track", ""),
			Entry:      req.GetString("entry", ""),
			Pitch:      pitch,
			ReceivedAt: time.Now().UTC(),
		})
		switch {
		case errors.Is(err, queue.ErrDuplicateSubmission):
			return mcpError("this identity already has a scored submission"), nil
		case errors.Is(err, queue.ErrQueueFull):
			return mcpError("the evaluation queue is full, try again later"), nil
		case err != nil:
			return mcpError(fmt.Sprintf("failed to enqueue submission: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Pitch queued for evaluation, job id %s", id)), nil
	}
}

func mcpJobStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}

		job, err := deps.Queue.Status(jobID)
		if errors.Is(err, queue.ErrNotFound) {
			return mcpError("job not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get job: %v", err)), nil
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

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal job: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLeaderboard(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		entries, err := deps.Store.Leaderboard(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load leaderboard: %v", err)), nil
		}
		if len(entries) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal leaderboard: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Chat == nil {
			return mcpError("chat assistant is not configured"), nil
		}

		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		reply, err := deps.Chat.Reply(ctx, message)
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}
		return mcpText(reply), nil
	}
}

func mcpResourceLeaderboard(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Store.Leaderboard(100)
		if err != nil {
			return nil, fmt.Errorf("failed to load leaderboard: %w", err)
		}
		if entries == nil {
			entries = []storage.LeaderboardEntry{}
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal leaderboard: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
