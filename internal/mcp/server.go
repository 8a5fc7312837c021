// Package mcp exposes the session registry and merge engine as MCP tools
// over stdio, so coding agents can inspect and land their own sessions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/strand/internal/gitstate"
	"github.com/joescharf/strand/internal/merge"
	"github.com/joescharf/strand/internal/models"
	"github.com/joescharf/strand/internal/registry"
)

// Server wraps the strand data layer and exposes it as MCP tools.
type Server struct {
	store    registry.Store
	detector *gitstate.Detector
	engine   *merge.Engine
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(store registry.Store, detector *gitstate.Detector, engine *merge.Engine) *Server {
	return &Server{store: store, detector: detector, engine: engine}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("strand", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.sessionPhaseTool())
	srv.AddTool(s.checkMergeTool())
	srv.AddTool(s.mergeSessionTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// resolveSession finds a session by branch name, nickname, or id.
func (s *Server) resolveSession(ctx context.Context, name string) (*models.Session, error) {
	if sess, err := s.store.GetSessionByBranch(ctx, name); err == nil {
		return sess, nil
	}
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if sess.Nickname == name || sess.ID == name {
			return sess, nil
		}
	}
	return nil, fmt.Errorf("no session matches %q", name)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// strand_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("strand_list_sessions",
		mcp.WithDescription("List all registered sessions with their derived lifecycle phase. Returns a JSON array with branch, nickname, path, thread_type, task_status, phase (todo/coding/review/merged), and commits_ahead."),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	type sessionOut struct {
		ID           string `json:"id"`
		Branch       string `json:"branch"`
		Nickname     string `json:"nickname,omitempty"`
		Path         string `json:"path"`
		IsMain       bool   `json:"is_main"`
		ThreadType   string `json:"thread_type"`
		TaskStatus   string `json:"task_status"`
		Phase        string `json:"phase"`
		CommitsAhead int    `json:"commits_ahead"`
	}

	phases := s.detector.PhasesFor(ctx, sessions)
	out := make([]sessionOut, len(phases))
	for i, sp := range phases {
		out[i] = sessionOut{
			ID:         sp.Session.ID,
			Branch:     sp.Session.Branch,
			Nickname:   sp.Session.Nickname,
			Path:       sp.Session.Path,
			IsMain:     sp.Session.IsMain,
			ThreadType: string(sp.Session.ThreadType),
			TaskStatus: string(sp.Session.TaskStatus),
			Phase:      string(sp.Phase),
		}
		if !sp.Session.IsMain {
			out[i].CommitsAhead = s.detector.CommitsAhead(ctx, sp.Session.Path)
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// strand_session_phase
func (s *Server) sessionPhaseTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("strand_session_phase",
		mcp.WithDescription("Get one session's derived lifecycle phase plus the raw signals behind it: current branch, commits ahead of main, and working tree dirtiness."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session branch name, nickname, or id")),
	)
	return tool, s.handleSessionPhase
}

func (s *Server) handleSessionPhase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session"), nil
	}

	sess, err := s.resolveSession(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := map[string]any{
		"branch":      sess.Branch,
		"path":        sess.Path,
		"is_main":     sess.IsMain,
		"thread_type": string(sess.ThreadType),
		"task_status": string(sess.TaskStatus),
		"phase":       string(s.detector.PhaseFor(ctx, sess)),
	}
	if !sess.IsMain {
		result["commits_ahead"] = s.detector.CommitsAhead(ctx, sess.Path)
		result["dirty"] = s.detector.IsDirty(ctx, sess.Path)
	}
	if sess.MergedAt != nil {
		result["merged_at"] = sess.MergedAt.Format(time.RFC3339)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal phase: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// strand_check_merge
func (s *Server) checkMergeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("strand_check_merge",
		mcp.WithDescription("Check whether a session can merge into main right now. Reports mergeable, a reason code when blocked (already_main/already_merged/uncommitted_changes/no_changes), whether conflicts exist, and a preview of incoming commits and files. Read-only."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session branch name, nickname, or id")),
	)
	return tool, s.handleCheckMerge
}

func (s *Server) handleCheckMerge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session"), nil
	}

	sess, err := s.resolveSession(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	check, err := s.engine.CheckMergeability(ctx, sess)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("mergeability check failed: %v", err)), nil
	}

	result := map[string]any{
		"branch":        sess.Branch,
		"mergeable":     check.Mergeable,
		"has_conflicts": check.HasConflicts,
		"commits_ahead": check.CommitsAhead,
	}
	if check.Reason != "" {
		result["reason"] = check.Reason
		result["detail"] = check.Detail
	}

	if check.Mergeable {
		if preview, err := s.engine.GetPreview(ctx, sess); err == nil {
			result["commits"] = preview.Commits
			result["files"] = preview.Files
		}
		if check.HasConflicts {
			if files, err := s.engine.ConflictingFiles(ctx, sess); err == nil {
				result["conflicting_files"] = files
			}
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal check: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// strand_merge_session
func (s *Server) mergeSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("strand_merge_session",
		mcp.WithDescription("Merge a session into main with categorized automatic conflict resolution, then delete its worktree, branch, and registry record. If any conflict cannot be auto-resolved the whole merge is aborted and the repository is left untouched."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session branch name, nickname, or id")),
		mcp.WithString("strategy", mcp.Description("Merge strategy: merge (default) or squash")),
		mcp.WithString("message", mcp.Description("Merge commit message; defaults to a generated one")),
	)
	return tool, s.handleMergeSession
}

func (s *Server) handleMergeSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session"), nil
	}

	sess, err := s.resolveSession(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := merge.Options{
		Strategy:       request.GetString("strategy", merge.StrategyMerge),
		Message:        request.GetString("message", ""),
		DeleteBranch:   true,
		DeleteWorktree: true,
	}

	res := s.engine.SmartMerge(ctx, sess, opts)

	result := map[string]any{
		"branch":  sess.Branch,
		"success": res.Success,
		"merged":  res.Merged,
	}
	if res.Reason != "" {
		result["reason"] = res.Reason
	}
	if res.Error != "" {
		result["error"] = res.Error
	}
	if len(res.AutoResolved) > 0 {
		result["auto_resolved"] = res.AutoResolved
	}
	if len(res.Failed) > 0 {
		result["failed_files"] = res.Failed
	}
	if res.Merged {
		result["worktree_deleted"] = res.WorktreeDeleted
		result["branch_deleted"] = res.BranchDeleted
		result["unregistered"] = res.Unregistered
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
