package models

import (
	"time"

	"github.com/joescharf/strand/internal/statemachine"
)

// ThreadType classifies a session's collaboration pattern.
type ThreadType string

const (
	ThreadTypeBase     ThreadType = "base"
	ThreadTypeParallel ThreadType = "parallel"
	ThreadTypeChained  ThreadType = "chained"
	ThreadTypeFusion   ThreadType = "fusion"
	ThreadTypeBig      ThreadType = "big"
	ThreadTypeLong     ThreadType = "long"
)

// TaskStatus represents the workflow state of a session's task.
type TaskStatus string

const (
	TaskStatusReady      TaskStatus = "ready"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusInReview   TaskStatus = "in_review"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusArchived   TaskStatus = "archived"
)

// ThreadTypeMachine governs which thread-type changes a session may make.
var ThreadTypeMachine = statemachine.MustNew(statemachine.Config{
	Name: "thread-type",
	States: []string{
		string(ThreadTypeBase),
		string(ThreadTypeParallel),
		string(ThreadTypeChained),
		string(ThreadTypeFusion),
		string(ThreadTypeBig),
		string(ThreadTypeLong),
	},
	Transitions: map[string][]string{
		string(ThreadTypeBase):     {string(ThreadTypeParallel), string(ThreadTypeBig), string(ThreadTypeLong)},
		string(ThreadTypeParallel): {string(ThreadTypeBase), string(ThreadTypeFusion), string(ThreadTypeChained)},
		string(ThreadTypeChained):  {string(ThreadTypeParallel), string(ThreadTypeFusion)},
		string(ThreadTypeFusion):   {string(ThreadTypeBase)},
		string(ThreadTypeBig):      {string(ThreadTypeParallel), string(ThreadTypeFusion)},
		string(ThreadTypeLong):     {string(ThreadTypeBase), string(ThreadTypeParallel)},
	},
	Initial: string(ThreadTypeBase),
})

// TaskStatusMachine governs task workflow transitions. Archived is terminal.
var TaskStatusMachine = statemachine.MustNew(statemachine.Config{
	Name: "task-status",
	States: []string{
		string(TaskStatusReady),
		string(TaskStatusInProgress),
		string(TaskStatusInReview),
		string(TaskStatusBlocked),
		string(TaskStatusCompleted),
		string(TaskStatusArchived),
	},
	Transitions: map[string][]string{
		string(TaskStatusReady):      {string(TaskStatusInProgress), string(TaskStatusBlocked), string(TaskStatusArchived)},
		string(TaskStatusInProgress): {string(TaskStatusInReview), string(TaskStatusBlocked), string(TaskStatusReady)},
		string(TaskStatusInReview):   {string(TaskStatusCompleted), string(TaskStatusInProgress), string(TaskStatusBlocked)},
		string(TaskStatusBlocked):    {string(TaskStatusReady), string(TaskStatusInProgress)},
		string(TaskStatusCompleted):  {string(TaskStatusArchived)},
	},
	Initial: string(TaskStatusReady),
})

// Session represents one unit of parallel work backed by a git worktree.
// Exactly one session per repository has IsMain set; it denotes the primary
// checkout and is never merged or deleted.
type Session struct {
	ID         string
	Path       string
	Branch     string
	Nickname   string
	IsMain     bool
	ThreadType ThreadType
	TaskStatus TaskStatus
	Story      string
	LastActive time.Time
	MergedAt   *time.Time
	CreatedAt  time.Time
}

// Merged reports whether the session has reached its terminal merged state.
func (s *Session) Merged() bool {
	return s.MergedAt != nil
}

// DisplayName returns the nickname when set, otherwise the branch name.
func (s *Session) DisplayName() string {
	if s.Nickname != "" {
		return s.Nickname
	}
	return s.Branch
}
