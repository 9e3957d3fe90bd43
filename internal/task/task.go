// Package task defines the Task entity and its lifecycle invariants.
// Persistence lives in internal/storage; task itself has no I/O.
package task

import (
	"time"

	"github.com/loopctl/loopctl/internal/classify"
)

// Status is the current lifecycle state of a Task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether s is a terminal status (completed or failed).
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AttemptResult is the outcome recorded for a single AgentAttempt.
type AttemptResult string

const (
	ResultCompleted   AttemptResult = "completed"
	ResultFailed      AttemptResult = "failed"
	ResultTimeout     AttemptResult = "timeout"
	ResultRateLimited AttemptResult = "rate_limited"
)

// AgentAttempt records one start-to-finish execution of a task by one agent
// kind. The slice of AgentAttempt on a Task is append-only.
type AgentAttempt struct {
	Agent     string         `json:"agent"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Result    AttemptResult  `json:"result"`
	Error     *classify.Info `json:"error,omitempty"`
}

// Task is a single unit of work tracked by the Task Store.
type Task struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         Status         `json:"status"`
	AssignedAgent  string         `json:"assigned_agent,omitempty"`
	WorkerID       string         `json:"worker_id,omitempty"`
	Files          []string       `json:"files,omitempty"`
	NeedsWebSearch bool           `json:"needs_web_search,omitempty"`
	CreatedBy      string         `json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	Attempts       int            `json:"attempts"`
	MaxAttempts    int            `json:"max_attempts"`
	LastError      *classify.Info `json:"last_error,omitempty"`
	AgentHistory   []AgentAttempt `json:"agent_history,omitempty"`
}

// DefaultMaxAttempts is used when a caller does not specify one.
const DefaultMaxAttempts = 3

// New constructs a pending Task with the given ID. It does not persist anything.
func New(id, title, description, createdBy string, files []string, maxAttempts int, needsWebSearch bool) *Task {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Task{
		ID:             id,
		Title:          title,
		Description:    description,
		Status:         StatusPending,
		Files:          files,
		NeedsWebSearch: needsWebSearch,
		CreatedBy:      createdBy,
		CreatedAt:      time.Now(),
		MaxAttempts:    maxAttempts,
	}
}

// Claim transitions a pending task to in_progress, assigning worker and
// agent, incrementing Attempts. Callers (the Task Store) are responsible for
// ensuring this is only invoked on a task observed to be pending, under a
// serialized critical section.
func (t *Task) Claim(workerID, agentKind string) {
	t.Status = StatusInProgress
	t.WorkerID = workerID
	t.AssignedAgent = agentKind
	now := time.Now()
	t.StartedAt = &now
	t.Attempts++
}

// Complete appends a successful AgentAttempt and marks the task terminal.
func (t *Task) Complete(agentKind string, startedAt time.Time) {
	now := time.Now()
	t.AgentHistory = append(t.AgentHistory, AgentAttempt{
		Agent:     agentKind,
		StartedAt: startedAt,
		EndedAt:   now,
		Result:    ResultCompleted,
	})
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.WorkerID = ""
}

// attemptResultFor maps a classified error category onto the AgentAttempt
// result vocabulary.
func attemptResultFor(cat classify.Category) AttemptResult {
	switch cat {
	case classify.CategoryTimeout:
		return ResultTimeout
	case classify.CategoryRateLimit:
		return ResultRateLimited
	default:
		return ResultFailed
	}
}

// RecordError appends a failed AgentAttempt and sets LastError. It does not
// itself change Status; the caller decides release vs. mark_failed based on
// attempts vs. max_attempts.
func (t *Task) RecordError(agentKind string, startedAt time.Time, info classify.Info) {
	now := time.Now()
	t.AgentHistory = append(t.AgentHistory, AgentAttempt{
		Agent:     agentKind,
		StartedAt: startedAt,
		EndedAt:   now,
		Result:    attemptResultFor(info.Category),
		Error:     &info,
	})
	t.LastError = &info
}

// Release returns an in_progress task to pending, clearing its assignment.
// Attempts and history are left untouched (attempts is monotonic).
func (t *Task) Release() {
	t.Status = StatusPending
	t.WorkerID = ""
	t.AssignedAgent = ""
	t.StartedAt = nil
}

// MarkFailed makes the task terminal after exhausting retries or on a
// non-retryable category.
func (t *Task) MarkFailed() {
	t.Status = StatusFailed
	t.WorkerID = ""
}
