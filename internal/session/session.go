// Package session defines the Session State entity: the goal, branch,
// cycle counter, aggregate statistics, pause information, and the
// checkpoint used to resume a crashed or interrupted run.
package session

import "time"

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusRunning        Status = "running"
	StatusPausedManual   Status = "paused_manual"
	StatusPausedNoAgents Status = "paused_no_agents"
	StatusPausedError    Status = "paused_error"
	StatusCompleted      Status = "completed"
	StatusAborted        Status = "aborted"
)

// IsPaused reports whether s is one of the paused_* statuses.
func (s Status) IsPaused() bool {
	switch s {
	case StatusPausedManual, StatusPausedNoAgents, StatusPausedError:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is a terminal status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Checkpoint is written at cycle boundaries so a crashed run can resume.
type Checkpoint struct {
	LastCompletedTask string    `json:"last_completed_task,omitempty"`
	PendingTasks      []string  `json:"pending_tasks,omitempty"`
	InProgressTasks   []string  `json:"in_progress_tasks,omitempty"`
	CycleStartedAt    time.Time `json:"cycle_started_at"`
}

// Stats aggregates counts across the whole session.
type Stats struct {
	TasksCreated   int `json:"tasks_created"`
	TasksCompleted int `json:"tasks_completed"`
	TasksFailed    int `json:"tasks_failed"`
}

// PauseInfo records why and when a session was paused.
type PauseInfo struct {
	Reason   string    `json:"reason"`
	PausedAt time.Time `json:"paused_at"`
}

// Session is the top-level state for one run of the engine against one goal.
type Session struct {
	SessionID    string     `json:"session_id"`
	Goal         string     `json:"goal"`
	ProjectPath  string     `json:"project_path"`
	Status       Status     `json:"status"`
	CurrentCycle int        `json:"current_cycle"`
	MaxCycles    int        `json:"max_cycles"`
	Branch       string     `json:"branch"`
	BaseBranch   string     `json:"base_branch,omitempty"`
	Checkpoint   Checkpoint `json:"checkpoint"`
	Stats        Stats      `json:"stats"`
	Pause        *PauseInfo `json:"pause,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// New creates a running Session for goal, identified by sessionID.
func New(sessionID, goal, projectPath, branch string, maxCycles int) *Session {
	now := time.Now()
	return &Session{
		SessionID:    sessionID,
		Goal:         goal,
		ProjectPath:  projectPath,
		Status:       StatusRunning,
		CurrentCycle: 0,
		MaxCycles:    maxCycles,
		Branch:       branch,
		StartedAt:    now,
		UpdatedAt:    now,
	}
}

// Touch stamps UpdatedAt to now. Callers must call this after every mutation
// so the invariant UpdatedAt >= StartedAt holds and resume logic can trust
// the timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// MarkPaused moves the session into a paused_* status, recording why in Pause.
func (s *Session) MarkPaused(reason string, status Status) {
	if !status.IsPaused() {
		status = StatusPausedError
	}
	s.Status = status
	s.Pause = &PauseInfo{Reason: reason, PausedAt: time.Now()}
	s.Touch()
}

// Resume clears pause information and returns the session to running.
func (s *Session) Resume() {
	s.Status = StatusRunning
	s.Pause = nil
	s.Touch()
}

// Result is the user-visible outcome returned when the engine terminates.
type Result struct {
	Status         Status        `json:"status"`
	TotalCycles    int           `json:"total_cycles"`
	TasksCreated   int           `json:"tasks_created"`
	TasksCompleted int           `json:"tasks_completed"`
	TasksFailed    int           `json:"tasks_failed"`
	Duration       time.Duration `json:"duration"`
	Message        string        `json:"message"`
}
