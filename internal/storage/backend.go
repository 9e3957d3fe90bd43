// Package storage provides the Task Store and Session State persistence
// layer. Two backends are implemented: an embedded SQLite backend (the
// default, zero-configuration mode) and a Postgres backend for teams that
// share one engine across machines. Both mirror their state out to the
// JSON snapshot files under the project's state directory on every write,
// so the files stay human-inspectable even in database-primary mode.
package storage

import (
	"errors"
	"time"

	"github.com/loopctl/loopctl/internal/agentpool"
	"github.com/loopctl/loopctl/internal/session"
	"github.com/loopctl/loopctl/internal/task"
)

// ErrNoPendingTasks is returned by Claim when there is nothing to claim.
var ErrNoPendingTasks = errors.New("storage: no pending tasks")

// ErrNotFound is returned by Load* methods when the row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Backend is the storage abstraction used by the Task Store and Session
// State. All implementations must be safe for concurrent use; Claim in
// particular must serialize against concurrent callers so two workers can
// never receive the same task.
type Backend interface {
	// Task operations
	SaveTask(t *task.Task) error
	LoadTask(id string) (*task.Task, error)
	LoadAllTasks() ([]*task.Task, error)
	DeleteTask(id string) error

	// Claim atomically selects one pending task for (workerIndex mod n)
	// among the currently pending list ordered by creation time, where n is
	// the number of pending tasks, moves it to in_progress, and returns it.
	// Returns ErrNoPendingTasks when the pending list is empty.
	Claim(workerID string, workerIndex int, agentKind string) (*task.Task, error)

	// ReleaseStuck moves every in_progress task back to pending, clearing
	// its assignment. Used at cycle boundaries and on resume.
	ReleaseStuck() (int, error)

	// Session operations
	SaveSession(s *session.Session) error
	LoadSession(id string) (*session.Session, error)

	// Agent pool operations
	SaveAgentPool(id string, states []agentpool.State) error
	LoadAgentPool(id string) ([]agentpool.State, error)

	Close() error
}

// claimIndex implements the deterministic k-mod-n worker claim policy over
// an ordered slice of pending task IDs.
func claimIndex(pendingIDs []string, workerIndex int) (string, bool) {
	n := len(pendingIDs)
	if n == 0 {
		return "", false
	}
	k := workerIndex % n
	if k < 0 {
		k += n
	}
	return pendingIDs[k], true
}

// snapshotDir, when non-empty, is the directory that SaveTask/SaveSession/
// SaveAgentPool mirror their JSON snapshots into after every successful
// database write.
type snapshotDir string

func (d snapshotDir) enabled() bool { return d != "" }

// nowFunc exists so tests can substitute a deterministic clock.
var nowFunc = time.Now
