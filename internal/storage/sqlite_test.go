package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopctl/loopctl/internal/task"
)

func newTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := OpenSQLite(":memory:", "")
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSaveAndLoadTaskRoundTrips(t *testing.T) {
	b := newTestBackend(t)
	tk := task.New("TASK-0001", "title", "desc", "planner", []string{"a.go"}, 3, false)
	require.NoError(t, b.SaveTask(tk))

	loaded, err := b.LoadTask("TASK-0001")
	require.NoError(t, err)
	require.Equal(t, tk.Title, loaded.Title)
	require.Equal(t, task.StatusPending, loaded.Status)
}

func TestLoadMissingTaskReturnsErrNotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.LoadTask("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClaimPicksDeterministicIndex(t *testing.T) {
	b := newTestBackend(t)
	gen := task.NewGenerator(0)
	for i := 0; i < 3; i++ {
		tk := task.New(gen.Next(), "t", "d", "planner", nil, 3, false)
		require.NoError(t, b.SaveTask(tk))
	}

	claimed, err := b.Claim("worker-0", 0, "claude")
	require.NoError(t, err)
	require.Equal(t, "TASK-0001", claimed.ID, "worker index 0 takes the oldest pending task")
	require.Equal(t, task.StatusInProgress, claimed.Status)
	require.Equal(t, "worker-0", claimed.WorkerID)
}

func TestClaimReturnsErrNoPendingTasksWhenEmpty(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Claim("worker-0", 0, "claude")
	require.ErrorIs(t, err, ErrNoPendingTasks)
}

func TestClaimTwiceDoesNotDoubleAssignSameTask(t *testing.T) {
	b := newTestBackend(t)
	tk := task.New("TASK-0001", "t", "d", "planner", nil, 3, false)
	require.NoError(t, b.SaveTask(tk))

	first, err := b.Claim("worker-0", 0, "claude")
	require.NoError(t, err)
	require.Equal(t, "TASK-0001", first.ID)

	_, err = b.Claim("worker-1", 0, "codex")
	require.ErrorIs(t, err, ErrNoPendingTasks, "the only task is already in_progress")
}

func TestReleaseStuckReturnsInProgressToPending(t *testing.T) {
	b := newTestBackend(t)
	tk := task.New("TASK-0001", "t", "d", "planner", nil, 3, false)
	require.NoError(t, b.SaveTask(tk))
	_, err := b.Claim("worker-0", 0, "claude")
	require.NoError(t, err)

	n, err := b.ReleaseStuck()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	loaded, err := b.LoadTask("TASK-0001")
	require.NoError(t, err)
	require.Equal(t, task.StatusPending, loaded.Status)
	require.Empty(t, loaded.WorkerID)
}

func TestLoadAllTasksOrderedByCreation(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.SaveTask(task.New("TASK-0002", "second", "d", "planner", nil, 3, false)))
	require.NoError(t, b.SaveTask(task.New("TASK-0001", "first", "d", "planner", nil, 3, false)))

	all, err := b.LoadAllTasks()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "TASK-0002", all[0].ID)
	require.Equal(t, "TASK-0001", all[1].ID)
}
