package task

import (
	"testing"
	"time"

	"github.com/loopctl/loopctl/internal/classify"
	"github.com/stretchr/testify/require"
)

func TestNewTaskIsPending(t *testing.T) {
	tk := New("TASK-0001", "title", "desc", "planner", nil, 0, false)
	require.Equal(t, StatusPending, tk.Status)
	require.Equal(t, DefaultMaxAttempts, tk.MaxAttempts)
	require.Empty(t, tk.WorkerID)
}

func TestClaimSetsWorkerAndIncrementsAttempts(t *testing.T) {
	tk := New("TASK-0001", "t", "d", "planner", nil, 3, false)
	tk.Claim("worker-0", "claude")

	require.Equal(t, StatusInProgress, tk.Status)
	require.Equal(t, "worker-0", tk.WorkerID)
	require.Equal(t, "claude", tk.AssignedAgent)
	require.Equal(t, 1, tk.Attempts)
	require.NotNil(t, tk.StartedAt)
}

func TestCompleteAppendsAttemptAndTerminal(t *testing.T) {
	tk := New("TASK-0001", "t", "d", "planner", nil, 3, false)
	tk.Claim("worker-0", "claude")
	start := *tk.StartedAt
	tk.Complete("claude", start)

	require.True(t, tk.Status.IsTerminal())
	require.Equal(t, StatusCompleted, tk.Status)
	require.Len(t, tk.AgentHistory, 1)
	require.Equal(t, ResultCompleted, tk.AgentHistory[0].Result)
	require.Empty(t, tk.WorkerID)
}

func TestRecordErrorThenReleaseKeepsAttemptsMonotonic(t *testing.T) {
	tk := New("TASK-0001", "t", "d", "planner", nil, 3, false)
	tk.Claim("worker-0", "claude")
	start := *tk.StartedAt

	info := classify.NewInfo("claude", "boom", "crashed", classify.CategoryCrash)
	tk.RecordError("claude", start, info)
	require.Equal(t, 1, tk.Attempts)
	require.NotNil(t, tk.LastError)

	tk.Release()
	require.Equal(t, StatusPending, tk.Status)
	require.Empty(t, tk.WorkerID)
	require.Equal(t, 1, tk.Attempts, "release must not reset attempts")

	tk.Claim("worker-1", "codex")
	require.Equal(t, 2, tk.Attempts)
}

func TestMarkFailedIsTerminal(t *testing.T) {
	tk := New("TASK-0001", "t", "d", "planner", nil, 1, false)
	tk.Claim("worker-0", "claude")
	tk.MarkFailed()
	require.True(t, tk.Status.IsTerminal())
}

func TestGeneratorProducesUniqueIDs(t *testing.T) {
	g := NewGenerator(0)
	a := g.Next()
	b := g.Next()
	require.NotEqual(t, a, b)
	require.Equal(t, "TASK-0001", a)
	require.Equal(t, "TASK-0002", b)
}

func TestAttemptResultForMapsCategories(t *testing.T) {
	tk := New("TASK-0001", "t", "d", "planner", nil, 3, false)
	tk.Claim("w", "claude")
	tk.RecordError("claude", time.Now(), classify.NewInfo("claude", "x", "timed out", classify.CategoryTimeout))
	require.Equal(t, ResultTimeout, tk.AgentHistory[0].Result)
}
