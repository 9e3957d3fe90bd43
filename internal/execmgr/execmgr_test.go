package execmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loopctl/loopctl/internal/agentexec"
	"github.com/loopctl/loopctl/internal/agentpool"
	"github.com/loopctl/loopctl/internal/classify"
)

func newPoolAndManager(t *testing.T, kinds []string) (*agentpool.Pool, *Manager) {
	t.Helper()
	cooldowns := map[string]time.Duration{}
	for _, k := range kinds {
		cooldowns[k] = 20 * time.Millisecond
	}
	pool := agentpool.New(kinds, cooldowns)
	m := New(pool, kinds, t.TempDir(), "")
	return pool, m
}

func useShellSpec(m *Manager, kind, script string) {
	m.executors[kind] = agentexec.New(agentexec.KindSpec{
		Kind:   kind,
		Binary: "sh",
		BuildArgs: func(model string) []string {
			return []string{"-c", script}
		},
		Extractor: agentexec.ExtractRaw,
	}, m.executors[kind].Workdir)
}

func TestExecuteTaskRecordsSuccess(t *testing.T) {
	pool, m := newPoolAndManager(t, []string{"claude"})
	useShellSpec(m, "claude", "echo ok")

	out, err := m.ExecuteTask(context.Background(), 0, func(string) string { return "prompt" })
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, "claude", out.Agent)

	snap := pool.Snapshot()
	require.Equal(t, 1, snap[0].Completed)
}

func TestExecuteTaskClassifiesNonZeroExit(t *testing.T) {
	pool, m := newPoolAndManager(t, []string{"claude"})
	useShellSpec(m, "claude", "echo permission denied 1>&2; exit 1")

	out, err := m.ExecuteTask(context.Background(), 0, func(string) string { return "prompt" })
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, classify.CategoryPermission, out.Category)

	snap := pool.Snapshot()
	require.Equal(t, 1, snap[0].Failed)
}

func TestExecuteTaskReassignsOnceOnRateLimit(t *testing.T) {
	pool, m := newPoolAndManager(t, []string{"claude", "codex"})
	useShellSpec(m, "claude", "echo rate limit exceeded 1>&2; exit 1")
	useShellSpec(m, "codex", "echo ok")

	out, err := m.ExecuteTask(context.Background(), 0, func(string) string { return "prompt" })
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, "codex", out.Agent, "should have reassigned to the second kind after rate limit")

	snap := pool.Snapshot()
	for _, s := range snap {
		if s.Kind == "claude" {
			require.Equal(t, agentpool.StatusRateLimited, s.Status)
		}
	}
}

func TestExecuteRawUsesCycleTimeoutPath(t *testing.T) {
	_, m := newPoolAndManager(t, []string{"claude"})
	useShellSpec(m, "claude", "echo raw ok")

	out, err := m.ExecuteRaw(context.Background(), "goal prompt")
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, "raw ok\n", out.Output)
}

func TestExecuteTaskReturnsErrorWhenPoolPaused(t *testing.T) {
	pool, m := newPoolAndManager(t, []string{"claude"})
	require.NoError(t, pool.Exhaust("claude"))

	_, err := m.ExecuteTask(context.Background(), 0, func(string) string { return "prompt" })
	require.Error(t, err)
}
