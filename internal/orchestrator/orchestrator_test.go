package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopctl/loopctl/internal/agentpool"
	"github.com/loopctl/loopctl/internal/config"
	"github.com/loopctl/loopctl/internal/events"
	"github.com/loopctl/loopctl/internal/execmgr"
	"github.com/loopctl/loopctl/internal/hosting"
	"github.com/loopctl/loopctl/internal/session"
	"github.com/loopctl/loopctl/internal/storage"
	"github.com/loopctl/loopctl/internal/task"
	"github.com/loopctl/loopctl/internal/vcs"
	"github.com/loopctl/loopctl/internal/wakeup"
)

const testProviderType hosting.ProviderType = "faketest"

// fakeProvider records whether a hand-off PR was requested, without
// touching any real hosting API.
type fakeProvider struct {
	mu      sync.Mutex
	created *hosting.PRCreateOptions
}

func (f *fakeProvider) CreatePR(ctx context.Context, opts hosting.PRCreateOptions) (*hosting.PR, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = &opts
	return &hosting.PR{Number: 1, Title: opts.Title, HeadBranch: opts.Head, BaseBranch: opts.Base}, nil
}
func (f *fakeProvider) CheckAuth(ctx context.Context) error { return nil }
func (f *fakeProvider) Name() hosting.ProviderType          { return testProviderType }
func (f *fakeProvider) OwnerRepo() (string, string)         { return "acme", "widgets" }

func init() {
	hosting.RegisterProvider(testProviderType, func(workDir string, cfg hosting.Config) (hosting.Provider, error) {
		return sharedFakeProvider, nil
	})
}

var sharedFakeProvider = &fakeProvider{}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "-A")
	run("commit", "-q", "-m", "initial")
	return dir
}

// fakeExec answers Planner/Judge raw prompts by sniffing for the "decision"
// key the Judge prompt always asks for, and completes every worker task
// immediately.
type fakeExec struct {
	mu        sync.Mutex
	planCalls int
	verdict   string
}

func (f *fakeExec) ExecuteRaw(ctx context.Context, prompt string) (execmgr.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(prompt, `"decision"`) {
		return execmgr.Outcome{Success: true, Output: f.verdict}, nil
	}
	f.planCalls++
	if f.planCalls == 1 {
		return execmgr.Outcome{Success: true, Output: `{"analysis": "plan", "tasks": [{"title": "t1", "description": "d1"}]}`}, nil
	}
	return execmgr.Outcome{Success: true, Output: `{"analysis": "nothing left", "tasks": []}`}, nil
}

func (f *fakeExec) ExecuteTask(ctx context.Context, historyLength int, buildPrompt execmgr.PromptBuilder) (execmgr.Outcome, error) {
	return execmgr.Outcome{Success: true, Agent: "claude", Output: "done"}, nil
}

func newTestDeps(t *testing.T, exec Executor) (Deps, string) {
	t.Helper()
	dir := initRepo(t)
	g := vcs.New(dir, vcs.DefaultConfig())
	backend, err := storage.OpenSQLite(":memory:", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	pool := agentpool.New([]string{"claude"}, nil)
	bus := events.NewMemoryBus()
	t.Cleanup(bus.Close)
	wk := wakeup.New(bus, 3)
	t.Cleanup(wk.Close)

	cfg := config.Default()
	cfg.Cycle.MaxWorkers = 1
	cfg.Cycle.MaxCycles = 5

	return Deps{
		Store:  backend,
		Pool:   pool,
		Exec:   exec,
		Git:    g,
		Bus:    bus,
		Wakeup: wk,
		IDGen:  task.NewGenerator(0),
		Cfg:    cfg,
	}, dir
}

func TestRunCompletesWhenJudgeSaysComplete(t *testing.T) {
	exec := &fakeExec{verdict: `{"decision": "COMPLETE", "reasoning": "done", "progress_percent": 100}`}
	deps, _ := newTestDeps(t, exec)
	o := New(deps)

	sess, err := o.Start(context.Background(), "session-1", "build the thing", deps.Git.WorkDir)
	require.NoError(t, err)

	result, err := o.Run(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, session.StatusCompleted, result.Status)
	require.Equal(t, 1, result.TasksCompleted)
}

func TestRunAbortsWhenJudgeSaysAbort(t *testing.T) {
	exec := &fakeExec{verdict: `{"decision": "ABORT", "reasoning": "too many failures", "progress_percent": 10}`}
	deps, _ := newTestDeps(t, exec)
	o := New(deps)

	sess, err := o.Start(context.Background(), "session-2", "build the thing", deps.Git.WorkDir)
	require.NoError(t, err)

	result, err := o.Run(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, session.StatusAborted, result.Status)
}

func TestRunAbortsAtCycleBudget(t *testing.T) {
	exec := &fakeExec{verdict: `{"decision": "CONTINUE", "reasoning": "keep going", "progress_percent": 50}`}
	deps, _ := newTestDeps(t, exec)
	deps.Cfg.Cycle.MaxCycles = 1
	o := New(deps)

	sess, err := o.Start(context.Background(), "session-3", "build the thing", deps.Git.WorkDir)
	require.NoError(t, err)

	result, err := o.Run(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, session.StatusAborted, result.Status)
	require.Equal(t, 1, result.TotalCycles)
}

func TestWorkerLoopPausesSessionWhenPoolExhausted(t *testing.T) {
	exec := &fakeExec{verdict: `{"decision": "CONTINUE"}`}
	deps, _ := newTestDeps(t, exec)
	deps.Pool.Disable("claude")
	o := New(deps)

	sess, err := o.Start(context.Background(), "session-4", "build the thing", deps.Git.WorkDir)
	require.NoError(t, err)

	require.NoError(t, o.deps.Store.SaveTask(task.New("TASK-0001", "t1", "d1", "planner", nil, 0, false)))

	require.NoError(t, o.runWorkerStage(context.Background(), sess))
	require.True(t, sess.Status.IsPaused())
}

func TestRunOpensHandoffPRWhenCompletedAndHostingEnabled(t *testing.T) {
	sharedFakeProvider.mu.Lock()
	sharedFakeProvider.created = nil
	sharedFakeProvider.mu.Unlock()

	exec := &fakeExec{verdict: `{"decision": "COMPLETE", "reasoning": "done", "progress_percent": 100}`}
	deps, _ := newTestDeps(t, exec)
	deps.Cfg.Hosting.Enabled = true
	deps.Cfg.Hosting.Provider = string(testProviderType)
	o := New(deps)

	sess, err := o.Start(context.Background(), "session-5", "build the thing", deps.Git.WorkDir)
	require.NoError(t, err)

	result, err := o.Run(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, session.StatusCompleted, result.Status)

	sharedFakeProvider.mu.Lock()
	defer sharedFakeProvider.mu.Unlock()
	require.NotNil(t, sharedFakeProvider.created)
	require.Equal(t, sess.Branch, sharedFakeProvider.created.Head)
}
