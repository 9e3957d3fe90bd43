// Package orchestrator implements the main Planner/Worker/Judge cycle
// loop: it wires the Task Store, Agent Pool, Executor Manager, Planner and
// Judge Runners, Event Bus, Wakeup Controller, and the git wrapper into one
// run, as described by the engine's cycle contract.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/loopctl/loopctl/internal/agentpool"
	"github.com/loopctl/loopctl/internal/classify"
	"github.com/loopctl/loopctl/internal/config"
	"github.com/loopctl/loopctl/internal/events"
	"github.com/loopctl/loopctl/internal/execmgr"
	"github.com/loopctl/loopctl/internal/hosting"
	_ "github.com/loopctl/loopctl/internal/hosting/github"
	_ "github.com/loopctl/loopctl/internal/hosting/gitlab"
	"github.com/loopctl/loopctl/internal/judge"
	"github.com/loopctl/loopctl/internal/planner"
	"github.com/loopctl/loopctl/internal/session"
	"github.com/loopctl/loopctl/internal/storage"
	"github.com/loopctl/loopctl/internal/task"
	"github.com/loopctl/loopctl/internal/vcs"
	"github.com/loopctl/loopctl/internal/wakeup"
)

// Executor is the subset of the Executor Manager the Orchestrator, Planner,
// and Judge all need. execmgr.Manager satisfies this directly.
type Executor interface {
	ExecuteTask(ctx context.Context, historyLength int, buildPrompt execmgr.PromptBuilder) (execmgr.Outcome, error)
	ExecuteRaw(ctx context.Context, prompt string) (execmgr.Outcome, error)
}

// MinGitVersion is the oldest git version Initialize accepts.
var MinGitVersion = [2]int{2, 5}

// Initialize verifies the preconditions the Orchestrator requires before a
// run can start: a sufficiently recent git binary, a git repository at
// workDir, user.name/user.email configured, and at least one agent kind
// detected as available.
func Initialize(workDir string, g *vcs.Git, availableKinds []string) error {
	if err := checkGitVersion(); err != nil {
		return err
	}
	if _, err := g.CurrentBranch(); err != nil {
		return fmt.Errorf("orchestrator: %s is not a git repository: %w", workDir, err)
	}
	if err := checkGitIdentity(workDir); err != nil {
		return err
	}
	if len(availableKinds) == 0 {
		return fmt.Errorf("orchestrator: no agent kind available (checked PATH and well-known install locations)")
	}
	return nil
}

func checkGitVersion() error {
	cmd := exec.Command("git", "--version")
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("orchestrator: git binary not found: %w", err)
	}
	fields := strings.Fields(string(out))
	for _, f := range fields {
		parts := strings.SplitN(f, ".", 3)
		if len(parts) < 2 {
			continue
		}
		major, err1 := strconv.Atoi(parts[0])
		minor, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		if major > MinGitVersion[0] || (major == MinGitVersion[0] && minor >= MinGitVersion[1]) {
			return nil
		}
		return fmt.Errorf("orchestrator: git %d.%d is older than the required %d.%d", major, minor, MinGitVersion[0], MinGitVersion[1])
	}
	return fmt.Errorf("orchestrator: could not parse git version from %q", string(out))
}

func checkGitIdentity(workDir string) error {
	for _, key := range []string{"user.name", "user.email"} {
		cmd := exec.Command("git", "config", key)
		cmd.Dir = workDir
		out, err := cmd.Output()
		if err != nil || strings.TrimSpace(string(out)) == "" {
			return fmt.Errorf("orchestrator: git config %s is not set", key)
		}
	}
	return nil
}

// Deps wires every component the Orchestrator needs.
type Deps struct {
	Store  storage.Backend
	Pool   *agentpool.Pool
	Exec   Executor
	Git    *vcs.Git
	Bus    events.Publisher
	Wakeup *wakeup.Controller
	IDGen  *task.Generator
	Cfg    config.Config
	Logger *slog.Logger
}

// Orchestrator runs the Planner/Worker/Judge cycle loop for one session.
type Orchestrator struct {
	deps    Deps
	planner *planner.Runner
	judge   *judge.Runner
}

// New builds an Orchestrator from deps.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	pl := planner.New(deps.Exec, deps.Store, deps.IDGen)
	pl.Logger = deps.Logger
	jg := judge.New(deps.Exec)
	jg.Logger = deps.Logger
	return &Orchestrator{deps: deps, planner: pl, judge: jg}
}

// agentPoolSnapshotID is the storage key the Orchestrator saves and restores
// Agent Pool health under. One engine instance runs one pool, shared across
// every session in the project, so a single fixed key is enough.
const agentPoolSnapshotID = "default"

// Start creates and persists a new Session for goal, switching the working
// tree onto its dedicated branch. It also restores any previously recorded
// Agent Pool health so cooldowns and success rates survive a restart.
func (o *Orchestrator) Start(ctx context.Context, sessionID, goal, projectPath string) (*session.Session, error) {
	o.restorePool()

	branch := o.deps.Git.BranchName(sessionID)
	base, err := o.deps.Git.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: start: %w", err)
	}
	if err := o.deps.Git.CreateOrSwitchBranch(branch, base); err != nil {
		return nil, fmt.Errorf("orchestrator: create branch: %w", err)
	}

	sess := session.New(sessionID, goal, projectPath, branch, o.deps.Cfg.Cycle.MaxCycles)
	sess.BaseBranch = base
	if err := o.deps.Store.SaveSession(sess); err != nil {
		return nil, fmt.Errorf("orchestrator: save session: %w", err)
	}
	return sess, nil
}

func (o *Orchestrator) restorePool() {
	states, err := o.deps.Store.LoadAgentPool(agentPoolSnapshotID)
	if err != nil {
		return
	}
	o.deps.Pool.Restore(states)
}

func (o *Orchestrator) savePool() {
	if err := o.deps.Store.SaveAgentPool(agentPoolSnapshotID, o.deps.Pool.Snapshot()); err != nil {
		o.deps.Logger.Warn("orchestrator: save agent pool failed", "error", err)
	}
}

// Run executes the cycle loop until the session reaches a terminal status,
// is paused, or the cycle budget is exhausted, returning the user-visible
// Result. Like Start, it first restores any recorded Agent Pool health, so a
// resumed session keeps its cooldowns and success rates.
func (o *Orchestrator) Run(ctx context.Context, sess *session.Session) (session.Result, error) {
	runStart := time.Now()
	o.restorePool()

	for {
		if sess.Status.IsTerminal() {
			break
		}
		if sess.Status.IsPaused() {
			break
		}
		if sess.CurrentCycle >= sess.MaxCycles {
			sess.Status = session.StatusAborted
			break
		}

		if _, err := o.deps.Store.ReleaseStuck(); err != nil {
			o.deps.Logger.Warn("orchestrator: release stuck tasks failed", "error", err)
		}

		pctx, err := o.buildContext(sess)
		if err != nil {
			return session.Result{}, fmt.Errorf("orchestrator: build planner context: %w", err)
		}

		if _, err := o.planner.Run(ctx, pctx); err != nil {
			sess.MarkPaused(err.Error(), session.StatusPausedError)
			break
		}

		if err := o.runWorkerStage(ctx, sess); err != nil {
			sess.MarkPaused(err.Error(), session.StatusPausedError)
			break
		}

		if o.deps.Wakeup.Consume() {
			wctx, err := o.buildContext(sess)
			if err == nil {
				if _, err := o.planner.Run(ctx, wctx); err != nil {
					o.deps.Logger.Warn("orchestrator: wakeup replan failed", "error", err)
				} else if err := o.runWorkerStage(ctx, sess); err != nil {
					sess.MarkPaused(err.Error(), session.StatusPausedError)
					break
				}
			}
		}

		if err := o.updateStats(sess); err != nil {
			o.deps.Logger.Warn("orchestrator: update stats failed", "error", err)
		}

		jctx, err := o.buildJudgeContext(sess)
		if err != nil {
			return session.Result{}, fmt.Errorf("orchestrator: build judge context: %w", err)
		}
		verdict, err := o.judge.Run(ctx, jctx)
		if err != nil {
			return session.Result{}, fmt.Errorf("orchestrator: judge: %w", err)
		}

		sess.CurrentCycle++

		switch {
		case verdict.Decision == judge.DecisionComplete:
			sess.Status = session.StatusCompleted
		case verdict.Decision == judge.DecisionAbort:
			sess.Status = session.StatusAborted
		case sess.CurrentCycle >= sess.MaxCycles:
			sess.Status = session.StatusAborted
		}

		sess.Touch()
		if err := o.deps.Store.SaveSession(sess); err != nil {
			return session.Result{}, fmt.Errorf("orchestrator: save session: %w", err)
		}
	}

	if sess.Status.IsTerminal() {
		if _, err := o.deps.Git.Sync(nil, finalCommitMessage(sess)); err != nil {
			o.deps.Logger.Warn("orchestrator: final commit failed", "error", err)
		}
	}

	if sess.Status == session.StatusCompleted && o.deps.Cfg.Hosting.Enabled {
		o.openHandoffPR(ctx, sess)
	}

	o.savePool()

	sess.Touch()
	if err := o.deps.Store.SaveSession(sess); err != nil {
		o.deps.Logger.Warn("orchestrator: save final session failed", "error", err)
	}

	return session.Result{
		Status:         sess.Status,
		TotalCycles:    sess.CurrentCycle,
		TasksCreated:   sess.Stats.TasksCreated,
		TasksCompleted: sess.Stats.TasksCompleted,
		TasksFailed:    sess.Stats.TasksFailed,
		Duration:       time.Since(runStart),
		Message:        resultMessage(sess),
	}, nil
}

// openHandoffPR opens a pull request from the session branch. It never
// changes the session result: any failure is logged and swallowed.
func (o *Orchestrator) openHandoffPR(ctx context.Context, sess *session.Session) {
	base := sess.BaseBranch
	if base == "" {
		base = o.deps.Cfg.Hosting.BaseRef
	}

	provider, err := hosting.NewProvider(o.deps.Git.WorkDir, hosting.Config{
		Provider:    o.deps.Cfg.Hosting.Provider,
		BaseURL:     o.deps.Cfg.Hosting.BaseURL,
		TokenEnvVar: o.deps.Cfg.Hosting.TokenEnvVar,
	})
	if err != nil {
		o.deps.Logger.Warn("orchestrator: hosting provider unavailable", "error", err)
		return
	}

	if err := provider.CheckAuth(ctx); err != nil {
		o.deps.Logger.Warn("orchestrator: hosting auth check failed", "error", err)
		return
	}

	pr, err := provider.CreatePR(ctx, hosting.PRCreateOptions{
		Title: fmt.Sprintf("loopctl: %s", sess.Goal),
		Body:  fmt.Sprintf("Automated by loopctl session %s (%d cycles, %d tasks completed).", sess.SessionID, sess.CurrentCycle, sess.Stats.TasksCompleted),
		Head:  sess.Branch,
		Base:  base,
		Draft: o.deps.Cfg.Hosting.Draft,
	})
	if err != nil {
		o.deps.Logger.Warn("orchestrator: create PR failed", "error", err)
		return
	}

	o.deps.Logger.Info("orchestrator: opened hand-off PR", "number", pr.Number, "url", pr.HTMLURL)
}

func finalCommitMessage(sess *session.Session) string {
	return fmt.Sprintf("Session %s finished: %s", sess.SessionID, sess.Status)
}

func resultMessage(sess *session.Session) string {
	switch sess.Status {
	case session.StatusCompleted:
		return "goal achieved"
	case session.StatusAborted:
		return "run aborted"
	default:
		return "run paused"
	}
}

// runWorkerStage claims and executes every currently pending task using up
// to Cfg.Cycle.MaxWorkers concurrent workers, each looping claim -> execute
// -> commit/release until the Task Store reports no pending work.
func (o *Orchestrator) runWorkerStage(ctx context.Context, sess *session.Session) error {
	maxWorkers := o.deps.Cfg.Cycle.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	sem := semaphore.NewWeighted(int64(maxWorkers))
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < maxWorkers; i++ {
		workerIndex := i
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			return o.workerLoop(gctx, sess, workerIndex)
		})
	}

	return g.Wait()
}

func (o *Orchestrator) workerLoop(ctx context.Context, sess *session.Session, workerIndex int) error {
	workerID := fmt.Sprintf("worker-%d", workerIndex)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sel := o.deps.Pool.Select()
		switch sel.Kind {
		case agentpool.SelectionPause:
			sess.MarkPaused(sel.Reason, session.StatusPausedNoAgents)
			return nil
		case agentpool.SelectionWait:
			return nil
		}

		t, err := o.deps.Store.Claim(workerID, workerIndex, sel.Agent)
		if err != nil {
			if err == storage.ErrNoPendingTasks {
				return nil
			}
			return fmt.Errorf("claim: %w", err)
		}

		o.runTaskSafely(ctx, t)
	}
}

// runTaskSafely executes t and recovers from any panic raised while doing
// so: the task is released back to pending and the worker moves on to its
// next claim, rather than taking down the whole process.
func (o *Orchestrator) runTaskSafely(ctx context.Context, t *task.Task) {
	defer func() {
		if r := recover(); r != nil {
			o.deps.Logger.Error("orchestrator: worker panic recovered", "task", t.ID, "panic", r)
			t.Release()
			if err := o.deps.Store.SaveTask(t); err != nil {
				o.deps.Logger.Error("orchestrator: save task after panic failed", "task", t.ID, "error", err)
			}
		}
	}()
	o.executeTask(ctx, t)
}

func (o *Orchestrator) executeTask(ctx context.Context, t *task.Task) {
	startedAt := time.Now()
	prompt := buildWorkerPrompt(t)

	outcome, err := o.deps.Exec.ExecuteTask(ctx, len(t.AgentHistory), func(string) string { return prompt })
	if err != nil {
		o.deps.Logger.Error("orchestrator: execute task failed", "task", t.ID, "error", err)
		t.Release()
		_ = o.deps.Store.SaveTask(t)
		return
	}

	if outcome.Success {
		o.completeTask(t, outcome, startedAt)
		return
	}

	o.failTask(t, outcome, startedAt)
}

func (o *Orchestrator) completeTask(t *task.Task, outcome execmgr.Outcome, startedAt time.Time) {
	t.Complete(outcome.Agent, startedAt)

	if _, err := o.deps.Git.Sync(t.Files, "Task completed: "+t.Title); err != nil {
		o.deps.Logger.Error("orchestrator: commit task failed", "task", t.ID, "error", err)
	}

	if err := o.deps.Store.SaveTask(t); err != nil {
		o.deps.Logger.Error("orchestrator: save completed task failed", "task", t.ID, "error", err)
	}

	o.deps.Bus.Publish(events.New(events.TopicTaskCompleted, t.ID, events.TaskCompletedData{Title: t.Title, Agent: outcome.Agent}))
}

func (o *Orchestrator) failTask(t *task.Task, outcome execmgr.Outcome, startedAt time.Time) {
	info := classify.Info{}
	if outcome.Error != nil {
		info = *outcome.Error
	}
	t.RecordError(outcome.Agent, startedAt, info)

	terminal := !classify.ShouldRetry(info.Category, t.Attempts, t.MaxAttempts)
	if terminal {
		t.MarkFailed()
	} else {
		t.Release()
	}

	if err := o.deps.Store.SaveTask(t); err != nil {
		o.deps.Logger.Error("orchestrator: save failed task failed", "task", t.ID, "error", err)
	}

	o.deps.Bus.Publish(events.New(events.TopicTaskFailed, t.ID, events.TaskFailedData{
		Category: string(info.Category),
		Message:  info.Message,
		Terminal: terminal,
	}))
}

func buildWorkerPrompt(t *task.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", t.Title)
	fmt.Fprintf(&b, "%s\n", t.Description)
	if len(t.Files) > 0 {
		fmt.Fprintf(&b, "Relevant files: %s\n", strings.Join(t.Files, ", "))
	}
	if t.NeedsWebSearch {
		b.WriteString("This task may require web search for current information.\n")
	}
	return b.String()
}

func (o *Orchestrator) buildContext(sess *session.Session) (planner.Context, error) {
	all, err := o.deps.Store.LoadAllTasks()
	if err != nil {
		return planner.Context{}, err
	}
	pctx := planner.Context{
		Goal:         sess.Goal,
		CurrentCycle: sess.CurrentCycle,
		MaxCycles:    sess.MaxCycles,
	}
	for _, t := range all {
		switch t.Status {
		case task.StatusCompleted:
			pctx.CompletedTasks = append(pctx.CompletedTasks, t)
		case task.StatusFailed:
			pctx.FailedTasks = append(pctx.FailedTasks, t)
		case task.StatusPending, task.StatusInProgress:
			pctx.PendingTasks = append(pctx.PendingTasks, t)
		}
	}
	return pctx, nil
}

func (o *Orchestrator) buildJudgeContext(sess *session.Session) (judge.Context, error) {
	all, err := o.deps.Store.LoadAllTasks()
	if err != nil {
		return judge.Context{}, err
	}
	jctx := judge.Context{
		Goal:         sess.Goal,
		CurrentCycle: sess.CurrentCycle,
		MaxCycles:    sess.MaxCycles,
		TotalTasks:   len(all),
	}
	for _, t := range all {
		switch t.Status {
		case task.StatusCompleted:
			jctx.CompletedTasks = append(jctx.CompletedTasks, t)
		case task.StatusFailed:
			jctx.FailedTasks = append(jctx.FailedTasks, t)
		case task.StatusPending, task.StatusInProgress:
			jctx.PendingTasks = append(jctx.PendingTasks, t)
		}
	}
	return jctx, nil
}

func (o *Orchestrator) updateStats(sess *session.Session) error {
	all, err := o.deps.Store.LoadAllTasks()
	if err != nil {
		return err
	}
	sess.Stats.TasksCreated = len(all)
	var completed, failed int
	for _, t := range all {
		switch t.Status {
		case task.StatusCompleted:
			completed++
		case task.StatusFailed:
			failed++
		}
	}
	sess.Stats.TasksCompleted = completed
	sess.Stats.TasksFailed = failed
	return nil
}
