// Package execmgr dispatches a unit of work to a selected agent kind,
// records the outcome into the Agent Pool, and performs at most one
// failover when the failure was a rate limit.
package execmgr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/loopctl/loopctl/internal/agentexec"
	"github.com/loopctl/loopctl/internal/agentpool"
	"github.com/loopctl/loopctl/internal/classify"
)

// PromptBuilder renders the prompt to send to a specific agent kind.
type PromptBuilder func(kind string) string

// Outcome is the result of one ExecuteTask or ExecuteRaw call.
type Outcome struct {
	Success  bool
	Agent    string
	Output   string
	Duration time.Duration
	Category classify.Category
	Error    *classify.Info
}

// Manager wires together the Agent Pool and the per-kind Agent Executors.
type Manager struct {
	Pool      *agentpool.Pool
	executors map[string]*agentexec.Executor
}

// New builds a Manager for the given kinds, rooted at workdir, with debug
// captures written under debugDir (pass "" to disable).
func New(pool *agentpool.Pool, kinds []string, workdir, debugDir string) *Manager {
	m := &Manager{Pool: pool, executors: make(map[string]*agentexec.Executor, len(kinds))}
	for _, k := range kinds {
		spec, ok := agentexec.DefaultKindSpecs[k]
		if !ok {
			continue
		}
		e := agentexec.New(spec, workdir)
		e.DebugDir = debugDir
		m.executors[k] = e
	}
	return m
}

// SetModel overrides the model argument passed to kind's CLI.
func (m *Manager) SetModel(kind, model string) {
	if e, ok := m.executors[kind]; ok {
		e.Model = model
	}
}

// claudeWellKnownPaths is checked when "claude" is not found on PATH, since
// some installers place it outside the user's PATH.
var claudeWellKnownPaths = []string{
	"~/.claude/local/claude",
}

// DetectAvailable probes each kind's binary and disables any kind whose
// binary cannot be found.
func DetectAvailable(pool *agentpool.Pool, kinds []string) []string {
	var available []string
	for _, k := range kinds {
		spec, ok := agentexec.DefaultKindSpecs[k]
		if !ok {
			pool.Disable(k)
			continue
		}
		if _, err := exec.LookPath(spec.Binary); err == nil {
			available = append(available, k)
			continue
		}
		if k == agentexec.Claude && claudeBinaryAtWellKnownPath() {
			available = append(available, k)
			continue
		}
		pool.Disable(k)
	}
	return available
}

func claudeBinaryAtWellKnownPath() bool {
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	for _, p := range claudeWellKnownPaths {
		expanded := filepath.Join(home, strings.TrimPrefix(p, "~/"))
		if info, err := os.Stat(expanded); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// ExecuteTask runs buildPrompt against the pool's selection, recording
// outcomes into the pool. historyLength is the task's current
// agent_history length, used to bound reassignment.
func (m *Manager) ExecuteTask(ctx context.Context, historyLength int, buildPrompt PromptBuilder) (Outcome, error) {
	return m.execute(ctx, agentexec.DefaultTimeout, historyLength, buildPrompt, true)
}

// ExecuteRaw runs prompt with the cycle-level timeout and no Worker prompt
// wrapper, as used by the Planner and Judge Runners. Completion detection is
// a worker-level contract, so raw execution trusts the exit code alone.
func (m *Manager) ExecuteRaw(ctx context.Context, prompt string) (Outcome, error) {
	return m.execute(ctx, agentexec.CycleTimeout, 0, func(string) string { return prompt }, false)
}

func (m *Manager) execute(ctx context.Context, timeout time.Duration, historyLength int, buildPrompt PromptBuilder, detectCompletion bool) (Outcome, error) {
	reassigned := false
	for {
		sel := m.Pool.Select()
		switch sel.Kind {
		case agentpool.SelectionPause:
			return Outcome{}, fmt.Errorf("execmgr: agent pool paused: %s", sel.Reason)
		case agentpool.SelectionWait:
			return Outcome{}, fmt.Errorf("execmgr: agent pool waiting until %s: %s", sel.Until.Format(time.RFC3339), sel.Reason)
		}

		kind := sel.Agent
		ex, ok := m.executors[kind]
		if !ok {
			return Outcome{}, fmt.Errorf("execmgr: no executor wired for kind %q", kind)
		}
		_ = m.Pool.MarkBusy(kind)

		res, err := ex.Run(ctx, buildPrompt(kind), timeout)
		if err != nil {
			_ = m.Pool.RecordFailure(kind)
			return Outcome{}, fmt.Errorf("execmgr: run %s: %w", kind, err)
		}

		success := res.Success
		if detectCompletion && success {
			// A worker CLI can exit 0 without having actually finished the
			// task; trust its reported status object over the bare exit code.
			if agentexec.DetectCompletion(res.Output, res.ExitCode) == agentexec.CompletionFailed {
				success = false
			}
		}

		if success {
			_ = m.Pool.RecordSuccess(kind, res.Duration)
			return Outcome{Success: true, Agent: kind, Output: res.Output, Duration: res.Duration}, nil
		}

		exitCode := res.ExitCode
		combined := res.Raw + "\n" + res.ErrText
		cat := classify.Classify(combined, exitCode)
		info := classify.NewInfo(kind, firstLine(res.ErrText, combined), combined, cat)

		if cat == classify.CategoryRateLimit {
			_ = m.Pool.MarkRateLimited(kind, 0)
			if !reassigned && classify.ShouldReassign(cat, historyLength) {
				reassigned = true
				continue
			}
		}

		_ = m.Pool.RecordFailure(kind)
		return Outcome{Success: false, Agent: kind, Output: res.Output, Duration: res.Duration, Category: cat, Error: &info}, nil
	}
}

func firstLine(preferred, fallback string) string {
	s := preferred
	if s == "" {
		s = fallback
	}
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
