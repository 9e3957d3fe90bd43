// Package judge implements the Judge Runner: it builds the Judge prompt,
// invokes a raw agent execution, parses a strict JSON decision, and falls
// back to a fixed heuristic decision table when parsing fails or output is
// absent.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loopctl/loopctl/internal/execmgr"
	"github.com/loopctl/loopctl/internal/jsonx"
	"github.com/loopctl/loopctl/internal/task"
)

// Decision is one of the three terminal judgements a cycle can receive.
type Decision string

const (
	DecisionContinue Decision = "CONTINUE"
	DecisionComplete Decision = "COMPLETE"
	DecisionAbort    Decision = "ABORT"
)

// Verdict is the Judge's parsed or heuristic output.
type Verdict struct {
	Decision        Decision `json:"decision"`
	Reasoning       string   `json:"reasoning"`
	ProgressPercent int      `json:"progress_percent"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Heuristic       bool     `json:"-"` // true when decision came from the fallback table, not a parsed verdict
}

// RawExecutor is the subset of the Executor Manager the Judge needs.
type RawExecutor interface {
	ExecuteRaw(ctx context.Context, prompt string) (execmgr.Outcome, error)
}

// Context summarizes cycle state for both the prompt and the heuristic
// fallback table.
type Context struct {
	Goal           string
	CurrentCycle   int
	MaxCycles      int
	CompletedTasks []*task.Task
	FailedTasks    []*task.Task
	PendingTasks   []*task.Task
	TotalTasks     int
}

// Runner is the Judge Runner.
type Runner struct {
	Exec   RawExecutor
	Logger *slog.Logger
}

// New creates a Judge Runner.
func New(exec RawExecutor) *Runner {
	return &Runner{Exec: exec, Logger: slog.Default()}
}

// Run invokes the Judge and returns a Verdict, falling back to the
// heuristic table on any parse failure or execution failure.
func (r *Runner) Run(ctx context.Context, jctx Context) (Verdict, error) {
	prompt := buildPrompt(jctx)

	outcome, err := r.Exec.ExecuteRaw(ctx, prompt)
	if err != nil {
		r.Logger.Warn("judge: execute_raw failed, falling back to heuristic", "error", err)
		return heuristic(jctx), nil
	}
	if !outcome.Success {
		r.Logger.Warn("judge: raw execution reported failure, falling back to heuristic", "category", outcome.Category)
		return heuristic(jctx), nil
	}

	v, ok := parseVerdict(outcome.Output)
	if !ok {
		r.Logger.Warn("judge: could not parse verdict, falling back to heuristic")
		return heuristic(jctx), nil
	}
	return v, nil
}

// heuristic applies the fixed fallback decision table:
//   - current_cycle >= max_cycles -> ABORT
//   - all tasks terminal, none failed, >= 1 completed -> COMPLETE
//   - failed/total > 0.5 -> ABORT
//   - otherwise -> CONTINUE
func heuristic(jctx Context) Verdict {
	v := Verdict{Heuristic: true}

	if jctx.CurrentCycle >= jctx.MaxCycles {
		v.Decision = DecisionAbort
		v.Reasoning = "cycle budget exhausted"
		return v
	}

	total := jctx.TotalTasks
	completed := len(jctx.CompletedTasks)
	failed := len(jctx.FailedTasks)
	pending := len(jctx.PendingTasks)
	allTerminal := pending == 0 && total > 0

	if allTerminal && failed == 0 && completed >= 1 {
		v.Decision = DecisionComplete
		v.Reasoning = "all tasks terminal with no failures"
		return v
	}

	if total > 0 && float64(failed)/float64(total) > 0.5 {
		v.Decision = DecisionAbort
		v.Reasoning = "more than half of all tasks failed"
		return v
	}

	v.Decision = DecisionContinue
	v.Reasoning = "work remains"
	return v
}

func parseVerdict(output string) (Verdict, bool) {
	candidates := make([]string, 0, 4)
	if obj, ok := jsonx.ExtractObjectWithKeys(output, "decision"); ok {
		candidates = append(candidates, obj)
	}
	if block, ok := jsonx.ExtractFencedJSON(output); ok {
		candidates = append(candidates, block)
	}
	if block, ok := jsonx.ExtractAnyFencedBlock(output); ok {
		candidates = append(candidates, block)
	}
	candidates = append(candidates, output)

	for _, c := range candidates {
		var v Verdict
		if err := json.Unmarshal([]byte(c), &v); err == nil && isValidDecision(v.Decision) {
			return v, true
		}
	}
	return Verdict{}, false
}

func isValidDecision(d Decision) bool {
	switch d {
	case DecisionContinue, DecisionComplete, DecisionAbort:
		return true
	default:
		return false
	}
}

func buildPrompt(jctx Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", jctx.Goal)
	fmt.Fprintf(&b, "Cycle %d of %d\n", jctx.CurrentCycle, jctx.MaxCycles)
	fmt.Fprintf(&b, "Completed: %d, Failed: %d, Pending: %d, Total: %d\n\n",
		len(jctx.CompletedTasks), len(jctx.FailedTasks), len(jctx.PendingTasks), jctx.TotalTasks)

	b.WriteString("Completed tasks:\n")
	for _, t := range jctx.CompletedTasks {
		fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Title)
	}
	b.WriteString("Failed tasks:\n")
	for _, t := range jctx.FailedTasks {
		fmt.Fprintf(&b, "- %s: %s (%v)\n", t.ID, t.Title, t.LastError)
	}

	b.WriteString("\nRespond with a single JSON object: {\"decision\": \"CONTINUE\"|\"COMPLETE\"|\"ABORT\", \"reasoning\": string, \"progress_percent\": int, \"issues\": string[], \"recommendations\": string[]}\n")
	return b.String()
}
