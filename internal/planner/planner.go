// Package planner implements the Planner Runner: it builds the Planner
// prompt, invokes a raw agent execution, parses the strict JSON plan with a
// documented fallback chain, appends new tasks to the Task Store, and
// optionally fans out parallel sub-planners.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/loopctl/loopctl/internal/execmgr"
	"github.com/loopctl/loopctl/internal/jsonx"
	"github.com/loopctl/loopctl/internal/task"
)

// MaxTasksPerPlan bounds how many tasks one Planner invocation may create.
const MaxTasksPerPlan = 10

// MaxSubPlanners bounds how many sub-planners one Planner invocation may spawn.
const MaxSubPlanners = 5

// MaxSubPlannerTasks bounds how many tasks each sub-planner may create.
const MaxSubPlannerTasks = 5

// RawExecutor is the subset of the Executor Manager the Planner needs.
type RawExecutor interface {
	ExecuteRaw(ctx context.Context, prompt string) (execmgr.Outcome, error)
}

// TaskAdder is the subset of the Task Store the Planner needs.
type TaskAdder interface {
	SaveTask(t *task.Task) error
}

// PlannedTask is one task entry in a Planner's JSON output.
type PlannedTask struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Files           []string `json:"files"`
	SuccessCriteria string   `json:"success_criteria"`
	Priority        int      `json:"priority"`
	NeedsWebSearch  bool     `json:"needs_web_search,omitempty"`
}

// SubPlannerSpec requests a parallel sub-planner restricted to one area.
type SubPlannerSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Files       []string `json:"files"`
}

// Plan is the Planner's strict JSON output shape.
type Plan struct {
	Analysis         string           `json:"analysis"`
	Tasks            []PlannedTask    `json:"tasks"`
	SpawnSubPlanners []SubPlannerSpec `json:"spawn_sub_planners,omitempty"`
}

// Context summarizes what the Planner prompt needs to describe the current
// state of the run.
type Context struct {
	Goal           string
	CurrentCycle   int
	MaxCycles      int
	CompletedTasks []*task.Task
	FailedTasks    []*task.Task
	PendingTasks   []*task.Task
	Area           string // non-empty when this Runner is a sub-planner
}

// Runner is the Planner Runner.
type Runner struct {
	Exec   RawExecutor
	Store  TaskAdder
	IDGen  *task.Generator
	Logger *slog.Logger
}

// New creates a Planner Runner.
func New(exec RawExecutor, store TaskAdder, idgen *task.Generator) *Runner {
	return &Runner{Exec: exec, Store: store, IDGen: idgen, Logger: slog.Default()}
}

// Run invokes the Planner for ctx, persists any new tasks, and fans out
// sub-planners when requested. It never returns an error for a parse
// failure — an empty task list is itself the correct, documented outcome.
func (r *Runner) Run(ctx context.Context, pctx Context) ([]*task.Task, error) {
	prompt := buildPrompt(pctx)

	outcome, err := r.Exec.ExecuteRaw(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("planner: execute_raw: %w", err)
	}
	if !outcome.Success {
		r.Logger.Warn("planner: raw execution failed", "category", outcome.Category)
		return nil, nil
	}

	plan, ok := parsePlan(outcome.Output)
	if !ok {
		r.Logger.Warn("planner: could not parse plan output, returning no tasks")
		return nil, nil
	}

	maxTasks := MaxTasksPerPlan
	if pctx.Area != "" {
		maxTasks = MaxSubPlannerTasks
	}

	createdBy := "planner"
	if pctx.Area != "" {
		createdBy = "sub-planner:" + pctx.Area
	}

	tasks := make([]*task.Task, 0, len(plan.Tasks))
	for i, pt := range plan.Tasks {
		if i >= maxTasks {
			r.Logger.Warn("planner: plan exceeded task cap, truncating", "cap", maxTasks)
			break
		}
		if strings.TrimSpace(pt.Title) == "" || strings.TrimSpace(pt.Description) == "" {
			continue
		}
		t := task.New(r.IDGen.Next(), pt.Title, pt.Description, createdBy, pt.Files, 0, pt.NeedsWebSearch)
		if err := r.Store.SaveTask(t); err != nil {
			return tasks, fmt.Errorf("planner: save task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if pctx.Area == "" && len(plan.SpawnSubPlanners) > 0 {
		subTasks, err := r.runSubPlanners(ctx, pctx, plan.SpawnSubPlanners)
		if err != nil {
			return tasks, err
		}
		tasks = append(tasks, subTasks...)
	}

	return tasks, nil
}

func (r *Runner) runSubPlanners(ctx context.Context, parent Context, specs []SubPlannerSpec) ([]*task.Task, error) {
	if len(specs) > MaxSubPlanners {
		specs = specs[:MaxSubPlanners]
	}

	results := make([][]*task.Task, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			sub := Context{
				Goal:         parent.Goal,
				CurrentCycle: parent.CurrentCycle,
				MaxCycles:    parent.MaxCycles,
				Area:         spec.Name,
			}
			got, err := r.Run(gctx, sub)
			if err != nil {
				return err
			}
			results[i] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("planner: sub-planner: %w", err)
	}

	var all []*task.Task
	for _, ts := range results {
		all = append(all, ts...)
	}
	return all, nil
}

// parsePlan implements the documented fallback chain: a JSON object
// containing both "analysis" and "tasks"; a fenced ```json``` block; any
// fenced block; finally the entire output parsed as JSON.
func parsePlan(output string) (Plan, bool) {
	candidates := make([]string, 0, 4)
	if obj, ok := jsonx.ExtractObjectWithKeys(output, "analysis", "tasks"); ok {
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
		var p Plan
		if err := json.Unmarshal([]byte(c), &p); err == nil {
			return p, true
		}
	}
	return Plan{}, false
}

func buildPrompt(pctx Context) string {
	var b strings.Builder
	if pctx.Area != "" {
		fmt.Fprintf(&b, "You are a sub-planner restricted to the area %q.\n", pctx.Area)
	}
	fmt.Fprintf(&b, "Goal: %s\n", pctx.Goal)
	fmt.Fprintf(&b, "Cycle %d of %d\n\n", pctx.CurrentCycle, pctx.MaxCycles)
	b.WriteString("Completed tasks:\n")
	for _, t := range pctx.CompletedTasks {
		fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Title)
	}
	b.WriteString("Failed tasks:\n")
	for _, t := range pctx.FailedTasks {
		fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Title)
	}
	b.WriteString("Pending tasks:\n")
	for _, t := range pctx.PendingTasks {
		fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Title)
	}
	b.WriteString("\nRespond with a single JSON object: {\"analysis\": string, \"tasks\": [...], \"spawn_sub_planners\": [...]}\n")
	return b.String()
}
