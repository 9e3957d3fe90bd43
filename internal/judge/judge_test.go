package judge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopctl/loopctl/internal/execmgr"
	"github.com/loopctl/loopctl/internal/task"
)

type fakeExecutor struct {
	output  string
	success bool
	err     error
}

func (f *fakeExecutor) ExecuteRaw(ctx context.Context, prompt string) (execmgr.Outcome, error) {
	if f.err != nil {
		return execmgr.Outcome{}, f.err
	}
	return execmgr.Outcome{Success: f.success, Output: f.output}, nil
}

func TestRunParsesValidDecision(t *testing.T) {
	exec := &fakeExecutor{success: true, output: `{"decision": "COMPLETE", "reasoning": "done", "progress_percent": 100}`}
	r := New(exec)

	v, err := r.Run(context.Background(), Context{CurrentCycle: 1, MaxCycles: 20})
	require.NoError(t, err)
	require.Equal(t, DecisionComplete, v.Decision)
	require.False(t, v.Heuristic)
}

func TestRunParsesFencedDecision(t *testing.T) {
	exec := &fakeExecutor{success: true, output: "```json\n{\"decision\": \"CONTINUE\", \"reasoning\": \"more work\"}\n```"}
	r := New(exec)

	v, err := r.Run(context.Background(), Context{CurrentCycle: 1, MaxCycles: 20})
	require.NoError(t, err)
	require.Equal(t, DecisionContinue, v.Decision)
}

func TestRunFallsBackToHeuristicOnUnparsableOutput(t *testing.T) {
	exec := &fakeExecutor{success: true, output: "the agent rambled without producing JSON"}
	r := New(exec)

	v, err := r.Run(context.Background(), Context{CurrentCycle: 1, MaxCycles: 20})
	require.NoError(t, err)
	require.True(t, v.Heuristic)
	require.Equal(t, DecisionContinue, v.Decision)
}

func TestRunFallsBackToHeuristicOnExecutionFailure(t *testing.T) {
	exec := &fakeExecutor{success: false}
	r := New(exec)

	v, err := r.Run(context.Background(), Context{CurrentCycle: 19, MaxCycles: 20})
	require.NoError(t, err)
	require.True(t, v.Heuristic)
	require.Equal(t, DecisionContinue, v.Decision)
}

func TestHeuristicAbortsAtCycleBudget(t *testing.T) {
	v := heuristic(Context{CurrentCycle: 20, MaxCycles: 20})
	require.Equal(t, DecisionAbort, v.Decision)
}

func TestHeuristicCompletesWhenAllTerminalAndNoFailures(t *testing.T) {
	jctx := Context{
		CurrentCycle:   5,
		MaxCycles:      20,
		TotalTasks:     3,
		CompletedTasks: []*task.Task{{ID: "TASK-0001"}, {ID: "TASK-0002"}, {ID: "TASK-0003"}},
	}
	v := heuristic(jctx)
	require.Equal(t, DecisionComplete, v.Decision)
}

func TestHeuristicAbortsWhenMajorityFailed(t *testing.T) {
	jctx := Context{
		CurrentCycle: 5,
		MaxCycles:    20,
		TotalTasks:   4,
		FailedTasks:  []*task.Task{{ID: "TASK-0001"}, {ID: "TASK-0002"}, {ID: "TASK-0003"}},
		PendingTasks: []*task.Task{{ID: "TASK-0004"}},
	}
	v := heuristic(jctx)
	require.Equal(t, DecisionAbort, v.Decision)
}

func TestHeuristicContinuesWhenWorkRemains(t *testing.T) {
	jctx := Context{
		CurrentCycle:   5,
		MaxCycles:      20,
		TotalTasks:     3,
		CompletedTasks: []*task.Task{{ID: "TASK-0001"}},
		PendingTasks:   []*task.Task{{ID: "TASK-0002"}, {ID: "TASK-0003"}},
	}
	v := heuristic(jctx)
	require.Equal(t, DecisionContinue, v.Decision)
}
