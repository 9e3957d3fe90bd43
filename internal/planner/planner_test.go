package planner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopctl/loopctl/internal/execmgr"
	"github.com/loopctl/loopctl/internal/task"
)

type fakeExecutor struct {
	mu        sync.Mutex
	responses map[string]string // area -> output; "" is the top-level planner
	calls     int
}

func (f *fakeExecutor) ExecuteRaw(ctx context.Context, prompt string) (execmgr.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for area, resp := range f.responses {
		if area == "" {
			continue
		}
		if containsArea(prompt, area) {
			return execmgr.Outcome{Success: true, Output: resp}, nil
		}
	}
	return execmgr.Outcome{Success: true, Output: f.responses[""]}, nil
}

func containsArea(prompt, area string) bool {
	return len(area) > 0 && (len(prompt) > 0) && (stringsContains(prompt, area))
}

func stringsContains(s, substr string) bool {
	return len(s) >= len(substr) && (indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

type fakeStore struct {
	mu    sync.Mutex
	saved []*task.Task
}

func (f *fakeStore) SaveTask(t *task.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, t)
	return nil
}

func TestRunCreatesTasksFromValidPlan(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]string{
		"": `{"analysis": "plan", "tasks": [{"title": "t1", "description": "d1", "files": ["a.go"]}]}`,
	}}
	store := &fakeStore{}
	r := New(exec, store, task.NewGenerator(0))

	tasks, err := r.Run(context.Background(), Context{Goal: "build it"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "t1", tasks[0].Title)
	require.Len(t, store.saved, 1)
}

func TestRunSkipsTasksMissingTitleOrDescription(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]string{
		"": `{"analysis": "plan", "tasks": [{"title": "", "description": "d1"}, {"title": "t2", "description": ""}]}`,
	}}
	store := &fakeStore{}
	r := New(exec, store, task.NewGenerator(0))

	tasks, err := r.Run(context.Background(), Context{Goal: "build it"})
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestRunReturnsEmptyOnUnparsableOutput(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]string{"": "not json at all, sorry"}}
	store := &fakeStore{}
	r := New(exec, store, task.NewGenerator(0))

	tasks, err := r.Run(context.Background(), Context{Goal: "build it"})
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestRunParsesFencedJSONFallback(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]string{
		"": "Here's my plan:\n```json\n{\"analysis\": \"x\", \"tasks\": [{\"title\": \"t1\", \"description\": \"d1\"}]}\n```\n",
	}}
	store := &fakeStore{}
	r := New(exec, store, task.NewGenerator(0))

	tasks, err := r.Run(context.Background(), Context{Goal: "build it"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestRunTruncatesAtTaskCap(t *testing.T) {
	tasksJSON := `{"analysis": "x", "tasks": [`
	for i := 0; i < 15; i++ {
		if i > 0 {
			tasksJSON += ","
		}
		tasksJSON += `{"title": "t", "description": "d"}`
	}
	tasksJSON += `]}`

	exec := &fakeExecutor{responses: map[string]string{"": tasksJSON}}
	store := &fakeStore{}
	r := New(exec, store, task.NewGenerator(0))

	tasks, err := r.Run(context.Background(), Context{Goal: "build it"})
	require.NoError(t, err)
	require.Len(t, tasks, MaxTasksPerPlan)
}

func TestRunSpawnsSubPlanners(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]string{
		"":       `{"analysis": "x", "tasks": [], "spawn_sub_planners": [{"name": "frontend", "description": "ui work"}]}`,
		"frontend": `{"analysis": "sub", "tasks": [{"title": "sub task", "description": "d"}]}`,
	}}
	store := &fakeStore{}
	r := New(exec, store, task.NewGenerator(0))

	tasks, err := r.Run(context.Background(), Context{Goal: "build it"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "sub task", tasks[0].Title)
}
