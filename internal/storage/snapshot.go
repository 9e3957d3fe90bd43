package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loopctl/loopctl/internal/agentpool"
	"github.com/loopctl/loopctl/internal/session"
	"github.com/loopctl/loopctl/internal/task"
)

// writeJSONSnapshot pretty-prints v to <dir>/<name> via a temp-file-then-
// rename so a crash mid-write never leaves a truncated snapshot behind.
func writeJSONSnapshot(dir, name string, v interface{}) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot mkdir: %w", err)
	}

	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot marshal %s: %w", name, err)
	}

	final := filepath.Join(dir, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("snapshot write %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("snapshot rename %s: %w", name, err)
	}
	return nil
}

// tasksSnapshot is the shape written to tasks.json.
type tasksSnapshot struct {
	Tasks []*task.Task `json:"tasks"`
}

func writeTasksSnapshot(dir string, tasks []*task.Task) error {
	return writeJSONSnapshot(dir, "tasks.json", tasksSnapshot{Tasks: tasks})
}

func writeStateSnapshot(dir string, s *session.Session) error {
	return writeJSONSnapshot(dir, "state.json", s)
}

// agentsSnapshot is the shape written to agents.json.
type agentsSnapshot struct {
	Agents []agentpool.State `json:"agents"`
}

func writeAgentsSnapshot(dir string, states []agentpool.State) error {
	return writeJSONSnapshot(dir, "agents.json", agentsSnapshot{Agents: states})
}
