package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/loopctl/loopctl/internal/agentpool"
	"github.com/loopctl/loopctl/internal/session"
	"github.com/loopctl/loopctl/internal/task"
)

// SQLiteBackend is the default, embedded storage backend. It is a single
// file under the project's state directory and requires no external
// service. All writes go through mu because modernc.org/sqlite serializes
// writers anyway; taking the lock in Go avoids SQLITE_BUSY retries.
type SQLiteBackend struct {
	mu  sync.Mutex
	db  *sql.DB
	dir snapshotDir
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_pool (
	session_id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
`

// OpenSQLite opens (creating if necessary) the SQLite database at path.
// snapshotDir, when non-empty, is mirrored with pretty-printed JSON on every
// write; pass "" to disable mirroring (e.g. in tests).
func OpenSQLite(path, snapshotDirPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite does not support concurrent writers
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate sqlite: %w", err)
	}
	return &SQLiteBackend{db: db, dir: snapshotDir(snapshotDirPath)}, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) SaveTask(t *task.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saveTaskLocked(t)
}

func (b *SQLiteBackend) saveTaskLocked(t *task.Task) error {
	buf, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("storage: marshal task %s: %w", t.ID, err)
	}
	_, err = b.db.Exec(`
		INSERT INTO tasks (id, status, created_at, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data
	`, t.ID, string(t.Status), t.CreatedAt.Format("2006-01-02T15:04:05.000000000Z07:00"), string(buf))
	if err != nil {
		return fmt.Errorf("storage: save task %s: %w", t.ID, err)
	}
	return b.mirrorTasksLocked()
}

func (b *SQLiteBackend) LoadTask(id string) (*task.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadTaskLocked(id)
}

func (b *SQLiteBackend) loadTaskLocked(id string) (*task.Task, error) {
	var data string
	err := b.db.QueryRow(`SELECT data FROM tasks WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load task %s: %w", id, err)
	}
	var t task.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("storage: decode task %s: %w", id, err)
	}
	return &t, nil
}

func (b *SQLiteBackend) LoadAllTasks() ([]*task.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadAllTasksLocked()
}

func (b *SQLiteBackend) loadAllTasksLocked() ([]*task.Task, error) {
	rows, err := b.db.Query(`SELECT data FROM tasks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: load all tasks: %w", err)
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("storage: scan task row: %w", err)
		}
		var t task.Task
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("storage: decode task row: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) DeleteTask(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.db.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("storage: delete task %s: %w", id, err)
	}
	return b.mirrorTasksLocked()
}

// Claim implements the worker-index-mod-n deterministic policy under a
// single mutex: list pending tasks ordered by creation, pick index
// (workerIndex mod n), and attempt the transition. The mutex makes the
// read-then-write atomic; a conditional UPDATE guards against it anyway.
func (b *SQLiteBackend) Claim(workerID string, workerIndex int, agentKind string) (*task.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.db.Query(`SELECT id FROM tasks WHERE status = ? ORDER BY created_at ASC, id ASC`, string(task.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("storage: list pending: %w", err)
	}
	var pending []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage: scan pending id: %w", err)
		}
		pending = append(pending, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	id, ok := claimIndex(pending, workerIndex)
	if !ok {
		return nil, ErrNoPendingTasks
	}

	t, err := b.loadTaskLocked(id)
	if err != nil {
		return nil, err
	}
	t.Claim(workerID, agentKind)

	buf, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal claimed task %s: %w", id, err)
	}
	res, err := b.db.Exec(`UPDATE tasks SET status = ?, data = ? WHERE id = ? AND status = ?`,
		string(t.Status), string(buf), id, string(task.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("storage: claim task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoPendingTasks
	}
	if err := b.mirrorTasksLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

func (b *SQLiteBackend) ReleaseStuck() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.db.Query(`SELECT data FROM tasks WHERE status = ?`, string(task.StatusInProgress))
	if err != nil {
		return 0, fmt.Errorf("storage: list in_progress: %w", err)
	}
	var stuck []*task.Task
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			rows.Close()
			return 0, err
		}
		var t task.Task
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			rows.Close()
			return 0, err
		}
		stuck = append(stuck, &t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, t := range stuck {
		t.Release()
		if err := b.saveTaskLocked(t); err != nil {
			return 0, err
		}
	}
	return len(stuck), nil
}

func (b *SQLiteBackend) mirrorTasksLocked() error {
	if !b.dir.enabled() {
		return nil
	}
	all, err := b.loadAllTasksLocked()
	if err != nil {
		return err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return writeTasksSnapshot(string(b.dir), all)
}

func (b *SQLiteBackend) SaveSession(s *session.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("storage: marshal session %s: %w", s.SessionID, err)
	}
	_, err = b.db.Exec(`
		INSERT INTO sessions (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, s.SessionID, string(buf))
	if err != nil {
		return fmt.Errorf("storage: save session %s: %w", s.SessionID, err)
	}
	return writeStateSnapshot(string(b.dir), s)
}

func (b *SQLiteBackend) LoadSession(id string) (*session.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var data string
	err := b.db.QueryRow(`SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load session %s: %w", id, err)
	}
	var s session.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("storage: decode session %s: %w", id, err)
	}
	return &s, nil
}

func (b *SQLiteBackend) SaveAgentPool(id string, states []agentpool.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("storage: marshal agent pool: %w", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO agent_pool (session_id, data) VALUES (?, ?)
		ON CONFLICT(session_id) DO UPDATE SET data = excluded.data
	`, id, string(buf))
	if err != nil {
		return fmt.Errorf("storage: save agent pool: %w", err)
	}
	return writeAgentsSnapshot(string(b.dir), states)
}

func (b *SQLiteBackend) LoadAgentPool(id string) ([]agentpool.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var data string
	err := b.db.QueryRow(`SELECT data FROM agent_pool WHERE session_id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load agent pool: %w", err)
	}
	var states []agentpool.State
	if err := json.Unmarshal([]byte(data), &states); err != nil {
		return nil, fmt.Errorf("storage: decode agent pool: %w", err)
	}
	return states, nil
}
