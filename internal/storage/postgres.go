package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopctl/loopctl/internal/agentpool"
	"github.com/loopctl/loopctl/internal/session"
	"github.com/loopctl/loopctl/internal/task"
)

// PostgresBackend is the shared-team storage backend: one database, many
// engine processes. Claim uses a serializable transaction so the
// worker-index-mod-n policy stays race-free across processes, not just
// goroutines.
type PostgresBackend struct {
	pool *pgxpool.Pool
	dir  snapshotDir
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	data JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	data JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_pool (
	session_id TEXT PRIMARY KEY,
	data JSONB NOT NULL
);
`

// OpenPostgres connects to dsn and runs schema migration.
func OpenPostgres(ctx context.Context, dsn, snapshotDirPath string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: migrate postgres: %w", err)
	}
	return &PostgresBackend{pool: pool, dir: snapshotDir(snapshotDirPath)}, nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func (b *PostgresBackend) SaveTask(t *task.Task) error {
	ctx := context.Background()
	buf, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("storage: marshal task %s: %w", t.ID, err)
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO tasks (id, status, created_at, data) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, data = excluded.data
	`, t.ID, string(t.Status), t.CreatedAt, buf)
	if err != nil {
		return fmt.Errorf("storage: save task %s: %w", t.ID, err)
	}
	return b.mirrorTasks(ctx)
}

func (b *PostgresBackend) LoadTask(id string) (*task.Task, error) {
	return b.loadTask(context.Background(), b.pool, id)
}

func (b *PostgresBackend) loadTask(ctx context.Context, q queryer, id string) (*task.Task, error) {
	var data []byte
	err := q.QueryRow(ctx, `SELECT data FROM tasks WHERE id = $1`, id).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load task %s: %w", id, err)
	}
	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("storage: decode task %s: %w", id, err)
	}
	return &t, nil
}

func (b *PostgresBackend) LoadAllTasks() ([]*task.Task, error) {
	return b.loadAllTasks(context.Background(), b.pool)
}

func (b *PostgresBackend) loadAllTasks(ctx context.Context, q queryer) ([]*task.Task, error) {
	rows, err := q.Query(ctx, `SELECT data FROM tasks ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: load all tasks: %w", err)
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("storage: scan task row: %w", err)
		}
		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("storage: decode task row: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) DeleteTask(id string) error {
	ctx := context.Background()
	if _, err := b.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("storage: delete task %s: %w", id, err)
	}
	return b.mirrorTasks(ctx)
}

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx, letting the same
// load helpers run inside or outside a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (b *PostgresBackend) Claim(workerID string, workerIndex int, agentKind string) (*task.Task, error) {
	ctx := context.Background()
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("storage: begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id FROM tasks WHERE status = $1 ORDER BY created_at ASC, id ASC`, string(task.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("storage: list pending: %w", err)
	}
	var pending []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
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

	t, err := b.loadTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	t.Claim(workerID, agentKind)

	buf, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal claimed task %s: %w", id, err)
	}
	tag, err := tx.Exec(ctx, `UPDATE tasks SET status = $1, data = $2 WHERE id = $3 AND status = $4`,
		string(t.Status), buf, id, string(task.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("storage: claim task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNoPendingTasks
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("storage: commit claim: %w", err)
	}
	if err := b.mirrorTasks(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (b *PostgresBackend) ReleaseStuck() (int, error) {
	ctx := context.Background()
	rows, err := b.pool.Query(ctx, `SELECT data FROM tasks WHERE status = $1`, string(task.StatusInProgress))
	if err != nil {
		return 0, fmt.Errorf("storage: list in_progress: %w", err)
	}
	var stuck []*task.Task
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			rows.Close()
			return 0, err
		}
		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
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
		if err := b.SaveTask(t); err != nil {
			return 0, err
		}
	}
	return len(stuck), nil
}

func (b *PostgresBackend) mirrorTasks(ctx context.Context) error {
	if !b.dir.enabled() {
		return nil
	}
	all, err := b.loadAllTasks(ctx, b.pool)
	if err != nil {
		return err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return writeTasksSnapshot(string(b.dir), all)
}

func (b *PostgresBackend) SaveSession(s *session.Session) error {
	ctx := context.Background()
	buf, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("storage: marshal session %s: %w", s.SessionID, err)
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO sessions (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`, s.SessionID, buf)
	if err != nil {
		return fmt.Errorf("storage: save session %s: %w", s.SessionID, err)
	}
	return writeStateSnapshot(string(b.dir), s)
}

func (b *PostgresBackend) LoadSession(id string) (*session.Session, error) {
	ctx := context.Background()
	var data []byte
	err := b.pool.QueryRow(ctx, `SELECT data FROM sessions WHERE id = $1`, id).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load session %s: %w", id, err)
	}
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("storage: decode session %s: %w", id, err)
	}
	return &s, nil
}

func (b *PostgresBackend) SaveAgentPool(id string, states []agentpool.State) error {
	ctx := context.Background()
	buf, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("storage: marshal agent pool: %w", err)
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO agent_pool (session_id, data) VALUES ($1, $2)
		ON CONFLICT (session_id) DO UPDATE SET data = excluded.data
	`, id, buf)
	if err != nil {
		return fmt.Errorf("storage: save agent pool: %w", err)
	}
	return writeAgentsSnapshot(string(b.dir), states)
}

func (b *PostgresBackend) LoadAgentPool(id string) ([]agentpool.State, error) {
	ctx := context.Background()
	var data []byte
	err := b.pool.QueryRow(ctx, `SELECT data FROM agent_pool WHERE session_id = $1`, id).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load agent pool: %w", err)
	}
	var states []agentpool.State
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("storage: decode agent pool: %w", err)
	}
	return states, nil
}
