package adapters

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"hbuild/internal/ports"
	"hbuild/internal/types"
)

const logSchema = `
CREATE TABLE IF NOT EXISTS log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	unit       TEXT    NOT NULL,
	stage      TEXT    NOT NULL DEFAULT '',
	text       TEXT    NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS log_unit ON log (unit, id);

CREATE TABLE IF NOT EXISTS history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	runner     TEXT    NOT NULL,
	units      TEXT    NOT NULL,
	status     TEXT    NOT NULL,
	message    TEXT    NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`

// SQLiteLogSink stores step output and runner job history in a local
// SQLite database.
type SQLiteLogSink struct {
	pool *sqlitex.Pool
	now  func() time.Time
}

func NewSQLiteLogSink(ctx context.Context, path string) (*SQLiteLogSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("log database path is empty")
	}
	size := runtime.NumCPU()
	if size < 2 {
		size = 2
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareLogConn,
	})
	if err != nil {
		return nil, logStoreError("failed to open log database", err)
	}
	sink := &SQLiteLogSink{pool: pool, now: time.Now}

	conn, err := pool.Take(ctx)
	if err != nil {
		_ = pool.Close()
		return nil, logStoreError("failed to open log database", err)
	}
	defer pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, logSchema, nil); err != nil {
		_ = pool.Close()
		return nil, logStoreError("failed to create log schema", err)
	}
	return sink, nil
}

func prepareLogConn(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteLogSink) Close() error {
	return s.pool.Close()
}

func (s *SQLiteLogSink) AppendLog(ctx context.Context, unit string, stage string, text string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return logStoreError("failed to take log connection", err)
	}
	defer s.pool.Put(conn)
	err = sqlitex.Execute(conn,
		"INSERT INTO log (unit, stage, text, created_at) VALUES (?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{unit, stage, text, s.now().UnixMilli()}})
	if err != nil {
		return logStoreError("failed to append log", err)
	}
	return nil
}

func (s *SQLiteLogSink) Logs(ctx context.Context, unit string) ([]types.LogEntry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, logStoreError("failed to take log connection", err)
	}
	defer s.pool.Put(conn)
	var entries []types.LogEntry
	err = sqlitex.Execute(conn,
		"SELECT id, unit, stage, text, created_at FROM log WHERE unit = ? ORDER BY id",
		&sqlitex.ExecOptions{
			Args: []any{unit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, types.LogEntry{
					ID:        stmt.ColumnInt64(0),
					Unit:      stmt.ColumnText(1),
					Stage:     stmt.ColumnText(2),
					Text:      stmt.ColumnText(3),
					CreatedAt: time.UnixMilli(stmt.ColumnInt64(4)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, logStoreError("failed to query logs", err)
	}
	return entries, nil
}

func (s *SQLiteLogSink) RecordJob(ctx context.Context, job types.JobRecord) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, logStoreError("failed to take log connection", err)
	}
	defer s.pool.Put(conn)
	created := job.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	err = sqlitex.Execute(conn,
		"INSERT INTO history (runner, units, status, message, created_at) VALUES (?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{
			job.Runner, strings.Join(job.Units, ","), string(job.Status), job.Message, created.UnixMilli(),
		}})
	if err != nil {
		return 0, logStoreError("failed to record job", err)
	}
	return conn.LastInsertRowID(), nil
}

// History returns the most recent jobs first.
func (s *SQLiteLogSink) History(ctx context.Context, limit int) ([]types.JobRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, logStoreError("failed to take log connection", err)
	}
	defer s.pool.Put(conn)
	if limit <= 0 {
		limit = 50
	}
	var jobs []types.JobRecord
	err = sqlitex.Execute(conn,
		"SELECT id, runner, units, status, message, created_at FROM history ORDER BY id DESC LIMIT ?",
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var units []string
				if raw := stmt.ColumnText(2); raw != "" {
					units = strings.Split(raw, ",")
				}
				jobs = append(jobs, types.JobRecord{
					ID:        stmt.ColumnInt64(0),
					Runner:    stmt.ColumnText(1),
					Units:     units,
					Status:    types.JobStatus(stmt.ColumnText(3)),
					Message:   stmt.ColumnText(4),
					CreatedAt: time.UnixMilli(stmt.ColumnInt64(5)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, logStoreError("failed to query history", err)
	}
	return jobs, nil
}

func logStoreError(msg string, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(msg).
		WithCause(err)
}

var _ ports.LogSinkPort = (*SQLiteLogSink)(nil)
