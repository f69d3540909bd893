package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Entry is one download attempt.
type Entry struct {
	ID         string
	Name       string
	Outcome    string
	Bytes      int64
	RemoteAddr string
	CreatedAt  time.Time
}

type DB struct {
	*sql.DB
	Logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    outcome TEXT NOT NULL,
    bytes INTEGER NOT NULL DEFAULT 0,
    remote_addr TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS downloads_created_at ON downloads(created_at);
`

func New(dbPath string, logger *zap.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; downloads record concurrently.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{DB: sqlDB, Logger: logger}, nil
}

// Record stores e, filling in ID and CreatedAt when empty.
func (d *DB) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := d.ExecContext(ctx,
		`INSERT INTO downloads (id, name, outcome, bytes, remote_addr, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Outcome, e.Bytes, e.RemoteAddr, e.CreatedAt.UTC(),
	)
	return err
}

// Recent returns up to limit entries, newest first.
func (d *DB) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT id, name, outcome, bytes, remote_addr, created_at FROM downloads ORDER BY created_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Outcome, &e.Bytes, &e.RemoteAddr, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries created before the cutoff and reports how many went.
func (d *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := d.ExecContext(ctx, `DELETE FROM downloads WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StartRetention prunes entries older than keep once immediately and then
// on every tick, until ctx is cancelled. The returned channel is closed when
// the worker exits.
func (d *DB) StartRetention(ctx context.Context, every, keep time.Duration) <-chan struct{} {
	done := make(chan struct{})
	prune := func(reason string) {
		n, err := d.Prune(ctx, time.Now().Add(-keep))
		if err != nil {
			if ctx.Err() == nil {
				d.Logger.Error("audit prune failed", zap.String("reason", reason), zap.Error(err))
			}
			return
		}
		d.Logger.Debug("audit pruned", zap.String("reason", reason), zap.Int64("rows", n))
	}

	go func() {
		defer close(done)
		prune("startup")

		ti := time.NewTicker(every)
		defer ti.Stop()
		for {
			select {
			case <-ti.C:
				prune("scheduled")
			case <-ctx.Done():
				d.Logger.Info("audit retention stopped")
				return
			}
		}
	}()
	return done
}
