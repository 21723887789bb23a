package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"media-shrinker/internal/logging"
)

const sqliteTimeout = 5 * time.Second

// SQLiteStore keeps job records in a local SQLite database. It suits
// single-node deployments that run without Redis for status.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	ttl    time.Duration
	now    func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string, ttl time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL allows readers during writes; immediate transactions take the write
	// lock up front so read-check-write in Put cannot deadlock on upgrade.
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, sqliteTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, dbPath: dbPath, ttl: ttl, now: time.Now}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Status database initialized at %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS job_status (
		job_key TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		record TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_job_status_expires ON job_status(expires_at);
	CREATE INDEX IF NOT EXISTS idx_job_status_state ON job_status(state);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Get returns the record for key, or nil if none exists or it has expired.
func (s *SQLiteStore) Get(ctx context.Context, key string) (rec *Record, err error) {
	defer func(start time.Time) { observeStore("sqlite", "get", start, err) }(time.Now())

	if key == "" {
		return nil, errors.New("job key is required")
	}
	return s.read(ctx, s.db, key)
}

// Put writes record under key, refusing to replace a terminal record.
func (s *SQLiteStore) Put(ctx context.Context, key string, record *Record) (err error) {
	defer func(start time.Time) { observeStore("sqlite", "put", start, err) }(time.Now())

	if err := record.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Error("failed to rollback status write for %s: %v", key, rbErr)
			}
		}
	}()

	prev, err := s.read(ctx, tx, key)
	if err != nil {
		return err
	}
	if err := checkTransition(key, prev, record); err != nil {
		return err
	}

	record.stamp(s.now(), s.ttl)
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	var expiresAt int64
	if !record.ExpiresAt.IsZero() {
		expiresAt = record.ExpiresAt.Unix()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO job_status (job_key, state, record, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_key) DO UPDATE SET
			state = excluded.state,
			record = excluded.record,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`, key, string(record.State), string(payload), record.UpdatedAt.Unix(), expiresAt)
	if err != nil {
		return fmt.Errorf("write status for %s: %w", key, err)
	}

	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) read(ctx context.Context, q queryer, key string) (*Record, error) {
	var payload string
	err := q.QueryRowContext(ctx,
		`SELECT record FROM job_status WHERE job_key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.now().Unix(),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read status for %s: %w", key, err)
	}

	var record Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("decode status for %s: %w", key, err)
	}
	return &record, nil
}

// PurgeExpired deletes records whose TTL has passed and returns how many
// were removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (n int64, err error) {
	defer func(start time.Time) { observeStore("sqlite", "purge", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM job_status WHERE expires_at != 0 AND expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge expired status records: %w", err)
	}
	return res.RowsAffected()
}

// StartPurger runs PurgeExpired every interval until ctx is cancelled.
func (s *SQLiteStore) StartPurger(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.PurgeExpired(ctx)
				if err != nil {
					logging.Warn("Status purge failed: %v", err)
					continue
				}
				if n > 0 {
					logging.Info("Purged %d expired status records", n)
				}
			}
		}
	}()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
