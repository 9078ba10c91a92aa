// Package sqlite implements the db.Store facade on a single SQLite file,
// giving the index a durable, directory-scoped store with no external
// service. Uses modernc.org/sqlite for pure-Go SQLite support.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/smartbookqa/bookqa/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const dbFileName = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	k TEXT PRIMARY KEY,
	v BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS hashes (
	k     TEXT NOT NULL,
	field TEXT NOT NULL,
	v     BLOB NOT NULL,
	PRIMARY KEY (k, field)
);
`

// Store implements db.Store on an embedded SQLite database.
type Store struct {
	conn *sql.DB
	path string
}

// NewStore opens (or creates) the store inside dir. Writes are
// synchronous: every committed transaction is on disk before the call
// returns.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dir, dbFileName)
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(FULL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Path returns the location of the database file.
func (s *Store) Path() string { return s.path }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// WaitForReady pings the store once; an embedded database is ready as
// soon as it opens.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	return nil
}

// HSet sets hash fields inside one transaction.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	return s.HSetMulti(ctx, []db.HashSetItem{{Key: key, Fields: fields}})
}

// HSetMulti stores multiple hashes inside one transaction.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO hashes (k, field, v) VALUES (?, ?, ?) ON CONFLICT (k, field) DO UPDATE SET v = excluded.v")
	if err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	defer func() { _ = stmt.Close() }()

	for _, item := range items {
		for f, v := range item.Fields {
			if _, err := stmt.ExecContext(ctx, item.Key, f, []byte(v)); err != nil {
				return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", item.Key, err)}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

// HGetAll returns all fields of a hash. Missing keys yield an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT field, v FROM hashes WHERE k = ?", key)
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var field string
		var v []byte
		if err := rows.Scan(&field, &v); err != nil {
			return nil, &db.Error{Op: db.OpHGetAll, Err: err}
		}
		out[field] = string(v)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	return out, nil
}

// HGetAllMulti fetches all fields for multiple hashes.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, key := range keys {
		m, err := s.HGetAll(ctx, key)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// Del deletes a key from both the kv and hash tables.
func (s *Store) Del(ctx context.Context, key string) error {
	return s.DelMulti(ctx, []string{key})
}

// DelMulti deletes multiple keys inside one transaction.
func (s *Store) DelMulti(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, "DELETE FROM hashes WHERE k = ?", key); err != nil {
			return &db.Error{Op: db.OpDel, Err: err}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE k = ?", key); err != nil {
			return &db.Error{Op: db.OpDel, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Exists checks if a key exists in either table.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM kv WHERE k = ?) OR EXISTS (SELECT 1 FROM hashes WHERE k = ?)",
		key, key,
	).Scan(&n)
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
	return n > 0, nil
}

// Scan returns keys matching a Redis-style glob pattern ('*' wildcard).
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	like := globToLike(pattern)
	rows, err := s.conn.QueryContext(ctx,
		`SELECT k FROM kv WHERE k LIKE ? ESCAPE '\'
		 UNION
		 SELECT DISTINCT k FROM hashes WHERE k LIKE ? ESCAPE '\'`,
		like, like,
	)
	if err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}
	return keys, nil
}

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.conn.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return v, nil
}

// Set stores a value at the given key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = excluded.v",
		key, value,
	)
	if err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// IncrBy increments an integer-valued key inside a write transaction and
// returns the new value. Missing keys start at zero.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, &db.Error{Op: db.OpIncrBy, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var cur int64
	var raw []byte
	err = tx.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = ?", key).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		cur = 0
	case err != nil:
		return 0, &db.Error{Op: db.OpIncrBy, Err: err}
	default:
		cur, err = strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, &db.Error{Op: db.OpIncrBy, Err: fmt.Errorf("key %s holds non-integer value: %w", key, err)}
		}
	}

	next := cur + val
	_, err = tx.ExecContext(ctx,
		"INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = excluded.v",
		key, []byte(strconv.FormatInt(next, 10)),
	)
	if err != nil {
		return 0, &db.Error{Op: db.OpIncrBy, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &db.Error{Op: db.OpIncrBy, Err: err}
	}
	return next, nil
}

// globToLike converts a Redis-style glob pattern to a SQL LIKE pattern.
func globToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
