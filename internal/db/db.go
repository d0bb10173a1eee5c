package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

const schemaVersion = 1

type DB struct {
	sql *sql.DB
}

func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", dbPath)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer connection; domain loops queue on it.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := &DB{sql: sqldb}
	if err := db.migrate(context.Background()); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS source_settings (
			domain TEXT NOT NULL,
			source_name TEXT NOT NULL,
			is_enabled INTEGER NOT NULL DEFAULT 1,
			priority INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (domain, source_name)
		);`,
		`CREATE TABLE IF NOT EXISTS latest_prices (
			asset TEXT NOT NULL,
			country TEXT NOT NULL,
			instrument_key TEXT NOT NULL,
			sell_price REAL NOT NULL,
			buy_price REAL NOT NULL,
			currency TEXT NOT NULL,
			source_name TEXT NOT NULL,
			source_status TEXT NOT NULL,
			last_update INTEGER NOT NULL,
			PRIMARY KEY (asset, country, instrument_key)
		);`,
		`CREATE TABLE IF NOT EXISTS price_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			asset TEXT NOT NULL,
			country TEXT NOT NULL,
			instrument_key TEXT NOT NULL,
			sell_price REAL NOT NULL,
			buy_price REAL NOT NULL,
			source_name TEXT NOT NULL,
			cycle_id TEXT NOT NULL DEFAULT '',
			recorded_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_key_time ON price_history(asset, country, instrument_key, recorded_at);`,
		`CREATE INDEX IF NOT EXISTS idx_source_settings_priority ON source_settings(domain, priority);`,
	}
	for _, s := range stmts {
		if _, err := d.sql.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	_, err := d.sql.ExecContext(ctx, `INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version',?)`, strconv.Itoa(schemaVersion))
	return err
}

func (d *DB) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return getSetting(ctx, d.sql, key)
}

func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, d.sql, key, value)
}

type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// ListSettings returns settings whose key starts with prefix.
func (d *DB) ListSettings(ctx context.Context, prefix string) ([]Setting, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT key,value,updated_at FROM settings WHERE substr(key,1,?)=? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Setting
	for rows.Next() {
		var s Setting
		var ts int64
		if err := rows.Scan(&s.Key, &s.Value, &ts); err != nil {
			return nil, err
		}
		s.UpdatedAt = time.Unix(ts, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getSetting(ctx context.Context, q queryer, key string) (string, bool, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func setSetting(ctx context.Context, q queryer, key, value string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO settings(key,value,updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}
