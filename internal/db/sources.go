package db

import (
	"context"
	"fmt"
	"time"
)

type SourceSetting struct {
	Domain     string
	SourceName string
	Enabled    bool
	Priority   int
	UpdatedAt  time.Time
}

// ListSourceSettings returns every row for domain ordered by priority,
// disabled rows included.
func (d *DB) ListSourceSettings(ctx context.Context, domain string) ([]SourceSetting, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT domain,source_name,is_enabled,priority,updated_at FROM source_settings
		 WHERE domain=? ORDER BY priority ASC, source_name ASC`, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SourceSetting
	for rows.Next() {
		var s SourceSetting
		var enabled int
		var ts int64
		if err := rows.Scan(&s.Domain, &s.SourceName, &enabled, &s.Priority, &ts); err != nil {
			return nil, err
		}
		s.Enabled = enabled == 1
		s.UpdatedAt = time.Unix(ts, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// SeedSourceSettings inserts names with priorities 1..n, keeping any row
// that already exists.
func (d *DB) SeedSourceSettings(ctx context.Context, domain string, names []string) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	for i, name := range names {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO source_settings(domain,source_name,is_enabled,priority,updated_at) VALUES(?,?,1,?,?)`,
			domain, name, i+1, now); err != nil {
			return fmt.Errorf("seed %s/%s: %w", domain, name, err)
		}
	}
	return tx.Commit()
}

func (d *DB) SetSourceEnabled(ctx context.Context, domain, name string, enabled bool) error {
	res, err := d.sql.ExecContext(ctx,
		`UPDATE source_settings SET is_enabled=?, updated_at=? WHERE domain=? AND source_name=?`,
		boolToInt(enabled), time.Now().Unix(), domain, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceSourceSettings rewrites the ordering for domain in one transaction.
// Rows not present in settings are left untouched.
func (d *DB) ReplaceSourceSettings(ctx context.Context, domain string, settings []SourceSetting) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	for _, s := range settings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO source_settings(domain,source_name,is_enabled,priority,updated_at) VALUES(?,?,?,?,?)
			 ON CONFLICT(domain,source_name) DO UPDATE SET is_enabled=excluded.is_enabled, priority=excluded.priority, updated_at=excluded.updated_at`,
			domain, s.SourceName, boolToInt(s.Enabled), s.Priority, now); err != nil {
			return fmt.Errorf("update %s/%s: %w", domain, s.SourceName, err)
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
