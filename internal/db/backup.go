package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupTo creates a consistent SQLite snapshot at dstPath using VACUUM INTO.
// This works even when WAL mode is enabled.
func (d *DB) BackupTo(ctx context.Context, dstPath string) error {
	escaped := strings.ReplaceAll(dstPath, "'", "''")
	_, err := d.sql.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s';", escaped))
	return err
}

// BackupToDir writes a timestamped snapshot into dir and returns its path.
func (d *DB) BackupToDir(ctx context.Context, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, "werete-"+now.UTC().Format("20060102-150405")+".db")
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("backup %s already exists", dst)
	}
	if err := d.BackupTo(ctx, dst); err != nil {
		return "", err
	}
	return dst, nil
}
