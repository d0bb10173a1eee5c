package db

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/minasamir1401/werete/internal/items"
)

// Manual overrides live in the settings table under this prefix, one key per
// snapshot row: manual_price:<asset>:<country>:<instrument>.
const OverridePrefix = "manual_price:"

func OverrideSettingKey(k items.Key) string {
	return OverridePrefix + string(k.Asset) + ":" + k.Country + ":" + k.Instrument
}

func ParseOverrideKey(s string) (items.Key, bool) {
	rest, ok := strings.CutPrefix(s, OverridePrefix)
	if !ok {
		return items.Key{}, false
	}
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return items.Key{}, false
	}
	return items.Key{Asset: items.Asset(parts[0]), Country: parts[1], Instrument: parts[2]}, true
}

type Override struct {
	Key   items.Key
	Price float64
	SetAt time.Time
}

func (d *DB) ListOverrides(ctx context.Context) ([]Override, error) {
	settings, err := d.ListSettings(ctx, OverridePrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Override, 0, len(settings))
	for _, s := range settings {
		k, ok := ParseOverrideKey(s.Key)
		if !ok {
			continue
		}
		p, err := strconv.ParseFloat(s.Value, 64)
		if err != nil {
			continue
		}
		out = append(out, Override{Key: k, Price: p, SetAt: s.UpdatedAt})
	}
	return out, nil
}

// ActiveOverrides returns the subset of keys that currently have a manual
// override.
func (t *Tx) ActiveOverrides(ctx context.Context, keys []items.Key) (map[items.Key]bool, error) {
	out := map[items.Key]bool{}
	if len(keys) == 0 {
		return out, nil
	}

	q := `SELECT key FROM settings WHERE key IN (` + placeholders(len(keys)) + `)`
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, OverrideSettingKey(k))
	}
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if k, ok := ParseOverrideKey(s); ok {
			out[k] = true
		}
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	s := "?"
	for i := 1; i < n; i++ {
		s += ",?"
	}
	return s
}
