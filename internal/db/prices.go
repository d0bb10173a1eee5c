package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/minasamir1401/werete/internal/items"
)

// PriceRow is one Latest Snapshot row.
type PriceRow struct {
	Key        items.Key
	Sell       float64
	Buy        float64
	Currency   string
	SourceName string
	Status     items.Status
	LastUpdate time.Time
}

// HistoryRow is one append-only History Entry.
type HistoryRow struct {
	ID         int64
	Key        items.Key
	Sell       float64
	Buy        float64
	SourceName string
	CycleID    string
	RecordedAt time.Time
}

const latestCols = `asset,country,instrument_key,sell_price,buy_price,currency,source_name,source_status,last_update`

// Latest returns snapshot rows for asset; an empty country means all.
func (d *DB) Latest(ctx context.Context, asset items.Asset, country string) ([]PriceRow, error) {
	q := `SELECT ` + latestCols + ` FROM latest_prices WHERE asset=?`
	args := []any{string(asset)}
	if country != "" {
		q += ` AND country=?`
		args = append(args, country)
	}
	q += ` ORDER BY country, instrument_key`
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PriceRow
	for rows.Next() {
		r, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) GetLatest(ctx context.Context, k items.Key) (PriceRow, error) {
	r, ok, err := getLatest(ctx, d.sql, k)
	if err != nil {
		return PriceRow{}, err
	}
	if !ok {
		return PriceRow{}, ErrNotFound
	}
	return r, nil
}

// History returns entries for k recorded at or after since, oldest first.
// limit <= 0 means no limit.
func (d *DB) History(ctx context.Context, k items.Key, since time.Time, limit int) ([]HistoryRow, error) {
	q := `SELECT id,asset,country,instrument_key,sell_price,buy_price,source_name,cycle_id,recorded_at
		FROM price_history WHERE asset=? AND country=? AND instrument_key=? AND recorded_at>=?
		ORDER BY recorded_at ASC, id ASC`
	args := []any{string(k.Asset), k.Country, k.Instrument, since.Unix()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		var asset string
		var ts int64
		if err := rows.Scan(&h.ID, &asset, &h.Key.Country, &h.Key.Instrument, &h.Sell, &h.Buy, &h.SourceName, &h.CycleID, &ts); err != nil {
			return nil, err
		}
		h.Key.Asset = items.Asset(asset)
		h.RecordedAt = time.Unix(ts, 0).UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

func (d *DB) CountHistory(ctx context.Context, k items.Key) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_history WHERE asset=? AND country=? AND instrument_key=?`,
		string(k.Asset), k.Country, k.Instrument).Scan(&n)
	return n, err
}

// Tx is the write surface available inside WithTx.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn in one transaction. Any error from fn rolls back every write.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *Tx) GetLatest(ctx context.Context, k items.Key) (PriceRow, bool, error) {
	return getLatest(ctx, t.tx, k)
}

func (t *Tx) UpsertLatest(ctx context.Context, r PriceRow) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO latest_prices(`+latestCols+`) VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(asset,country,instrument_key) DO UPDATE SET
			sell_price=excluded.sell_price, buy_price=excluded.buy_price, currency=excluded.currency,
			source_name=excluded.source_name, source_status=excluded.source_status, last_update=excluded.last_update`,
		string(r.Key.Asset), r.Key.Country, r.Key.Instrument, r.Sell, r.Buy, r.Currency,
		r.SourceName, string(r.Status), r.LastUpdate.Unix())
	return err
}

// Touch refreshes last_update and source metadata without changing prices.
func (t *Tx) Touch(ctx context.Context, k items.Key, source string, status items.Status, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE latest_prices SET source_name=?, source_status=?, last_update=?
		 WHERE asset=? AND country=? AND instrument_key=?`,
		source, string(status), at.Unix(), string(k.Asset), k.Country, k.Instrument)
	return err
}

func (t *Tx) InsertHistory(ctx context.Context, h HistoryRow) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO price_history(asset,country,instrument_key,sell_price,buy_price,source_name,cycle_id,recorded_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		string(h.Key.Asset), h.Key.Country, h.Key.Instrument, h.Sell, h.Buy, h.SourceName, h.CycleID, h.RecordedAt.Unix())
	return err
}

// HistoryExistsAt reports whether k already has an entry recorded at exactly at.
func (t *Tx) HistoryExistsAt(ctx context.Context, k items.Key, at time.Time) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx,
		`SELECT 1 FROM price_history WHERE asset=? AND country=? AND instrument_key=? AND recorded_at=? LIMIT 1`,
		string(k.Asset), k.Country, k.Instrument, at.Unix()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (t *Tx) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return getSetting(ctx, t.tx, key)
}

func (t *Tx) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, t.tx, key, value)
}

func (t *Tx) DeleteSetting(ctx context.Context, key string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM settings WHERE key=?`, key)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrice(s rowScanner) (PriceRow, error) {
	var r PriceRow
	var asset, status string
	var ts int64
	if err := s.Scan(&asset, &r.Key.Country, &r.Key.Instrument, &r.Sell, &r.Buy, &r.Currency, &r.SourceName, &status, &ts); err != nil {
		return PriceRow{}, err
	}
	r.Key.Asset = items.Asset(asset)
	r.Status = items.Status(status)
	r.LastUpdate = time.Unix(ts, 0).UTC()
	return r, nil
}

func getLatest(ctx context.Context, q queryer, k items.Key) (PriceRow, bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+latestCols+` FROM latest_prices WHERE asset=? AND country=? AND instrument_key=?`,
		string(k.Asset), k.Country, k.Instrument)
	r, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PriceRow{}, false, nil
	}
	if err != nil {
		return PriceRow{}, false, err
	}
	return r, true, nil
}
