// Package reconcile folds winning observations into the Latest Snapshot and
// appends History Entries when a price moves.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minasamir1401/werete/internal/db"
	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/logger"
	"github.com/minasamir1401/werete/internal/metrics"
	"github.com/minasamir1401/werete/internal/sources"
)

const (
	manualSource        = "Manual"
	manualHistorySource = "Manual Override"
)

var ErrInvalidOverride = errors.New("invalid manual override")

// Invalidator is told about every (asset, country) a commit touched.
type Invalidator interface {
	Invalidate(asset items.Asset, country string)
}

type Writer struct {
	store   *db.DB
	cache   Invalidator
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewWriter(store *db.DB, cache Invalidator, m *metrics.Metrics) *Writer {
	return &Writer{store: store, cache: cache, metrics: m, now: time.Now}
}

type scope struct {
	asset   items.Asset
	country string
}

// Commit reconciles obs against the snapshot in one transaction and returns
// the number of History Entries written. Keys under a manual override are
// skipped, as are invalid observations and repeats of a key already seen in
// the batch. On error nothing is written.
func (w *Writer) Commit(ctx context.Context, obs []sources.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	cycleID := logger.CycleID(ctx)
	if cycleID == "" {
		cycleID = uuid.NewString()
	}
	now := w.now().UTC().Truncate(time.Second)

	var written, skipped int
	perAsset := map[items.Asset]int{}
	touched := map[scope]bool{}

	err := w.store.WithTx(ctx, func(tx *db.Tx) error {
		keys := make([]items.Key, 0, len(obs))
		for _, o := range obs {
			keys = append(keys, o.Key)
		}
		manual, err := tx.ActiveOverrides(ctx, keys)
		if err != nil {
			return fmt.Errorf("read overrides: %w", err)
		}

		seen := make(map[items.Key]bool, len(obs))
		for _, o := range obs {
			if !o.Valid() || seen[o.Key] {
				continue
			}
			seen[o.Key] = true
			if manual[o.Key] {
				skipped++
				continue
			}
			status := o.Status
			if status == "" {
				status = items.StatusPrimary
			}

			cur, ok, err := tx.GetLatest(ctx, o.Key)
			if err != nil {
				return fmt.Errorf("read %s: %w", o.Key, err)
			}
			touched[scope{o.Key.Asset, o.Key.Country}] = true
			if ok && samePrice(cur.Sell, o.Sell) && samePrice(cur.Buy, o.Buy) {
				if err := tx.Touch(ctx, o.Key, o.Source, status, now); err != nil {
					return fmt.Errorf("touch %s: %w", o.Key, err)
				}
				continue
			}

			row := db.PriceRow{
				Key:        o.Key,
				Sell:       o.Sell,
				Buy:        o.Buy,
				Currency:   o.Currency,
				SourceName: o.Source,
				Status:     status,
				LastUpdate: now,
			}
			if err := tx.UpsertLatest(ctx, row); err != nil {
				return fmt.Errorf("upsert %s: %w", o.Key, err)
			}
			if err := tx.InsertHistory(ctx, db.HistoryRow{
				Key:        o.Key,
				Sell:       o.Sell,
				Buy:        o.Buy,
				SourceName: o.Source,
				CycleID:    cycleID,
				RecordedAt: now,
			}); err != nil {
				return fmt.Errorf("history %s: %w", o.Key, err)
			}
			written++
			perAsset[o.Key.Asset]++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for s := range touched {
		w.invalidate(s.asset, s.country)
	}
	for asset, n := range perAsset {
		w.metrics.AddHistory(string(asset), n)
	}
	if skipped > 0 {
		logger.Debug(ctx, "skipped keys under manual override", "keys", skipped)
	}
	return written, nil
}

// SetManual pins k to price. The snapshot row becomes Manual with sell and
// buy equal to price, and a History Entry is always written.
func (w *Writer) SetManual(ctx context.Context, k items.Key, price float64) (db.PriceRow, error) {
	if err := validateOverride(k, price); err != nil {
		return db.PriceRow{}, err
	}
	now := w.now().UTC().Truncate(time.Second)
	var row db.PriceRow

	err := w.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.SetSetting(ctx, db.OverrideSettingKey(k), strconv.FormatFloat(price, 'f', -1, 64)); err != nil {
			return fmt.Errorf("store override: %w", err)
		}
		cur, ok, err := tx.GetLatest(ctx, k)
		if err != nil {
			return fmt.Errorf("read %s: %w", k, err)
		}
		currency := currencyFor(k)
		if ok && cur.Currency != "" {
			currency = cur.Currency
		}
		row = db.PriceRow{
			Key:        k,
			Sell:       price,
			Buy:        price,
			Currency:   currency,
			SourceName: manualSource,
			Status:     items.StatusManual,
			LastUpdate: now,
		}
		if err := tx.UpsertLatest(ctx, row); err != nil {
			return fmt.Errorf("upsert %s: %w", k, err)
		}
		return tx.InsertHistory(ctx, db.HistoryRow{
			Key:        k,
			Sell:       price,
			Buy:        price,
			SourceName: manualHistorySource,
			CycleID:    uuid.NewString(),
			RecordedAt: now,
		})
	})
	if err != nil {
		return db.PriceRow{}, err
	}

	w.invalidate(k.Asset, k.Country)
	w.metrics.AddHistory(string(k.Asset), 1)
	w.refreshOverrideGauge(ctx)
	logger.Info(ctx, "manual override set", "key", k.String(), "price", price)
	return row, nil
}

// ClearManual removes the override for k. The snapshot keeps the manual
// value until the next automated cycle replaces it. It reports whether an
// override existed.
func (w *Writer) ClearManual(ctx context.Context, k items.Key) (bool, error) {
	var removed bool
	err := w.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		removed, err = tx.DeleteSetting(ctx, db.OverrideSettingKey(k))
		return err
	})
	if err != nil {
		return false, err
	}
	if removed {
		w.refreshOverrideGauge(ctx)
		logger.Info(ctx, "manual override cleared", "key", k.String())
	}
	return removed, nil
}

// Backfill inserts archived points as History Entries where k has no entry at
// that exact time. It never touches the snapshot or existing history.
func (w *Writer) Backfill(ctx context.Context, points []sources.HistoryPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	cycleID := logger.CycleID(ctx)
	if cycleID == "" {
		cycleID = uuid.NewString()
	}
	var inserted int
	perAsset := map[items.Asset]int{}
	err := w.store.WithTx(ctx, func(tx *db.Tx) error {
		for _, p := range points {
			if p.Price <= 0 {
				continue
			}
			at := p.At.UTC().Truncate(time.Second)
			exists, err := tx.HistoryExistsAt(ctx, p.Key, at)
			if err != nil {
				return fmt.Errorf("check %s: %w", p.Key, err)
			}
			if exists {
				continue
			}
			if err := tx.InsertHistory(ctx, db.HistoryRow{
				Key:        p.Key,
				Sell:       p.Price,
				Buy:        p.Price,
				SourceName: p.Source,
				CycleID:    cycleID,
				RecordedAt: at,
			}); err != nil {
				return fmt.Errorf("insert %s: %w", p.Key, err)
			}
			inserted++
			perAsset[p.Key.Asset]++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for asset, n := range perAsset {
		w.metrics.AddHistory(string(asset), n)
	}
	return inserted, nil
}

func (w *Writer) invalidate(asset items.Asset, country string) {
	if w.cache != nil {
		w.cache.Invalidate(asset, country)
	}
}

// SyncMetrics sets gauges that mirror stored state. Called once at startup.
func (w *Writer) SyncMetrics(ctx context.Context) {
	w.refreshOverrideGauge(ctx)
}

func (w *Writer) refreshOverrideGauge(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	list, err := w.store.ListOverrides(ctx)
	if err != nil {
		logger.Warn(ctx, "count overrides", "error", err)
		return
	}
	w.metrics.SetOverrides(len(list))
}

func validateOverride(k items.Key, price float64) error {
	switch {
	case !k.Asset.Valid():
		return fmt.Errorf("%w: unknown asset %q", ErrInvalidOverride, k.Asset)
	case k.Country == "" || k.Instrument == "":
		return fmt.Errorf("%w: country and instrument are required", ErrInvalidOverride)
	case price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidOverride)
	}
	return nil
}

func currencyFor(k items.Key) string {
	if k.Asset == items.AssetSilver && k.Instrument == items.SilverOunceUSDKey {
		return "USD"
	}
	if k.Asset == items.AssetGold && k.Country != items.HomeCountry {
		if c, ok := items.CountryBySlug(k.Country); ok {
			return c.Currency
		}
	}
	return "EGP"
}

func samePrice(a, b float64) bool {
	return decimal.NewFromFloat(a).Equal(decimal.NewFromFloat(b))
}
