package sources

import (
	"context"
	"slices"
	"strings"

	"github.com/minasamir1401/werete/internal/db"
	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/logger"
)

// GoldSourceOrderSetting is a comma-separated list of gold_local source
// names. Listed sources move to the front of that domain's priorities each
// time the value changes; the rest keep their relative order.
const GoldSourceOrderSetting = "gold_source_order"

// goldOrderAppliedSetting holds the last order string written to the rows.
const goldOrderAppliedSetting = "gold_source_order_applied"

type SourceStore interface {
	ListSourceSettings(ctx context.Context, domain string) ([]db.SourceSetting, error)
	SeedSourceSettings(ctx context.Context, domain string, names []string) error
	ReplaceSourceSettings(ctx context.Context, domain string, settings []db.SourceSetting) error
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Resolver turns persisted Source Settings into an ordered adapter list.
type Resolver struct {
	store    SourceStore
	registry *Registry
}

func NewResolver(store SourceStore, registry *Registry) *Resolver {
	return &Resolver{store: store, registry: registry}
}

func (r *Resolver) Registry() *Registry { return r.registry }

// Resolve returns the adapters to try for d, in order. Enabled rows come
// first by ascending priority; built-ins without a row are appended in
// default order. The result is never empty while d has a built-in adapter.
func (r *Resolver) Resolve(ctx context.Context, d items.Domain) []Adapter {
	defaults := r.registry.Defaults(d)
	if len(defaults) == 0 {
		return nil
	}

	rows, err := r.store.ListSourceSettings(ctx, string(d))
	if err != nil {
		logger.Error(ctx, "read source settings", "domain", d, "error", err)
		return defaults
	}
	if len(rows) == 0 {
		names := r.seedOrder(ctx, d)
		if err := r.store.SeedSourceSettings(ctx, string(d), names); err != nil {
			logger.Error(ctx, "seed source settings", "domain", d, "error", err)
		}
		return r.byNames(d, names)
	}
	if d == items.DomainGoldLocal {
		rows = r.applyGoldOrder(ctx, rows)
	}

	listed := make(map[string]bool, len(rows))
	var out []Adapter
	for _, row := range rows {
		listed[row.SourceName] = true
		if !row.Enabled {
			continue
		}
		a, ok := r.registry.Lookup(d, row.SourceName)
		if !ok {
			logger.Warn(ctx, "unknown source in settings", "domain", d, "source", row.SourceName)
			continue
		}
		out = append(out, a)
	}
	for _, a := range defaults {
		if !listed[a.Name()] {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		logger.Warn(ctx, "all sources disabled, using defaults", "domain", d)
		return defaults
	}
	return out
}

// seedOrder is the default order, except for gold_local where the order
// string may promote some sources.
func (r *Resolver) seedOrder(ctx context.Context, d items.Domain) []string {
	defaults := r.registry.DefaultNames(d)
	if d != items.DomainGoldLocal {
		return defaults
	}
	v, ok, err := r.store.GetSetting(ctx, GoldSourceOrderSetting)
	if err != nil || !ok {
		return defaults
	}
	names := r.parseOrder(ctx, d, v)
	for _, name := range defaults {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	r.markApplied(ctx, v)
	return names
}

// applyGoldOrder rewrites the gold_local rows when the order string changed
// since it was last applied. Enabled flags are kept.
func (r *Resolver) applyGoldOrder(ctx context.Context, rows []db.SourceSetting) []db.SourceSetting {
	v, ok, err := r.store.GetSetting(ctx, GoldSourceOrderSetting)
	if err != nil || !ok {
		return rows
	}
	applied, _, err := r.store.GetSetting(ctx, goldOrderAppliedSetting)
	if err != nil || applied == v {
		return rows
	}

	d := items.DomainGoldLocal
	order := r.parseOrder(ctx, d, v)
	byName := make(map[string]db.SourceSetting, len(rows))
	for _, row := range rows {
		byName[row.SourceName] = row
	}
	next := make([]db.SourceSetting, 0, len(rows)+len(order))
	add := func(name string) {
		row, ok := byName[name]
		if !ok {
			row = db.SourceSetting{Domain: string(d), SourceName: name, Enabled: true}
		}
		row.Priority = len(next) + 1
		next = append(next, row)
	}
	for _, name := range order {
		add(name)
	}
	for _, row := range rows {
		if !slices.Contains(order, row.SourceName) {
			add(row.SourceName)
		}
	}
	if err := r.store.ReplaceSourceSettings(ctx, string(d), next); err != nil {
		logger.Error(ctx, "apply gold source order", "order", v, "error", err)
		return rows
	}
	r.markApplied(ctx, v)
	logger.Info(ctx, "gold source order applied", "order", order)
	return next
}

func (r *Resolver) markApplied(ctx context.Context, v string) {
	if err := r.store.SetSetting(ctx, goldOrderAppliedSetting, v); err != nil {
		logger.Warn(ctx, "record applied gold source order", "error", err)
	}
}

// parseOrder returns the known, distinct source names of an order string.
func (r *Resolver) parseOrder(ctx context.Context, d items.Domain, v string) []string {
	var names []string
	for _, part := range strings.Split(v, ",") {
		name := strings.TrimSpace(part)
		if name == "" || slices.Contains(names, name) {
			continue
		}
		if _, known := r.registry.Lookup(d, name); !known {
			logger.Warn(ctx, "unknown source in gold source order", "source", name)
			continue
		}
		names = append(names, name)
	}
	return names
}

func (r *Resolver) byNames(d items.Domain, names []string) []Adapter {
	out := make([]Adapter, 0, len(names))
	for _, n := range names {
		if a, ok := r.registry.Lookup(d, n); ok {
			out = append(out, a)
		}
	}
	return out
}
