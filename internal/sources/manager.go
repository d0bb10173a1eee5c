package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/logger"
	"github.com/minasamir1401/werete/internal/metrics"
)

// Attempt records one adapter call within a fallback run.
type Attempt struct {
	Source string
	Count  int
	Err    string
}

// Result is the outcome of one fallback run for one target. Source is empty
// when every adapter came back empty.
type Result struct {
	Domain       items.Domain
	Target       string
	Observations []Observation
	Source       string
	Status       items.Status
	Attempts     []Attempt
}

func (r Result) Exhausted() bool { return r.Source == "" }

// Observations flattens the winning observations of every result.
func Observations(results []Result) []Observation {
	var out []Observation
	for _, r := range results {
		out = append(out, r.Observations...)
	}
	return out
}

// Manager runs adapters in priority order and keeps the first usable result.
type Manager struct {
	resolver *Resolver
	metrics  *metrics.Metrics
}

func NewManager(resolver *Resolver, m *metrics.Metrics) *Manager {
	return &Manager{resolver: resolver, metrics: m}
}

func (m *Manager) Resolver() *Resolver { return m.resolver }

// Run resolves the order for d and runs one fallback pass for target.
func (m *Manager) Run(ctx context.Context, d items.Domain, target string) Result {
	return m.run(ctx, d, target, m.resolver.Resolve(ctx, d))
}

// RunDomain resolves the order once and runs a fallback pass per target of
// d, sequentially.
func (m *Manager) RunDomain(ctx context.Context, d items.Domain) ([]Result, error) {
	spec, ok := items.SpecFor(d)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, d)
	}
	adapters := m.resolver.Resolve(ctx, d)
	out := make([]Result, 0, len(spec.Targets))
	for i, target := range spec.Targets {
		if i > 0 && spec.TargetDelay > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(spec.TargetDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, m.run(ctx, d, target, adapters))
	}
	return out, nil
}

func (m *Manager) run(ctx context.Context, d items.Domain, target string, adapters []Adapter) Result {
	res := Result{Domain: d, Target: target}
	for i, a := range adapters {
		if ctx.Err() != nil {
			break
		}
		obs := validOnly(a.Fetch(ctx, target))
		res.Attempts = append(res.Attempts, Attempt{Source: a.Name(), Count: len(obs), Err: a.LastError()})
		m.metrics.ObserveFetch(a.Name(), len(obs) > 0)
		if len(obs) == 0 {
			continue
		}
		res.Source = a.Name()
		res.Status = items.StatusPrimary
		if i > 0 {
			res.Status = items.StatusFallback
		}
		for j := range obs {
			obs[j].Status = res.Status
		}
		res.Observations = obs
		logger.Info(ctx, "source succeeded", "source", a.Name(), "target", target, "status", res.Status, "prices", len(obs))
		return res
	}
	logger.Warn(ctx, "all sources exhausted", "target", target, "tried", len(res.Attempts))
	return res
}

func validOnly(obs []Observation) []Observation {
	out := obs[:0:0]
	for _, o := range obs {
		if o.Valid() {
			out = append(out, o)
		}
	}
	return out
}
