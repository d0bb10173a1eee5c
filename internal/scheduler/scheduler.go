package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/logger"
	"github.com/minasamir1401/werete/internal/metrics"
	"github.com/minasamir1401/werete/internal/render"
	"github.com/minasamir1401/werete/internal/sources"
)

const commitTimeout = 30 * time.Second

type Notifier interface {
	NotifyAdmins(ctx context.Context, text string)
}

// Runner runs one fallback pass per target of a domain.
type Runner interface {
	RunDomain(ctx context.Context, d items.Domain) ([]sources.Result, error)
}

type Committer interface {
	Commit(ctx context.Context, obs []sources.Observation) (int, error)
}

type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// Report is the outcome of one domain cycle.
type Report struct {
	Domain    items.Domain `json:"domain"`
	CycleID   string       `json:"cycle_id"`
	Started   time.Time    `json:"started"`
	Finished  time.Time    `json:"finished"`
	Outcome   string       `json:"outcome"`
	Written   int          `json:"written"`
	Targets   int          `json:"targets"`
	Exhausted []string     `json:"exhausted,omitempty"`
	Err       string       `json:"error,omitempty"`

	results []sources.Result
}

type Options struct {
	// Intervals used when the settings table has no usable value. Domains
	// missing here use their catalog default.
	Intervals     map[items.Domain]time.Duration
	CycleTimeout  time.Duration
	AlertThrottle time.Duration
	Domains       []items.DomainSpec
}

type Scheduler struct {
	runner   Runner
	writer   Committer
	settings Settings
	notify   Notifier
	metrics  *metrics.Metrics

	domains       []items.DomainSpec
	intervals     map[items.Domain]time.Duration
	cycleTimeout  time.Duration
	alertThrottle time.Duration

	cancel context.CancelFunc
	group  *errgroup.Group

	// one cycle at a time per domain, shared by the loop and RunNow
	locks map[items.Domain]*sync.Mutex

	mu             sync.Mutex
	lastFailNotify map[items.Domain]time.Time
	last           map[items.Domain]Report
}

func New(runner Runner, writer Committer, settings Settings, notifier Notifier, m *metrics.Metrics, opts Options) *Scheduler {
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 10 * time.Minute
	}
	if opts.AlertThrottle <= 0 {
		opts.AlertThrottle = 30 * time.Minute
	}
	if opts.Domains == nil {
		opts.Domains = items.Domains
	}
	s := &Scheduler{
		runner:         runner,
		writer:         writer,
		settings:       settings,
		notify:         notifier,
		metrics:        m,
		domains:        opts.Domains,
		intervals:      opts.Intervals,
		cycleTimeout:   opts.CycleTimeout,
		alertThrottle:  opts.AlertThrottle,
		locks:          map[items.Domain]*sync.Mutex{},
		lastFailNotify: map[items.Domain]time.Time{},
		last:           map[items.Domain]Report{},
	}
	for _, spec := range s.domains {
		s.locks[spec.Domain] = &sync.Mutex{}
	}
	return s
}

// Start launches one loop per domain. Each loop runs a cycle immediately,
// then sleeps for the domain's interval.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	for _, spec := range s.domains {
		spec := spec
		g.Go(func() error {
			s.loop(gctx, spec)
			return nil
		})
	}
}

// Stop cancels every loop and waits for in-flight cycles to return.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	_ = s.group.Wait()
}

func (s *Scheduler) loop(ctx context.Context, spec items.DomainSpec) {
	logger.Info(ctx, "scheduler loop started", "domain", spec.Domain)
	for {
		_, _ = s.RunNow(ctx, spec.Domain)

		wait := s.Interval(ctx, spec)
		logger.Debug(ctx, "waiting for next cycle", "domain", spec.Domain, "interval", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			logger.Info(ctx, "scheduler loop stopped", "domain", spec.Domain)
			return
		}
	}
}

// Interval reads the domain's interval setting in seconds. A missing,
// unparsable or non-positive value falls back to the configured interval,
// then to the catalog default.
func (s *Scheduler) Interval(ctx context.Context, spec items.DomainSpec) time.Duration {
	fallback := spec.DefaultInterval
	if d, ok := s.intervals[spec.Domain]; ok && d > 0 {
		fallback = d
	}
	if s.settings == nil {
		return fallback
	}
	v, ok, err := s.settings.GetSetting(ctx, spec.IntervalSetting)
	if err != nil {
		logger.Warn(ctx, "read interval setting", "key", spec.IntervalSetting, "error", err)
		return fallback
	}
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		logger.Warn(ctx, "ignoring bad interval setting", "key", spec.IntervalSetting, "value", v)
		return fallback
	}
	return time.Duration(n) * time.Second
}

// RunNow runs one cycle for d, waiting for any cycle of d already in flight.
func (s *Scheduler) RunNow(ctx context.Context, d items.Domain) (Report, error) {
	lock, ok := s.locks[d]
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", sources.ErrUnknownDomain, d)
	}
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	rep := s.runCycle(ctx, d)
	s.record(rep)
	if rep.Err != "" {
		return rep, errors.New(rep.Err)
	}
	return rep, nil
}

func (s *Scheduler) runCycle(parent context.Context, d items.Domain) (rep Report) {
	cycleID := uuid.NewString()
	ctx := logger.WithCycle(parent, cycleID, string(d))
	ctx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
	defer cancel()

	rep = Report{Domain: d, CycleID: cycleID, Started: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			rep.Outcome = metrics.OutcomeFailed
			rep.Err = fmt.Sprintf("panic: %v", r)
			logger.Error(ctx, "cycle panicked", "panic", r)
		}
		rep.Finished = time.Now()
		s.metrics.ObserveCycle(string(d), rep.Outcome, rep.Finished.Sub(rep.Started))
		if rep.Outcome != metrics.OutcomeCommitted && parent.Err() == nil {
			s.notifyFailure(ctx, rep)
		}
	}()

	logger.Info(ctx, "cycle started")
	results, err := s.runner.RunDomain(ctx, d)
	rep.results = results
	rep.Targets = len(results)
	for _, r := range results {
		if r.Exhausted() {
			rep.Exhausted = append(rep.Exhausted, r.Target)
		}
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		rep.Outcome = metrics.OutcomeFailed
		rep.Err = err.Error()
		logger.Error(ctx, "cycle aborted", "error", err)
		return rep
	}

	obs := sources.Observations(results)
	if len(obs) == 0 {
		rep.Outcome = metrics.OutcomeExhausted
		logger.Warn(ctx, "cycle found no prices", "targets", rep.Targets)
		return rep
	}

	// Fetching may have used up the cycle deadline; the commit gets its own.
	commitCtx, cancelCommit := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancelCommit()
	written, err := s.writer.Commit(commitCtx, obs)
	if err != nil {
		rep.Outcome = metrics.OutcomeFailed
		rep.Err = fmt.Sprintf("commit: %v", err)
		logger.Error(ctx, "commit failed, batch rolled back", "error", err, "observations", len(obs))
		return rep
	}
	rep.Outcome = metrics.OutcomeCommitted
	rep.Written = written
	logger.LogDuration(ctx, "cycle committed", rep.Started,
		"observations", len(obs), "history", written, "exhausted_targets", len(rep.Exhausted))
	return rep
}

func (s *Scheduler) record(rep Report) {
	s.mu.Lock()
	s.last[rep.Domain] = rep
	s.mu.Unlock()
}

// Status returns the last report of every domain that has run, in catalog
// order.
func (s *Scheduler) Status() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Report, 0, len(s.last))
	for _, spec := range s.domains {
		if r, ok := s.last[spec.Domain]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *Scheduler) notifyFailure(ctx context.Context, rep Report) {
	if s.notify == nil {
		return
	}
	s.mu.Lock()
	last := s.lastFailNotify[rep.Domain]
	if time.Since(last) < s.alertThrottle {
		s.mu.Unlock()
		return
	}
	s.lastFailNotify[rep.Domain] = time.Now()
	s.mu.Unlock()

	text := render.CycleAlert(render.CycleFailure{
		Domain:  rep.Domain,
		CycleID: rep.CycleID,
		At:      rep.Started,
		Err:     rep.Err,
		Results: rep.results,
	})
	// The cycle context may already be past its deadline.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	s.notify.NotifyAdmins(sendCtx, text)
}
