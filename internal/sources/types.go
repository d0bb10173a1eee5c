package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/logger"
)

var (
	ErrUnknownDomain = errors.New("unknown domain")
	errNoData        = errors.New("no valid prices found")
)

// Observation is one normalized price read from one source. Status is left
// empty by adapters and stamped by the Manager on the winning result.
type Observation struct {
	Key        items.Key
	Sell       float64
	Buy        float64
	Currency   string
	Source     string
	Status     items.Status
	CapturedAt time.Time
}

func (o Observation) Valid() bool { return o.Sell > 0 }

// Adapter fetches one site. Fetch never fails: problems are logged, kept in
// LastError, and reported as an empty result.
type Adapter interface {
	Name() string
	Domain() items.Domain
	Fetch(ctx context.Context, target string) []Observation
	LastError() string
}

type parseFunc func(doc *goquery.Document, target string, b *batch) error

// htmlAdapter is one GET per target followed by a site-specific parse.
type htmlAdapter struct {
	name   string
	domain items.Domain
	client *Client
	urlFor func(target string) (string, error)
	parse  parseFunc
	now    func() time.Time

	mu      sync.Mutex
	lastErr string
}

func (a *htmlAdapter) Name() string         { return a.name }
func (a *htmlAdapter) Domain() items.Domain { return a.domain }

func (a *htmlAdapter) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *htmlAdapter) setErr(msg string) {
	a.mu.Lock()
	a.lastErr = msg
	a.mu.Unlock()
}

func (a *htmlAdapter) Fetch(ctx context.Context, target string) (out []Observation) {
	defer func() {
		if r := recover(); r != nil {
			a.fail(ctx, target, fmt.Errorf("panic: %v", r))
			out = nil
		}
	}()

	url, err := a.urlFor(target)
	if err != nil {
		a.fail(ctx, target, err)
		return nil
	}
	doc, err := a.client.Document(ctx, url)
	if err != nil {
		a.fail(ctx, target, err)
		return nil
	}

	now := time.Now
	if a.now != nil {
		now = a.now
	}
	b := newBatch(a.name, now().UTC())
	if err := a.parse(doc, target, b); err != nil {
		a.fail(ctx, target, err)
		return nil
	}
	if len(b.out) == 0 {
		a.fail(ctx, target, errNoData)
		return nil
	}
	if b.dropped > 0 {
		logger.Debug(ctx, "dropped out-of-band prices", "source", a.name, "target", target, "dropped", b.dropped)
	}
	a.setErr("")
	return b.out
}

func (a *htmlAdapter) fail(ctx context.Context, target string, err error) {
	a.setErr(err.Error())
	logger.Warn(ctx, "source fetch failed", "source", a.name, "target", target, "error", err)
}

// batch accumulates observations for one fetch, enforcing sanity bands and
// keeping the first reading per key.
type batch struct {
	source  string
	at      time.Time
	out     []Observation
	seen    map[items.Key]bool
	dropped int
}

func newBatch(source string, at time.Time) *batch {
	return &batch{source: source, at: at, seen: map[items.Key]bool{}}
}

// quote adds an observation with explicit sell and buy columns. A missing
// buy price falls back to the sell price.
func (b *batch) quote(k items.Key, sell, buy float64, currency string) bool {
	if k.Instrument == "" || b.seen[k] {
		return false
	}
	if !items.BandFor(k).Contains(sell) {
		b.dropped++
		return false
	}
	if buy <= 0 {
		buy = sell
	}
	b.seen[k] = true
	b.out = append(b.out, Observation{
		Key:        k,
		Sell:       sell,
		Buy:        buy,
		Currency:   currency,
		Source:     b.source,
		CapturedAt: b.at,
	})
	return true
}

// pair adds an observation from two undifferentiated values: the larger is
// the sell price.
func (b *batch) pair(k items.Key, v1, v2 float64, currency string) bool {
	sell, buy := v1, v2
	if buy > sell {
		sell, buy = buy, sell
	}
	if buy <= 0 {
		buy = sell
	}
	return b.quote(k, sell, buy, currency)
}

func (b *batch) has(k items.Key) bool { return b.seen[k] }
