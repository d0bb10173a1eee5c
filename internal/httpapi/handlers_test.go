package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/minasamir1401/werete/internal/cache"
	"github.com/minasamir1401/werete/internal/db"
	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/reconcile"
	"github.com/minasamir1401/werete/internal/scheduler"
	"github.com/minasamir1401/werete/internal/sources"
)

type stubAdapter struct {
	name    string
	domain  items.Domain
	lastErr string
}

func (s *stubAdapter) Name() string                                        { return s.name }
func (s *stubAdapter) Domain() items.Domain                                { return s.domain }
func (s *stubAdapter) LastError() string                                   { return s.lastErr }
func (s *stubAdapter) Fetch(context.Context, string) []sources.Observation { return nil }

type stubCycles struct {
	ran []items.Domain
	err error
}

func (s *stubCycles) RunNow(_ context.Context, d items.Domain) (scheduler.Report, error) {
	s.ran = append(s.ran, d)
	return scheduler.Report{Domain: d, Outcome: "committed", Written: 3}, s.err
}

func (s *stubCycles) Status() []scheduler.Report {
	return []scheduler.Report{{Domain: items.DomainGoldLocal, Outcome: "committed"}}
}

type stubBackfill struct {
	points []sources.HistoryPoint
	asked  []int
}

func (s *stubBackfill) Fetch(_ context.Context, days int) ([]sources.HistoryPoint, error) {
	s.asked = append(s.asked, days)
	if days == 365 {
		return nil, errors.New("http 500: oops")
	}
	return s.points, nil
}

type recordingNotifier struct{ texts []string }

func (r *recordingNotifier) NotifyAdmins(_ context.Context, text string) {
	r.texts = append(r.texts, text)
}

type env struct {
	router   *gin.Engine
	store    *db.DB
	writer   *reconcile.Writer
	cycles   *stubCycles
	backfill *stubBackfill
	notifier *recordingNotifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	store, err := db.Open(filepath.Join(dir, "api.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	snap := cache.New(32, time.Minute)
	writer := reconcile.NewWriter(store, snap, nil)
	reg := sources.RegistryOf(
		&stubAdapter{name: "GoldEra", domain: items.DomainGoldLocal, lastErr: "http 503"},
		&stubAdapter{name: "Isagha", domain: items.DomainGoldLocal},
	)
	e := &env{
		store:    store,
		writer:   writer,
		cycles:   &stubCycles{},
		backfill: &stubBackfill{},
		notifier: &recordingNotifier{},
	}
	h := NewHandler(Deps{
		Store:     store,
		Writer:    writer,
		Cache:     snap,
		Resolver:  sources.NewResolver(store, reg),
		Cycles:    e.cycles,
		Backfill:  e.backfill,
		Notifier:  e.notifier,
		BackupDir: filepath.Join(dir, "backups"),
	})
	r := gin.New()
	h.RegisterRoutes(r)
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

type pricesResponse struct {
	Prices []priceDTO `json:"prices"`
}

func commit(t *testing.T, w *reconcile.Writer, k items.Key, sell float64) {
	t.Helper()
	_, err := w.Commit(context.Background(), []sources.Observation{{Key: k, Sell: sell, Buy: sell, Currency: "EGP", Source: "GoldEra"}})
	if err != nil {
		t.Fatal(err)
	}
}

var gold21 = items.Key{Asset: items.AssetGold, Country: "egypt", Instrument: "21"}

func TestGetPricesSeesCommitsThroughCache(t *testing.T) {
	e := newEnv(t)
	commit(t, e.writer, gold21, 4550)

	w := e.do(t, http.MethodGet, "/api/prices/gold?country=egypt", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	if got := decode[pricesResponse](t, w).Prices; len(got) != 1 || got[0].Sell != 4550 || got[0].Status != "Primary" {
		t.Fatalf("prices = %+v", got)
	}

	commit(t, e.writer, gold21, 4600)
	got := decode[pricesResponse](t, e.do(t, http.MethodGet, "/api/prices/gold?country=egypt", nil)).Prices
	if len(got) != 1 || got[0].Sell != 4600 {
		t.Fatalf("stale cache: %+v", got)
	}
}

func TestGetPricesUnknownAsset(t *testing.T) {
	e := newEnv(t)
	if w := e.do(t, http.MethodGet, "/api/prices/platinum", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestPriceOffsetSkipsManualRows(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	commit(t, e.writer, gold21, 4550)
	k24 := items.Key{Asset: items.AssetGold, Country: "egypt", Instrument: "24"}
	if _, err := e.writer.SetManual(ctx, k24, 5200); err != nil {
		t.Fatal(err)
	}
	if err := e.store.SetSetting(ctx, PriceOffsetSetting, "15"); err != nil {
		t.Fatal(err)
	}

	got := decode[pricesResponse](t, e.do(t, http.MethodGet, "/api/prices/gold", nil)).Prices
	bykey := map[string]priceDTO{}
	for _, p := range got {
		bykey[p.Key] = p
	}
	if bykey["21"].Sell != 4565 {
		t.Fatalf("21k sell = %v, want 4565", bykey["21"].Sell)
	}
	if bykey["24"].Sell != 5200 || bykey["24"].Status != "Manual" {
		t.Fatalf("24k = %+v", bykey["24"])
	}
}

func TestGetHistoryWithSlashInKey(t *testing.T) {
	e := newEnv(t)
	usd := items.Key{Asset: items.AssetCurrency, Country: "egypt", Instrument: "nbe/USD"}
	commit(t, e.writer, usd, 48.5)
	commit(t, e.writer, usd, 48.6)

	w := e.do(t, http.MethodGet, "/api/history/currency/egypt/nbe/USD?limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	resp := decode[struct {
		Key     string       `json:"key"`
		History []historyDTO `json:"history"`
	}](t, w)
	if resp.Key != "nbe/USD" || len(resp.History) != 2 || resp.History[1].Sell != 48.6 {
		t.Fatalf("history = %+v", resp)
	}

	if w := e.do(t, http.MethodGet, "/api/history/currency/egypt/nbe/USD?since=yesterday", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad since status %d", w.Code)
	}
}

func TestOverrideLifecycle(t *testing.T) {
	e := newEnv(t)
	commit(t, e.writer, gold21, 4550)

	w := e.do(t, http.MethodPost, "/api/admin/overrides", map[string]any{"asset": "gold", "key": "21", "price": 4500})
	if w.Code != http.StatusOK {
		t.Fatalf("set status %d: %s", w.Code, w.Body)
	}
	list := decode[struct {
		Overrides []map[string]any `json:"overrides"`
	}](t, e.do(t, http.MethodGet, "/api/admin/overrides", nil)).Overrides
	if len(list) != 1 || list[0]["price"] != 4500.0 || list[0]["country"] != "egypt" {
		t.Fatalf("overrides = %+v", list)
	}

	commit(t, e.writer, gold21, 4700)
	got := decode[pricesResponse](t, e.do(t, http.MethodGet, "/api/prices/gold", nil)).Prices
	if got[0].Sell != 4500 || got[0].Status != "Manual" {
		t.Fatalf("override not served: %+v", got)
	}

	if w := e.do(t, http.MethodDelete, "/api/admin/overrides/gold/egypt/21", nil); w.Code != http.StatusOK {
		t.Fatalf("clear status %d: %s", w.Code, w.Body)
	}
	if w := e.do(t, http.MethodDelete, "/api/admin/overrides/gold/egypt/21", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second clear status %d", w.Code)
	}
	if len(e.notifier.texts) != 2 {
		t.Fatalf("notifications = %d, want 2", len(e.notifier.texts))
	}
}

func TestSetOverrideRejectsUnknownAsset(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/admin/overrides", map[string]any{"asset": "platinum", "key": "21", "price": 10})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestSourcesListAndReorder(t *testing.T) {
	e := newEnv(t)

	resp := decode[struct {
		Sources []sourceDTO `json:"sources"`
	}](t, e.do(t, http.MethodGet, "/api/admin/sources/gold_local", nil))
	if len(resp.Sources) != 2 || resp.Sources[0].Name != "GoldEra" || resp.Sources[0].LastError != "http 503" {
		t.Fatalf("sources = %+v", resp.Sources)
	}

	body := map[string]any{"sources": []map[string]any{
		{"name": "Isagha", "enabled": true},
		{"name": "GoldEra", "enabled": false},
	}}
	w := e.do(t, http.MethodPut, "/api/admin/sources/gold_local", body)
	if w.Code != http.StatusOK {
		t.Fatalf("put status %d: %s", w.Code, w.Body)
	}
	rows, err := e.store.ListSourceSettings(context.Background(), "gold_local")
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].SourceName != "Isagha" || rows[1].Enabled {
		t.Fatalf("rows = %+v", rows)
	}

	body = map[string]any{"sources": []map[string]any{{"name": "Nope", "enabled": true}}}
	if w := e.do(t, http.MethodPut, "/api/admin/sources/gold_local", body); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown source status %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/admin/sources/platinum", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown domain status %d", w.Code)
	}
}

func TestSetSourceEnabled(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPut, "/api/admin/sources/gold_local/GoldEra", map[string]any{"enabled": false})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	rows, _ := e.store.ListSourceSettings(context.Background(), "gold_local")
	if rows[0].SourceName != "GoldEra" || rows[0].Enabled {
		t.Fatalf("rows = %+v", rows)
	}
	if w := e.do(t, http.MethodPut, "/api/admin/sources/gold_local/Nope", map[string]any{"enabled": true}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown source status %d", w.Code)
	}
}

func TestRunDomain(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/admin/run/silver", nil)
	if w.Code != http.StatusOK || len(e.cycles.ran) != 1 || e.cycles.ran[0] != items.DomainSilver {
		t.Fatalf("status %d ran %v", w.Code, e.cycles.ran)
	}
	if w := e.do(t, http.MethodPost, "/api/admin/run/platinum", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown domain status %d", w.Code)
	}
	e.cycles.err = errors.New("commit: database is locked")
	if w := e.do(t, http.MethodPost, "/api/admin/run/silver", nil); w.Code != http.StatusBadGateway {
		t.Fatalf("failed run status %d", w.Code)
	}
}

func TestBackfillHistory(t *testing.T) {
	e := newEnv(t)
	e.backfill.points = []sources.HistoryPoint{
		{Key: gold21, Price: 4200, At: time.Date(2025, 1, 4, 10, 0, 0, 0, time.UTC), Source: "GoldPriceLive"},
	}

	w := e.do(t, http.MethodPost, "/api/admin/backfill", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	resp := decode[struct {
		Inserted int      `json:"inserted"`
		Failed   []string `json:"failed_windows"`
	}](t, w)
	if resp.Inserted != 1 || len(resp.Failed) != 1 || resp.Failed[0] != "365" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(e.backfill.asked) != len(sources.HistoryWindows) {
		t.Fatalf("asked = %v", e.backfill.asked)
	}
	if w := e.do(t, http.MethodPost, "/api/admin/backfill?days=45", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad window status %d", w.Code)
	}
}

func TestBackupAndHealth(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/api/admin/backup", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "werete-") {
		t.Fatalf("backup status %d: %s", w.Code, w.Body)
	}
	w = e.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"gold_local"`) {
		t.Fatalf("health status %d: %s", w.Code, w.Body)
	}
}
