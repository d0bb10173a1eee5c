package httpapi

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/minasamir1401/werete/internal/db"
	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/logger"
	"github.com/minasamir1401/werete/internal/reconcile"
	"github.com/minasamir1401/werete/internal/render"
	"github.com/minasamir1401/werete/internal/sources"
	"github.com/minasamir1401/werete/internal/utils"
)

// PriceOffsetSetting shifts automated local gold prices on read. Manual rows
// are served as set.
const PriceOffsetSetting = "price_offset"

const (
	defaultHistoryLimit = 500
	maxHistoryLimit     = 5000
)

type priceDTO struct {
	Asset      string    `json:"asset"`
	Country    string    `json:"country"`
	Key        string    `json:"key"`
	Sell       float64   `json:"sell"`
	Buy        float64   `json:"buy"`
	Currency   string    `json:"currency"`
	Source     string    `json:"source"`
	Status     string    `json:"status"`
	LastUpdate time.Time `json:"last_update"`
	Age        string    `json:"age"`
}

type historyDTO struct {
	Sell       float64   `json:"sell"`
	Buy        float64   `json:"buy"`
	Source     string    `json:"source"`
	CycleID    string    `json:"cycle_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type sourceDTO struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Priority  int    `json:"priority"`
	Known     bool   `json:"known"`
	LastError string `json:"last_error,omitempty"`
}

func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	var cycles any = []any{}
	if h.Cycles != nil {
		cycles = h.Cycles.Status()
	}
	if err := h.Store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error(), "domains": cycles})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok", "domains": cycles})
}

func (h *Handler) GetPrices(c *gin.Context) {
	ctx := c.Request.Context()
	asset := items.Asset(c.Param("asset"))
	if !asset.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown asset"})
		return
	}
	country := c.Query("country")

	rows, ok := h.Cache.Get(asset, country)
	if !ok {
		gen := h.Cache.Generation()
		var err error
		rows, err = h.Store.Latest(ctx, asset, country)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		h.Cache.Set(gen, asset, country, rows)
	}

	offset := h.priceOffset(c)
	now := h.now()
	out := make([]priceDTO, 0, len(rows))
	for _, r := range rows {
		if offset != 0 && r.Key.Asset == items.AssetGold && r.Key.Country == items.HomeCountry && r.Status != items.StatusManual {
			r.Sell += offset
			r.Buy += offset
		}
		out = append(out, priceDTO{
			Asset:      string(r.Key.Asset),
			Country:    r.Key.Country,
			Key:        r.Key.Instrument,
			Sell:       r.Sell,
			Buy:        r.Buy,
			Currency:   r.Currency,
			Source:     r.SourceName,
			Status:     string(r.Status),
			LastUpdate: r.LastUpdate,
			Age:        utils.Ago(now, r.LastUpdate),
		})
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset, "country": country, "prices": out})
}

func (h *Handler) priceOffset(c *gin.Context) float64 {
	v, ok, err := h.Store.GetSetting(c.Request.Context(), PriceOffsetSetting)
	if err != nil || !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		logger.Warn(c.Request.Context(), "ignoring bad price offset", "value", v)
		return 0
	}
	return f
}

func (h *Handler) GetHistory(c *gin.Context) {
	k, ok := keyFromPath(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset, country and key are required"})
		return
	}
	since, err := parseSince(c.Query("since"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit := defaultHistoryLimit
	if s := c.Query("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			limit = min(l, maxHistoryLimit)
		}
	}

	rows, err := h.Store.History(c.Request.Context(), k, since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]historyDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, historyDTO{Sell: r.Sell, Buy: r.Buy, Source: r.SourceName, CycleID: r.CycleID, RecordedAt: r.RecordedAt})
	}
	c.JSON(http.StatusOK, gin.H{"asset": k.Asset, "country": k.Country, "key": k.Instrument, "history": out})
}

// parseSince accepts RFC 3339, a date, or unix seconds. Empty means all.
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, utils.CairoLoc()); err == nil {
		return t, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0), nil
	}
	return time.Time{}, errors.New("since must be RFC 3339, YYYY-MM-DD or unix seconds")
}

func keyFromPath(c *gin.Context) (items.Key, bool) {
	k := items.Key{
		Asset:      items.Asset(c.Param("asset")),
		Country:    c.Param("country"),
		Instrument: strings.Trim(c.Param("key"), "/"),
	}
	return k, k.Asset.Valid() && k.Country != "" && k.Instrument != ""
}

func (h *Handler) domainParam(c *gin.Context) (items.Domain, bool) {
	d, ok := items.ParseDomain(c.Param("domain"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown domain"})
	}
	return d, ok
}

func (h *Handler) ListSources(c *gin.Context) {
	d, ok := h.domainParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	// Resolve seeds the table on first use so the listing matches what runs.
	h.Resolver.Resolve(ctx, d)
	rows, err := h.Store.ListSourceSettings(ctx, string(d))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	reg := h.Resolver.Registry()
	listed := map[string]bool{}
	out := make([]sourceDTO, 0, len(rows))
	for _, r := range rows {
		listed[r.SourceName] = true
		dto := sourceDTO{Name: r.SourceName, Enabled: r.Enabled, Priority: r.Priority}
		if a, ok := reg.Lookup(d, r.SourceName); ok {
			dto.Known = true
			dto.LastError = a.LastError()
		}
		out = append(out, dto)
	}
	for _, a := range reg.Defaults(d) {
		if !listed[a.Name()] {
			out = append(out, sourceDTO{Name: a.Name(), Enabled: true, Known: true, LastError: a.LastError()})
		}
	}
	c.JSON(http.StatusOK, gin.H{"domain": d, "sources": out})
}

type replaceSourcesRequest struct {
	Sources []struct {
		Name    string `json:"name" binding:"required"`
		Enabled bool   `json:"enabled"`
	} `json:"sources" binding:"required"`
}

// ReplaceSources takes the full ordering; list position becomes priority.
func (h *Handler) ReplaceSources(c *gin.Context) {
	d, ok := h.domainParam(c)
	if !ok {
		return
	}
	var req replaceSourcesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reg := h.Resolver.Registry()
	settings := make([]db.SourceSetting, 0, len(req.Sources))
	var seen []string
	for i, s := range req.Sources {
		if _, ok := reg.Lookup(d, s.Name); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source " + s.Name})
			return
		}
		if slices.Contains(seen, s.Name) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duplicate source " + s.Name})
			return
		}
		seen = append(seen, s.Name)
		settings = append(settings, db.SourceSetting{Domain: string(d), SourceName: s.Name, Enabled: s.Enabled, Priority: i + 1})
	}
	if err := h.Store.ReplaceSourceSettings(c.Request.Context(), string(d), settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Info(c.Request.Context(), "source order replaced", "domain", d, "order", seen)
	h.ListSources(c)
}

func (h *Handler) SetSourceEnabled(c *gin.Context) {
	d, ok := h.domainParam(c)
	if !ok {
		return
	}
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	h.Resolver.Resolve(ctx, d)
	err := h.Store.SetSourceEnabled(ctx, string(d), c.Param("name"), *req.Enabled)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"domain": d, "name": c.Param("name"), "enabled": *req.Enabled})
}

func (h *Handler) ListOverrides(c *gin.Context) {
	list, err := h.Store.ListOverrides(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, o := range list {
		out = append(out, gin.H{
			"asset":   o.Key.Asset,
			"country": o.Key.Country,
			"key":     o.Key.Instrument,
			"price":   o.Price,
			"set_at":  o.SetAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"overrides": out})
}

type overrideRequest struct {
	Asset   string  `json:"asset" binding:"required"`
	Country string  `json:"country"`
	Key     string  `json:"key" binding:"required"`
	Price   float64 `json:"price" binding:"required"`
}

func (h *Handler) SetOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Country == "" {
		req.Country = items.HomeCountry
	}
	ctx := c.Request.Context()
	k := items.Key{Asset: items.Asset(req.Asset), Country: req.Country, Instrument: req.Key}
	row, err := h.Writer.SetManual(ctx, k, req.Price)
	if errors.Is(err, reconcile.ErrInvalidOverride) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if h.Notifier != nil {
		h.Notifier.NotifyAdmins(ctx, render.OverrideSet(row))
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "price": row.Sell, "key": k.String()})
}

func (h *Handler) ClearOverride(c *gin.Context) {
	k, ok := keyFromPath(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset, country and key are required"})
		return
	}
	ctx := c.Request.Context()
	removed, err := h.Writer.ClearManual(ctx, k)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "no override for " + k.String()})
		return
	}
	if h.Notifier != nil {
		h.Notifier.NotifyAdmins(ctx, render.OverrideCleared(k, h.now()))
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) Backup(c *gin.Context) {
	path, err := h.Store.BackupToDir(c.Request.Context(), h.BackupDir, h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Info(c.Request.Context(), "backup written", "path", path)
	c.JSON(http.StatusOK, gin.H{"status": "success", "path": path})
}

// BackfillHistory reads one archive window (?days=) or all of them.
func (h *Handler) BackfillHistory(c *gin.Context) {
	windows := sources.HistoryWindows
	if s := c.Query("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || !slices.Contains(sources.HistoryWindows, n) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be one of 7, 30, 90, 180, 365"})
			return
		}
		windows = []int{n}
	}

	ctx := c.Request.Context()
	var inserted int
	var failed []string
	for _, days := range windows {
		points, err := h.Backfill.Fetch(ctx, days)
		if err != nil {
			logger.Warn(ctx, "history window failed", "days", days, "error", err)
			failed = append(failed, strconv.Itoa(days))
			continue
		}
		n, err := h.Writer.Backfill(ctx, points)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "inserted": inserted})
			return
		}
		inserted += n
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "inserted": inserted, "failed_windows": failed})
}

func (h *Handler) RunDomain(c *gin.Context) {
	d, ok := h.domainParam(c)
	if !ok {
		return
	}
	rep, err := h.Cycles.RunNow(c.Request.Context(), d)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "report": rep})
		return
	}
	c.JSON(http.StatusOK, rep)
}
