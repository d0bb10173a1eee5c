package sources

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/utils"
)

// HistoryWindows are the chart ranges offered by the archive page, in days.
var HistoryWindows = []int{7, 30, 90, 180, 365}

const (
	historySource        = "GoldPriceLive"
	historyDerivedSource = "GoldPriceLiveDerived"
)

var (
	chartLabelsRe = regexp.MustCompile(`(?s)labels:\s*(\[.*?\])`)
	chartDataRe   = regexp.MustCompile(`(?s)data:\s*(\[.*?\])`)
	quotedRe      = regexp.MustCompile(`"([^"]*)"|'([^']*)'`)
	monthDayRe    = regexp.MustCompile(`(\d{1,2})-(\d{1,2})`)
	chartValueRe  = regexp.MustCompile(`"[^"]*"|'[^']*'|[^,\[\]\s]+`)
)

// HistoryPoint is one archived daily price.
type HistoryPoint struct {
	Key    items.Key
	Price  float64
	At     time.Time
	Source string
}

// HistoryBackfill reads the 21k daily chart embedded in the gold-price-live
// home page and derives 24k and 18k from it.
type HistoryBackfill struct {
	client *Client
	url    string
	now    func() time.Time
}

func NewHistoryBackfill(c *Client) *HistoryBackfill {
	return &HistoryBackfill{client: c, url: goldPriceLiveURL, now: time.Now}
}

func (h *HistoryBackfill) Fetch(ctx context.Context, days int) ([]HistoryPoint, error) {
	url := fmt.Sprintf("%s?days=%d", h.url, days)
	doc, err := h.client.Document(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseHistoryChart(doc, h.now())
}

func parseHistoryChart(doc *goquery.Document, now time.Time) ([]HistoryPoint, error) {
	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := s.Text(); strings.Contains(t, "goldchart-id") {
			script = t
			return false
		}
		return true
	})
	if script == "" {
		return nil, fmt.Errorf("chart script not found")
	}
	lm := chartLabelsRe.FindStringSubmatch(script)
	dm := chartDataRe.FindStringSubmatch(script)
	if lm == nil || dm == nil {
		return nil, fmt.Errorf("chart labels/data not found")
	}

	var labels []string
	for _, m := range quotedRe.FindAllStringSubmatch(lm[1], -1) {
		labels = append(labels, m[1]+m[2])
	}
	// Values may be quoted and carry thousands separators, so split on the
	// array structure before parsing.
	var prices []float64
	for _, v := range chartValueRe.FindAllString(dm[1], -1) {
		prices = append(prices, utils.ParsePrice(strings.Trim(v, `"'`)))
	}

	n := min(len(labels), len(prices))
	out := make([]HistoryPoint, 0, n*3)
	for i := 0; i < n; i++ {
		price := prices[i]
		if price <= 0 {
			continue
		}
		at, ok := labelDate(labels[i], now)
		if !ok {
			continue
		}
		out = append(out, HistoryPoint{Key: goldKey("21"), Price: price, At: at, Source: historySource})
		for _, k := range []string{"24", "18"} {
			out = append(out, HistoryPoint{Key: goldKey(k), Price: deriveKarat(price, k), At: at, Source: historyDerivedSource})
		}
	}
	return out, nil
}

// labelDate turns a "<weekday> MM-DD" label into noon Cairo time, in the most
// recent year that does not put the date in the future.
func labelDate(label string, now time.Time) (time.Time, bool) {
	m := monthDayRe.FindStringSubmatch(utils.NormalizeDigits(label))
	if m == nil {
		return time.Time{}, false
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	loc := utils.CairoLoc()
	now = now.In(loc)
	year := now.Year()
	if time.Month(month) > now.Month() || (time.Month(month) == now.Month() && day > now.Day()) {
		year--
	}
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, loc), true
}

func deriveKarat(price21 float64, karat string) float64 {
	k, _ := decimal.NewFromString(karat)
	v, _ := decimal.NewFromFloat(price21).Mul(k).Div(decimal.NewFromInt(21)).Round(2).Float64()
	return v
}
