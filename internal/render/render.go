// Package render builds the operator messages sent to Telegram admins.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/minasamir1401/werete/internal/db"
	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/sources"
	"github.com/minasamir1401/werete/internal/utils"
)

var domainNames = map[items.Domain]string{
	items.DomainGoldLocal:   "الذهب (مصر)",
	items.DomainGoldCountry: "الذهب (الدول العربية)",
	items.DomainCurrency:    "العملات (البنوك)",
	items.DomainBankFX:      "أسعار البنوك المجمعة",
	items.DomainSilver:      "الفضة",
}

func DomainName(d items.Domain) string {
	if n, ok := domainNames[d]; ok {
		return n
	}
	return string(d)
}

// CycleFailure describes a cycle that wrote nothing.
type CycleFailure struct {
	Domain  items.Domain
	CycleID string
	At      time.Time
	// Err is set when the cycle failed outright (commit error, panic).
	Err     string
	Results []sources.Result
}

// CycleAlert lists every exhausted target with the sources tried and their
// last errors. Targets that succeeded are summarised in one line.
func CycleAlert(f CycleFailure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ فشل تحديث %s\n", DomainName(f.Domain))
	fmt.Fprintf(&b, "🕒 %s\n", utils.DateTime(f.At))
	if f.CycleID != "" {
		fmt.Fprintf(&b, "🔖 %s\n", f.CycleID)
	}
	if f.Err != "" {
		fmt.Fprintf(&b, "❌ %s\n", truncate(f.Err, 300))
	}

	var ok int
	for _, r := range f.Results {
		if !r.Exhausted() {
			ok++
			continue
		}
		b.WriteString("\n")
		if r.Target != "" {
			fmt.Fprintf(&b, "🎯 %s\n", r.Target)
		}
		if len(r.Attempts) == 0 {
			b.WriteString("  لا توجد مصادر مفعلة\n")
		}
		for _, a := range r.Attempts {
			msg := a.Err
			if msg == "" {
				msg = "لا توجد بيانات"
			}
			fmt.Fprintf(&b, "  • %s: %s\n", a.Source, truncate(msg, 160))
		}
	}
	if ok > 0 {
		fmt.Fprintf(&b, "\n✅ %d/%d أهداف تم تحديثها\n", ok, len(f.Results))
	}
	return strings.TrimSpace(b.String())
}

// PriceLine renders "<key>: <price>" for one snapshot row.
func PriceLine(r db.PriceRow, digits string) string {
	price := utils.FormatNumber(r.Sell, r.Currency, digits)
	if r.Buy > 0 && r.Buy != r.Sell {
		price += " / " + utils.FormatNumber(r.Buy, r.Currency, digits)
	}
	return fmt.Sprintf("%s: %s", instrumentLabel(r.Key), price)
}

func OverrideSet(r db.PriceRow) string {
	return fmt.Sprintf("✍️ تم تثبيت سعر يدوي\n%s\n🕒 %s", PriceLine(r, "ar"), utils.DateTime(r.LastUpdate))
}

func OverrideCleared(k items.Key, at time.Time) string {
	return fmt.Sprintf("↩️ تم إلغاء السعر اليدوي\n%s\n🕒 %s", instrumentLabel(k), utils.DateTime(at))
}

func instrumentLabel(k items.Key) string {
	switch k.Asset {
	case items.AssetGold:
		label := "عيار " + k.Instrument
		if k.Country != items.HomeCountry {
			if c, ok := items.CountryBySlug(k.Country); ok {
				label += " - " + c.NameAr
			}
		}
		return label
	case items.AssetSilver:
		if k.Instrument == items.SilverOunceUSDKey {
			return "أوقية الفضة"
		}
		return "فضة " + k.Instrument
	default:
		return k.Instrument
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
