package sources

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/utils"
)

const (
	goldEraURL             = "https://egypt.gold-era.com/ar/سعر-الذهب/"
	isaghaURL              = "https://market.isagha.com/prices"
	goldBullionURL         = "https://goldbullioneg.com/أسعار-الذهب/"
	egyptGoldPriceTodayURL = "https://egypt.gold-price-today.com/"
	goldPriceLiveURL       = "https://gold-price-live.com/"
	souqPriceTodayURL      = "https://souq-price-today.com/"
)

func goldKey(karat string) items.Key {
	return items.Key{Asset: items.AssetGold, Country: items.HomeCountry, Instrument: karat}
}

func fixedURL(u string) func(string) (string, error) {
	return func(string) (string, error) { return u, nil }
}

func newGoldAdapter(c *Client, name, url string, parse parseFunc) *htmlAdapter {
	return &htmlAdapter{name: name, domain: items.DomainGoldLocal, client: c, urlFor: fixedURL(url), parse: parse}
}

func NewGoldEra(c *Client) Adapter {
	return newGoldAdapter(c, "GoldEra", goldEraURL, parseGoldEra)
}

func NewIsagha(c *Client) Adapter {
	return newGoldAdapter(c, "Isagha", isaghaURL, parseIsagha)
}

func NewGoldBullion(c *Client) Adapter {
	return newGoldAdapter(c, "GoldBullion", goldBullionURL, parseGoldBullion)
}

func NewEgyptGoldPriceToday(c *Client) Adapter {
	return newGoldAdapter(c, "EgyptGoldPriceToday", egyptGoldPriceTodayURL, parseEgyptGoldPriceToday)
}

func NewGoldPriceLive(c *Client) Adapter {
	return newGoldAdapter(c, "GoldPriceLive", goldPriceLiveURL, parseGoldPriceLive)
}

func NewSouqPriceToday(c *Client) Adapter {
	return newGoldAdapter(c, "SouqPriceToday", souqPriceTodayURL, parseSouqPriceToday)
}

func cellText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

func mentionsKarat(text string, karats ...string) bool {
	text = utils.NormalizeDigits(text)
	for _, k := range karats {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Karat | Sell | Buy, across every table on the page.
func parseGoldEra(doc *goquery.Document, _ string, b *batch) error {
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td, th")
		if cols.Length() < 3 {
			return
		}
		label := cellText(cols.Eq(0))
		if !mentionsKarat(label, "24", "22", "21", "18", "14") {
			return
		}
		karat := utils.CleanKarat(label)
		b.quote(goldKey(karat), utils.ParsePrice(cellText(cols.Eq(1))), utils.ParsePrice(cellText(cols.Eq(2))), "EGP")
	})
	return nil
}

// Karat | Sell | Change | Buy, desktop table preferred.
func parseIsagha(doc *goquery.Document, _ string, b *batch) error {
	rows := doc.Find(".desktop-table table tbody tr")
	if rows.Length() == 0 {
		rows = doc.Find("table tbody tr")
	}
	rows.Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 4 {
			return
		}
		label := cellText(cols.Eq(0))
		if !strings.Contains(label, "عيار") && !mentionsKarat(label, "24", "21", "18") {
			return
		}
		karat := utils.CleanKarat(label)
		b.quote(goldKey(karat), utils.ParsePrice(cellText(cols.Eq(1))), utils.ParsePrice(cellText(cols.Eq(3))), "EGP")
	})
	return nil
}

// Rows labelled "عيار" with two unlabelled price columns.
func parseGoldBullion(doc *goquery.Document, _ string, b *batch) error {
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td, th")
		if cols.Length() < 3 {
			return
		}
		label := cellText(cols.Eq(0))
		if !strings.Contains(label, "عيار") {
			return
		}
		b.pair(goldKey(utils.CleanKarat(label)), utils.ParsePrice(cellText(cols.Eq(1))), utils.ParsePrice(cellText(cols.Eq(2))), "EGP")
	})
	return nil
}

// First table on the page, two unlabelled price columns.
func parseEgyptGoldPriceToday(doc *goquery.Document, _ string, b *batch) error {
	doc.Find("table").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td, th")
		if cols.Length() < 3 {
			return
		}
		karat := utils.CleanKarat(cellText(cols.Eq(0)))
		if karat == "" {
			return
		}
		b.pair(goldKey(karat), utils.ParsePrice(cellText(cols.Eq(1))), utils.ParsePrice(cellText(cols.Eq(2))), "EGP")
	})
	return nil
}

// Karat cards linking to kerat-* pages; the generic table is used only when
// no card yields a price.
func parseGoldPriceLive(doc *goquery.Document, _ string, b *batch) error {
	doc.Find("a[href*='kerat-']").Each(func(_ int, card *goquery.Selection) {
		full := cellText(card)
		karat := utils.CleanKarat(full)
		if karat == "" {
			return
		}
		text := full
		if div := card.Find("div.col-12.text-center").First(); div.Length() > 0 {
			text = cellText(div)
		}
		// Card text mixes weights and ounce prices with the gram prices.
		var candidates []float64
		for _, n := range utils.Numbers(text) {
			if items.GoldGramEGP.Contains(n) {
				candidates = append(candidates, n)
			}
		}
		if len(candidates) < 2 {
			return
		}
		lo, hi := candidates[0], candidates[0]
		for _, n := range candidates[1:] {
			if n < lo {
				lo = n
			}
			if n > hi {
				hi = n
			}
		}
		b.pair(goldKey(karat), hi, lo, "EGP")
	})
	if len(b.out) > 0 {
		return nil
	}

	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 3 {
			return
		}
		karat := utils.CleanKarat(cellText(cols.Eq(0)))
		if karat == "" {
			return
		}
		p1 := utils.ParsePrice(cellText(cols.Eq(1)))
		p2 := utils.ParsePrice(cellText(cols.Eq(2)))
		if !items.GoldGramEGP.Contains(p1) || !items.GoldGramEGP.Contains(p2) {
			return
		}
		b.pair(goldKey(karat), p1, p2, "EGP")
	})
	return nil
}

// Second table on the page holds the karat rows; first row is a header.
func parseSouqPriceToday(doc *goquery.Document, _ string, b *batch) error {
	tables := doc.Find("table")
	if tables.Length() < 2 {
		return errNoData
	}
	tables.Eq(1).Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cols := row.Find("td")
		if cols.Length() < 3 {
			return
		}
		label := cellText(cols.Eq(0))
		if !strings.Contains(label, "عيار") && !strings.Contains(label, "ذهب") {
			return
		}
		karat := utils.CleanKarat(label)
		if karat == "" {
			return
		}
		b.pair(goldKey(karat), utils.ParsePrice(cellText(cols.Eq(1))), utils.ParsePrice(cellText(cols.Eq(2))), "EGP")
	})
	return nil
}
