package sources

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/utils"
)

const (
	safeHavenHubURL     = "https://safehavenhub.com/pages/اسعار-الذهب-والفضة"
	goldPriceLiveSilver = "https://gold-price-live.com/view/silver-price"
)

var errNoFineSilver = errors.New("no 999 silver price found")

func silverKey(instrument string) items.Key {
	return items.Key{Asset: items.AssetSilver, Country: items.HomeCountry, Instrument: instrument}
}

func NewSafeHavenHub(c *Client) Adapter {
	return &htmlAdapter{name: "safehavenhub", domain: items.DomainSilver, client: c, urlFor: fixedURL(safeHavenHubURL), parse: parseSafeHavenHub}
}

func NewGoldPriceLiveSilver(c *Client) Adapter {
	return &htmlAdapter{name: "goldpricelive_silver", domain: items.DomainSilver, client: c, urlFor: fixedURL(goldPriceLiveSilver), parse: parseGoldPriceLiveSilver}
}

// First table: Name | Sell | Buy | Change | Change %. Gram rows are EGP,
// the ounce row is USD.
func parseSafeHavenHub(doc *goquery.Document, _ string, b *batch) error {
	doc.Find("table").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 3 {
			return
		}
		name := utils.NormalizeDigits(cellText(cells.Eq(0)))
		sell := utils.ParsePrice(cellText(cells.Eq(1)))
		buy := utils.ParsePrice(cellText(cells.Eq(2)))

		if strings.Contains(name, "الأوقية") || strings.Contains(strings.ToLower(name), "ounce") {
			b.quote(silverKey(items.SilverOunceUSDKey), sell, buy, "USD")
			return
		}
		for _, purity := range items.SilverPurities {
			if strings.Contains(name, purity) {
				b.quote(silverKey(purity), sell, buy, "EGP")
				return
			}
		}
	})
	if !b.has(silverKey("999")) {
		return errNoFineSilver
	}
	return nil
}

// Headline gram price in the first .mb-5 block, else the "1 جرام" row of the
// local-currency table.
func parseGoldPriceLiveSilver(doc *goquery.Document, _ string, b *batch) error {
	if el := doc.Find(".mb-5").First(); el.Length() > 0 {
		if p := utils.FirstNumber(cellText(el)); p > 0 && b.quote(silverKey("999"), p, p, "EGP") {
			return nil
		}
	}
	doc.Find("table.local-cur tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return true
		}
		name := utils.NormalizeDigits(cellText(cells.Eq(0)))
		if !strings.Contains(name, "1") || !strings.Contains(name, "جرام") {
			return true
		}
		p := utils.FirstNumber(cellText(cells.Eq(1)))
		return !b.quote(silverKey("999"), p, p, "EGP")
	})
	return nil
}
