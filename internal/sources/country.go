package sources

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/utils"
)

// goldPriceTodayURL is formatted with the country slug as sub-domain.
const goldPriceTodayURL = "https://%s.gold-price-today.com/"

func NewGoldPriceToday(c *Client) Adapter {
	return &htmlAdapter{
		name:   "GoldPriceToday",
		domain: items.DomainGoldCountry,
		client: c,
		urlFor: countryURL(goldPriceTodayURL),
		parse:  parseGoldPriceToday,
	}
}

func countryURL(format string) func(string) (string, error) {
	return func(target string) (string, error) {
		if _, ok := items.CountryBySlug(target); !ok {
			return "", fmt.Errorf("unknown country %q", target)
		}
		return fmt.Sprintf(format, target), nil
	}
}

// Karat | Price in the local currency. The site lists one price per karat,
// used as both sell and buy.
func parseGoldPriceToday(doc *goquery.Document, target string, b *batch) error {
	country, ok := items.CountryBySlug(target)
	if !ok {
		return fmt.Errorf("unknown country %q", target)
	}
	doc.Find("table").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td, th")
		if cols.Length() < 2 {
			return
		}
		karat := utils.CleanKarat(cellText(cols.Eq(0)))
		if karat == "" {
			return
		}
		price := utils.FirstNumber(cellText(cols.Eq(1)))
		k := items.Key{Asset: items.AssetGold, Country: country.Slug, Instrument: karat}
		b.quote(k, price, price, country.Currency)
	})
	return nil
}
