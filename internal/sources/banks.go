package sources

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/utils"
)

// Aggregate pages listing every bank's rate for one currency.
const (
	ta3weemAllBanksURL  = "https://ta3weem.com/ar/currency-exchange-rates/%s-EGP"
	egratesAllBanksURL  = "https://egrates.com/currency/%s"
	bankliveAllBanksURL = "https://banklive.net/ar/exchange-rate-%s-to-EGP-today"
)

var (
	ta3weemBankIDRe  = regexp.MustCompile(`/banks/([^/?#]+)`)
	egratesBankIDRe  = regexp.MustCompile(`banks/(\d+)`)
	bankliveBankIDRe = regexp.MustCompile(`/currency-exchange-rates-in-([^/?#]+)`)
	leadingNumberRe  = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)
)

func bankFXKey(code, bankID string) items.Key {
	return items.Key{Asset: items.AssetBankFX, Country: items.HomeCountry, Instrument: code + "/" + bankID}
}

func currencyURL(format string) func(string) (string, error) {
	return func(target string) (string, error) {
		code := normCode(target)
		if code == "" {
			return "", fmt.Errorf("bad currency code %q", target)
		}
		return fmt.Sprintf(format, code), nil
	}
}

func newBankFXAdapter(c *Client, name, format string, parse parseFunc) *htmlAdapter {
	return &htmlAdapter{name: name, domain: items.DomainBankFX, client: c, urlFor: currencyURL(format), parse: parse}
}

func NewTa3weemAllBanks(c *Client) Adapter {
	return newBankFXAdapter(c, "ta3weem_allbanks", ta3weemAllBanksURL, parseTa3weemAllBanks)
}

func NewEgratesAllBanks(c *Client) Adapter {
	return newBankFXAdapter(c, "egrates_allbanks", egratesAllBanksURL, parseEgratesAllBanks)
}

func NewBankLiveAllBanks(c *Client) Adapter {
	return newBankFXAdapter(c, "banklive_allbanks", bankliveAllBanksURL, parseBankLiveAllBanks)
}

// resolveBankID maps a printed bank name to the catalog id so that every
// aggregate site writes the same instrument key for the same bank. Unknown
// banks keep a site-scoped id.
func resolveBankID(name, siteID, sitePrefix string) string {
	if b, ok := items.MatchBank(name); ok {
		return b.ID
	}
	if siteID == "" {
		return ""
	}
	if sitePrefix == "" {
		return siteID
	}
	return sitePrefix + "_" + siteID
}

func leadingNumber(s string) float64 {
	s = strings.ReplaceAll(utils.NormalizeDigits(s), ",", "")
	if m := leadingNumberRe.FindStringSubmatch(s); m != nil {
		return utils.FirstNumber(m[1])
	}
	return utils.FirstNumber(s)
}

// Bank (link to /banks/<id>) | Buy | Sell; cells may carry a change figure
// after the rate.
func parseTa3weemAllBanks(doc *goquery.Document, target string, b *batch) error {
	code := normCode(target)
	tbody := doc.Find("tbody").First()
	if tbody.Length() == 0 {
		return errNoData
	}
	tbody.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 3 {
			return
		}
		link := cols.Eq(0).Find("a").First()
		if link.Length() == 0 {
			return
		}
		name := cellText(link)
		if span := link.Find("span").First(); span.Length() > 0 {
			name = cellText(span)
		}
		var siteID string
		if href, ok := link.Attr("href"); ok {
			if m := ta3weemBankIDRe.FindStringSubmatch(href); m != nil {
				siteID = m[1]
			}
		}
		id := resolveBankID(name, siteID, "")
		if id == "" {
			return
		}
		b.quote(bankFXKey(code, id), leadingNumber(cellText(cols.Eq(2))), leadingNumber(cellText(cols.Eq(1))), "EGP")
	})
	return nil
}

// Bank (link to banks/<n>) | Buy | Sell
func parseEgratesAllBanks(doc *goquery.Document, target string, b *batch) error {
	code := normCode(target)
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 3 {
			return
		}
		link := cols.Eq(0).Find("a").First()
		if link.Length() == 0 {
			return
		}
		name := cellText(link)
		var siteID string
		if href, ok := link.Attr("href"); ok {
			if m := egratesBankIDRe.FindStringSubmatch(href); m != nil {
				siteID = m[1]
			}
		}
		id := resolveBankID(name, siteID, "egrates")
		if id == "" {
			return
		}
		b.quote(bankFXKey(code, id), utils.ParsePrice(cellText(cols.Eq(2))), utils.ParsePrice(cellText(cols.Eq(1))), "EGP")
	})
	return nil
}

// Bank (.bankName, link to currency-exchange-rates-in-<slug>) | Buy | Sell
func parseBankLiveAllBanks(doc *goquery.Document, target string, b *batch) error {
	code := normCode(target)
	table := bankliveTable(doc)
	if table.Length() == 0 {
		return errNoData
	}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 3 {
			return
		}
		bankCol := cols.Eq(0)
		var name string
		if el := bankCol.Find(".bankName").First(); el.Length() > 0 {
			name = cellText(el)
		} else {
			// Cell text may start with an "updated ... ago" line.
			lines := strings.Split(cellText(bankCol), "\n")
			name = strings.TrimSpace(lines[len(lines)-1])
		}
		var siteID string
		if href, ok := bankCol.Find("a").First().Attr("href"); ok {
			if m := bankliveBankIDRe.FindStringSubmatch(href); m != nil {
				siteID = m[1]
			}
		}
		id := resolveBankID(name, siteID, "banklive")
		if id == "" {
			return
		}
		b.quote(bankFXKey(code, id), utils.ParsePrice(bankRate(cols.Eq(2))), utils.ParsePrice(bankRate(cols.Eq(1))), "EGP")
	})
	return nil
}
