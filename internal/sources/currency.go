package sources

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/utils"
)

// Per-bank rate pages, one URL per tracked bank.
var (
	ta3weemBankURLs = map[string]string{
		"nbe": "https://ta3weem.com/ar/banks/national-bank-of-egypt-nbe",
		"bdc": "https://ta3weem.com/ar/banks/banque-du-caire-bdc",
	}
	egratesBankURLs = map[string]string{
		"nbe": "https://egrates.com/banks/4",
		"bdc": "https://egrates.com/banks/6",
	}
	bankliveBankURLs = map[string]string{
		"nbe": "https://banklive.net/ar/currency-exchange-rates-in-national-bank-of-egypt",
		"bdc": "https://banklive.net/ar/currency-exchange-rates-in-banque-du-caire",
	}
)

var (
	currencyCodeRe  = regexp.MustCompile(`^[A-Z]{3}$`)
	parenCodeRe     = regexp.MustCompile(`\(([A-Za-z]{3})\)`)
	hrefCodeRe      = regexp.MustCompile(`/([A-Z]{3})$`)
	bankliveTableRe = regexp.MustCompile(`banklive-tabl?s?e`)
)

func currencyKey(bank, code string) items.Key {
	return items.Key{Asset: items.AssetCurrency, Country: items.HomeCountry, Instrument: bank + "/" + code}
}

func bankURL(urls map[string]string) func(string) (string, error) {
	return func(target string) (string, error) {
		u, ok := urls[target]
		if !ok {
			return "", fmt.Errorf("no page for bank %q", target)
		}
		return u, nil
	}
}

func newCurrencyAdapter(c *Client, name string, urls map[string]string, parse parseFunc) *htmlAdapter {
	return &htmlAdapter{name: name, domain: items.DomainCurrency, client: c, urlFor: bankURL(urls), parse: parse}
}

func NewTa3weemBank(c *Client) Adapter {
	return newCurrencyAdapter(c, "ta3weem", ta3weemBankURLs, parseTa3weemBank)
}

func NewEgratesBank(c *Client) Adapter {
	return newCurrencyAdapter(c, "egrates", egratesBankURLs, parseEgratesBank)
}

func NewBankLiveBank(c *Client) Adapter {
	return newCurrencyAdapter(c, "banklive", bankliveBankURLs, parseBankLiveBank)
}

// pageCode accepts only the currencies tracked on the per-bank pages.
func pageCode(s string) string {
	code := normCode(s)
	if !slices.Contains(items.BankPageCurrencies, code) {
		return ""
	}
	return code
}

func normCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !currencyCodeRe.MatchString(s) {
		return ""
	}
	return s
}

func firstOf(row *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if s := row.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return row.Find(selectors[len(selectors)-1]).First()
}

// Name (CODE) | Buy | Sell
func parseTa3weemBank(doc *goquery.Document, bank string, b *batch) error {
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		name := firstOf(row, "td:nth-child(1) a span", "td:nth-child(1)")
		buy := firstOf(row, "td:nth-child(2) span", "td:nth-child(2)")
		sell := firstOf(row, "td:nth-child(3) span", "td:nth-child(3)")
		if name.Length() == 0 || buy.Length() == 0 || sell.Length() == 0 {
			return
		}
		text := cellText(name)
		code := text
		if m := parenCodeRe.FindStringSubmatch(text); m != nil {
			code = m[1]
		}
		code = pageCode(code)
		if code == "" {
			return
		}
		b.quote(currencyKey(bank, code), utils.ParsePrice(cellText(sell)), utils.ParsePrice(cellText(buy)), "EGP")
	})
	return nil
}

// # | Flag (alt "Name/CODE") | Buy | Sell
func parseEgratesBank(doc *goquery.Document, bank string, b *batch) error {
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() < 4 {
			return
		}
		var code string
		if alt, ok := cols.Eq(1).Find("img").Attr("alt"); ok && strings.Contains(alt, "/") {
			_, c, _ := strings.Cut(alt, "/")
			code = c
		} else {
			link := cols.Eq(2).Find("a").First()
			if link.Length() == 0 {
				link = cols.Eq(3).Find("a").First()
			}
			if href, ok := link.Attr("href"); ok {
				if m := hrefCodeRe.FindStringSubmatch(href); m != nil {
					code = m[1]
				}
			}
		}
		code = pageCode(code)
		if code == "" {
			return
		}
		b.quote(currencyKey(bank, code), utils.ParsePrice(cellText(cols.Eq(3))), utils.ParsePrice(cellText(cols.Eq(2))), "EGP")
	})
	return nil
}

func bankliveTable(doc *goquery.Document) *goquery.Selection {
	t := doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return bankliveTableRe.MatchString(class)
	}).First()
	if t.Length() == 0 {
		t = doc.Find("table").First()
	}
	return t
}

func bankRate(col *goquery.Selection) string {
	if r := col.Find(".bankRate").First(); r.Length() > 0 {
		return cellText(r)
	}
	return cellText(col)
}

// Currency (.code "USDEGP") | Buy | Sell, header row first.
func parseBankLiveBank(doc *goquery.Document, bank string, b *batch) error {
	table := bankliveTable(doc)
	if table.Length() == 0 {
		return errNoData
	}
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cols := row.Find("td")
		if cols.Length() < 3 {
			return
		}
		code := cellText(row.Find(".code").First())
		code = pageCode(strings.TrimSuffix(code, "EGP"))
		if code == "" {
			return
		}
		b.quote(currencyKey(bank, code), utils.ParsePrice(bankRate(cols.Eq(2))), utils.ParsePrice(bankRate(cols.Eq(1))), "EGP")
	})
	return nil
}
