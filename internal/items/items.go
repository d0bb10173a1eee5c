package items

import (
	"fmt"
	"time"
)

// Asset is the row-level asset type stored in the snapshot/history tables.
type Asset string

const (
	AssetGold     Asset = "gold"
	AssetCurrency Asset = "currency"
	AssetSilver   Asset = "silver"
	AssetBankFX   Asset = "bank_fx"
)

func (a Asset) Valid() bool {
	switch a {
	case AssetGold, AssetCurrency, AssetSilver, AssetBankFX:
		return true
	}
	return false
}

// Domain is a scraping pipeline: one scheduler loop, one source ordering.
type Domain string

const (
	DomainGoldLocal   Domain = "gold_local"
	DomainGoldCountry Domain = "gold_country"
	DomainCurrency    Domain = "currency"
	DomainBankFX      Domain = "bank_fx"
	DomainSilver      Domain = "silver"
)

// Status tags where a snapshot row came from.
type Status string

const (
	StatusPrimary  Status = "Primary"
	StatusFallback Status = "Fallback"
	StatusManual   Status = "Manual"
)

const HomeCountry = "egypt"

// Key identifies one Latest Snapshot row.
type Key struct {
	Asset      Asset
	Country    string
	Instrument string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Asset, k.Country, k.Instrument)
}

type DomainSpec struct {
	Domain          Domain
	Asset           Asset
	IntervalSetting string
	DefaultInterval time.Duration
	// Targets are the per-cycle fetch units (countries, banks, currencies).
	// A single empty target means the domain has one page per source.
	Targets []string
	// Pause between two targets of the same cycle.
	TargetDelay time.Duration
}

var Domains = []DomainSpec{
	{Domain: DomainGoldLocal, Asset: AssetGold, IntervalSetting: "scrape_interval", DefaultInterval: 60 * time.Second, Targets: []string{""}},
	{Domain: DomainGoldCountry, Asset: AssetGold, IntervalSetting: "country_scrape_interval", DefaultInterval: time.Hour, Targets: ForeignCountrySlugs(), TargetDelay: 500 * time.Millisecond},
	{Domain: DomainCurrency, Asset: AssetCurrency, IntervalSetting: "currency_scrape_interval", DefaultInterval: 20 * time.Minute, Targets: []string{"nbe", "bdc"}},
	{Domain: DomainBankFX, Asset: AssetBankFX, IntervalSetting: "bank_scrape_interval", DefaultInterval: time.Hour, Targets: BankCurrencies},
	{Domain: DomainSilver, Asset: AssetSilver, IntervalSetting: "silver_scrape_interval", DefaultInterval: 60 * time.Second, Targets: []string{""}},
}

var byDomain map[Domain]DomainSpec

func init() {
	byDomain = make(map[Domain]DomainSpec, len(Domains))
	for _, d := range Domains {
		byDomain[d.Domain] = d
	}
	byCountry = make(map[string]Country, len(Countries))
	for _, c := range Countries {
		byCountry[c.Slug] = c
	}
}

func SpecFor(d Domain) (DomainSpec, bool) {
	s, ok := byDomain[d]
	return s, ok
}

func ParseDomain(s string) (Domain, bool) {
	_, ok := byDomain[Domain(s)]
	return Domain(s), ok
}

// Canonical gold karats, in the order they are matched in page text.
var Karats = []string{"24", "22", "21", "18", "14", "12"}

var SilverPurities = []string{"999", "925", "900", "800"}

const SilverOunceUSDKey = "ounce_usd"

var BankCurrencies = []string{"USD", "EUR", "SAR", "GBP", "KWD", "AED", "QAR", "JOD", "BHD", "OMR", "CAD", "AUD", "CHF", "JPY"}

// Currencies tracked on the per-bank pages.
var BankPageCurrencies = []string{"USD", "EUR", "GBP", "SAR", "AED", "KWD", "QAR", "JOD", "BHD", "OMR", "CHF", "CAD", "AUD", "CNY", "JPY"}

type Country struct {
	Slug     string
	Currency string
	NameAr   string
	Band     Band
}

var Countries = []Country{
	{Slug: "saudi-arabia", Currency: "SAR", NameAr: "السعودية", Band: Band{Min: 50, Max: 5000}},
	{Slug: "kuwait", Currency: "KWD", NameAr: "الكويت", Band: Band{Min: 5, Max: 500}},
	{Slug: "united-arab-emirates", Currency: "AED", NameAr: "الإمارات", Band: Band{Min: 50, Max: 5000}},
	{Slug: "qatar", Currency: "QAR", NameAr: "قطر", Band: Band{Min: 50, Max: 5000}},
	{Slug: "yemen", Currency: "YER", NameAr: "اليمن", Band: Band{Min: 1000, Max: 5000000}},
	{Slug: "jordan", Currency: "JOD", NameAr: "الأردن", Band: Band{Min: 5, Max: 500}},
	{Slug: "iraq", Currency: "IQD", NameAr: "العراق", Band: Band{Min: 10000, Max: 1000000}},
	{Slug: "lebanon", Currency: "LBP", NameAr: "لبنان", Band: Band{Min: 100000, Max: 100000000}},
	{Slug: "oman", Currency: "OMR", NameAr: "عمان", Band: Band{Min: 5, Max: 500}},
	{Slug: "bahrain", Currency: "BHD", NameAr: "البحرين", Band: Band{Min: 5, Max: 500}},
	{Slug: "algeria", Currency: "DZD", NameAr: "الجزائر", Band: Band{Min: 1000, Max: 200000}},
	{Slug: "morocco", Currency: "MAD", NameAr: "المغرب", Band: Band{Min: 100, Max: 20000}},
	{Slug: "palestine", Currency: "ILS", NameAr: "فلسطين", Band: Band{Min: 50, Max: 5000}},
	{Slug: HomeCountry, Currency: "EGP", NameAr: "مصر", Band: GoldGramEGP},
}

var byCountry map[string]Country

func CountryBySlug(slug string) (Country, bool) {
	c, ok := byCountry[slug]
	return c, ok
}

// ForeignCountrySlugs lists the gold_country targets. The home country is
// owned by the gold_local domain.
func ForeignCountrySlugs() []string {
	out := make([]string, 0, len(Countries))
	for _, c := range Countries {
		if c.Slug == HomeCountry {
			continue
		}
		out = append(out, c.Slug)
	}
	return out
}

// Bank is one bank row on the aggregate per-currency pages.
type Bank struct {
	ID     string
	NameAr string
	NameEn string
}

var Banks = []Bank{
	{ID: "national-bank-of-egypt-nbe", NameAr: "البنك الأهلي المصري", NameEn: "National Bank of Egypt"},
	{ID: "banque-misr-bm", NameAr: "بنك مصر", NameEn: "Banque Misr"},
	{ID: "commercial-international-bank-cib", NameAr: "البنك التجاري الدولي", NameEn: "Commercial International Bank"},
	{ID: "banque-du-caire-bdc", NameAr: "بنك القاهرة", NameEn: "Banque du Caire"},
	{ID: "central-bank-of-egypt-cbe", NameAr: "البنك المركزي المصري", NameEn: "Central Bank of Egypt"},
	{ID: "qnb-alahli-qnb", NameAr: "بنك QNB الأهلي", NameEn: "QNB Alahli"},
	{ID: "alexbank-alex", NameAr: "بنك الإسكندرية", NameEn: "AlexBank"},
	{ID: "faisal-islamic-bank-fib", NameAr: "بنك فيصل الإسلامي", NameEn: "Faisal Islamic Bank"},
	{ID: "abu-dhabi-islamic-bank-adib", NameAr: "مصرف أبوظبي الإسلامي", NameEn: "Abu Dhabi Islamic Bank"},
	{ID: "arab-african-international-bank-aaib", NameAr: "البنك العربي الأفريقي الدولي", NameEn: "Arab African International Bank"},
	{ID: "housing-and-development-bank-hdb", NameAr: "بنك التعمير والإسكان", NameEn: "Housing and Development Bank"},
	{ID: "emirates-nbd-enbd", NameAr: "بنك الإمارات دبي الوطني", NameEn: "Emirates NBD"},
	{ID: "suez-canal-bank-scb", NameAr: "بنك قناة السويس", NameEn: "Suez Canal Bank"},
	{ID: "egyptian-gulf-bank-egb", NameAr: "البنك المصري الخليجي", NameEn: "Egyptian Gulf Bank"},
	{ID: "attijariwafa-bank-awb", NameAr: "بنك التجاري وفا", NameEn: "Attijariwafa Bank"},
	{ID: "al-baraka-bank-abe", NameAr: "بنك البركة", NameEn: "Al Baraka Bank"},
	{ID: "kuwait-finance-house-kfh", NameAr: "بيت التمويل الكويتي", NameEn: "Kuwait Finance House"},
	{ID: "arab-bank-ab", NameAr: "البنك العربي", NameEn: "Arab Bank"},
	{ID: "export-development-bank-ebe", NameAr: "البنك المصري لتنمية الصادرات", NameEn: "Export Development Bank"},
	{ID: "midbank-mid", NameAr: "ميد بنك", NameEn: "MIDBANK"},
}

// MatchBank resolves a bank name as printed on an aggregate page.
func MatchBank(name string) (Bank, bool) {
	for _, b := range Banks {
		if containsFold(name, b.NameAr) || containsFold(name, b.NameEn) {
			return b, true
		}
	}
	return Bank{}, false
}
