package items

import "strings"

// Band is an exclusive sanity range for a sell price.
type Band struct {
	Min float64
	Max float64
}

func (b Band) Contains(v float64) bool {
	return v > b.Min && v < b.Max
}

var (
	GoldGramEGP    = Band{Min: 500, Max: 20000}
	ExchangeRate   = Band{Min: 0.01, Max: 1000}
	SilverGramEGP  = Band{Min: 5, Max: 5000}
	SilverOunceUSD = Band{Min: 5, Max: 500}
)

// BandFor returns the sanity band for an observation key.
func BandFor(k Key) Band {
	switch k.Asset {
	case AssetGold:
		if c, ok := CountryBySlug(k.Country); ok {
			return c.Band
		}
		return GoldGramEGP
	case AssetSilver:
		if k.Instrument == SilverOunceUSDKey {
			return SilverOunceUSD
		}
		return SilverGramEGP
	case AssetCurrency, AssetBankFX:
		return ExchangeRate
	}
	return Band{}
}

func containsFold(s, sub string) bool {
	if sub == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
