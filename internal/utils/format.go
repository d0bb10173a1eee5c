package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

var arabicDigits = map[rune]rune{
	'0': '٠',
	'1': '١',
	'2': '٢',
	'3': '٣',
	'4': '٤',
	'5': '٥',
	'6': '٦',
	'7': '٧',
	'8': '٨',
	'9': '٩',
}

func ToArabicDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if ar, ok := arabicDigits[r]; ok {
			b.WriteRune(ar)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatNumber renders a price with thousands separators. Exchange rates and
// USD values keep two decimals; local gram prices are shown whole.
func FormatNumber(value float64, currency string, digits string) string {
	var out string
	switch currency {
	case "USD":
		out = "$ " + formatDecimalWithCommas(decimal.NewFromFloat(value), 2)
	case "", "EGP":
		if value < 1000 {
			out = formatDecimalWithCommas(decimal.NewFromFloat(value), 2)
		} else {
			out = formatDecimalWithCommas(decimal.NewFromFloat(value), 0)
		}
	default:
		out = formatDecimalWithCommas(decimal.NewFromFloat(value), 2) + " " + currency
	}
	if digits == "ar" {
		out = ToArabicDigits(out)
	}
	return out
}

func formatDecimalWithCommas(d decimal.Decimal, places int32) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	s := d.StringFixed(places)
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	b.Grow(len(s) + len(s)/3 + 1)
	b.WriteString(sign)
	if len(intPart) <= 3 {
		b.WriteString(intPart)
	} else {
		rem := len(intPart) % 3
		if rem == 0 {
			rem = 3
		}
		b.WriteString(intPart[:rem])
		for i := rem; i < len(intPart); i += 3 {
			b.WriteByte(',')
			b.WriteString(intPart[i : i+3])
		}
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
