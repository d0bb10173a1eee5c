package utils

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/minasamir1401/werete/internal/items"
)

var easternDigits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"٫", ".", "٬", ",",
)

// NormalizeDigits maps Arabic-Indic digits and separators to ASCII.
func NormalizeDigits(s string) string {
	return easternDigits.Replace(s)
}

var (
	numberRe    = regexp.MustCompile(`\d+(?:\.\d+)?`)
	digitsRunRe = regexp.MustCompile(`\d+`)
)

// ParsePrice strips separators and currency markers and parses what remains.
// It returns 0 when nothing numeric is left.
func ParsePrice(s string) float64 {
	s = NormalizeDigits(s)
	s = strings.NewReplacer(",", "", "EGP", "", "ج.م", "", "$", "", "USD", "").Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.Trim(b.String(), ".")
	if cleaned == "" {
		return 0
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return FirstNumber(cleaned)
	}
	f, _ := d.Float64()
	return f
}

// FirstNumber returns the first decimal number found in s, or 0.
func FirstNumber(s string) float64 {
	s = strings.ReplaceAll(NormalizeDigits(s), ",", "")
	m := numberRe.FindString(s)
	if m == "" {
		return 0
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// Numbers returns every decimal number found in s.
func Numbers(s string) []float64 {
	s = strings.ReplaceAll(NormalizeDigits(s), ",", "")
	var out []float64
	for _, m := range numberRe.FindAllString(s, -1) {
		d, err := decimal.NewFromString(m)
		if err != nil {
			continue
		}
		f, _ := d.Float64()
		out = append(out, f)
	}
	return out
}

// CleanKarat extracts a karat label from a table cell. Canonical karats win
// over any other number in the text; long numbers are rejected, except the
// "240"/"210" style that some pages print for "24.0"/"21.0".
func CleanKarat(s string) string {
	s = strings.TrimSpace(NormalizeDigits(s))
	for _, k := range items.Karats {
		if s == k || strings.Contains(s, "عيار "+k) || containsWord(s, k) {
			return k
		}
	}
	m := digitsRunRe.FindString(s)
	if m == "" {
		return ""
	}
	if len(m) == 3 && strings.HasSuffix(m, "0") {
		for _, k := range items.Karats {
			if m[:2] == k {
				return k
			}
		}
		return m
	}
	if len(m) > 2 {
		return ""
	}
	return m
}

// containsWord reports whether word occurs in s delimited by non-word runes.
func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if !isWordByte(s, start-1) && !isWordByte(s, end) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
