package utils

import "testing"

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"4,500", 4500},
		{"4,512.50 EGP", 4512.5},
		{"٤٥٠٠ ج.م", 4500},
		{"$ 32.10", 32.1},
		{"", 0},
		{"غير متاح", 0},
		{"48.75", 48.75},
	}
	for _, c := range cases {
		if got := ParsePrice(c.in); got != c.want {
			t.Errorf("ParsePrice(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCleanKarat(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"عيار 21", "21"},
		{"عيار ٢١", "21"},
		{"21", "21"},
		{"ذهب عيار 18 جرام", "18"},
		{"240", "24"},
		{"210", "21"},
		{"1250", ""},
		{"9", "9"},
		{"جنيه ذهب", ""},
		{"Gold 24K", "24"},
	}
	for _, c := range cases {
		if got := CleanKarat(c.in); got != c.want {
			t.Errorf("CleanKarat(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNumbers(t *testing.T) {
	got := Numbers("بيع 4,550 شراء 4,500 وزن 8")
	want := []float64{4550, 4500, 8}
	if len(got) != len(want) {
		t.Fatalf("Numbers len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Numbers[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFormatNumber(t *testing.T) {
	cases := []struct {
		v        float64
		currency string
		digits   string
		want     string
	}{
		{4500, "EGP", "", "4,500"},
		{1234567.4, "EGP", "", "1,234,567"},
		{48.3, "EGP", "", "48.30"},
		{32.1, "USD", "", "$ 32.10"},
		{3650.5, "SAR", "", "3,650.50 SAR"},
		{4500, "EGP", "ar", "٤,٥٠٠"},
	}
	for _, c := range cases {
		if got := FormatNumber(c.v, c.currency, c.digits); got != c.want {
			t.Errorf("FormatNumber(%v, %q) = %q, want %q", c.v, c.currency, got, c.want)
		}
	}
}
