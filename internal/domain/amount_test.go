package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain integer", raw: "1000", want: "1000"},
		{name: "thousands separator with decimals", raw: "1,000.00", want: "1000.00"},
		{name: "currency suffix", raw: "1,000.00Tk", want: "1000.00"},
		{name: "currency prefix with space", raw: "Tk 1000.00", want: "1000.00"},
		{name: "taka sign", raw: "৳1000", want: "1000"},
		{name: "full width digits", raw: "１000", want: "1000"},
		{name: "bengali numerals", raw: "৫০০", want: "500"},
		{name: "trailing currency code", raw: "500 BDT", want: "500"},
		{name: "second point ends the number", raw: "1.2.3", want: "1.2"},
		{name: "rounds to storage scale", raw: "10.123456", want: "10.1235"},
		{name: "four decimals pass through", raw: "10.1234", want: "10.1234"},
		{name: "empty", raw: "", want: "0"},
		{name: "no digits", raw: "no amount", want: "0"},
		{name: "lone point", raw: ".", want: "0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			want, err := decimal.NewFromString(tc.want)
			if err != nil {
				t.Fatalf("bad expectation %q: %v", tc.want, err)
			}
			got := NormalizeAmount(tc.raw)
			if !got.Equal(want) {
				t.Fatalf("NormalizeAmount(%q) = %s, want %s", tc.raw, got, want)
			}
		})
	}
}

func TestAmountsEqual(t *testing.T) {
	pairs := []struct {
		a, b string
		want bool
	}{
		{"1,000.00Tk", "১০০০", true},
		{"1,000.00", "1000", true},
		{"Tk 1000.00", "১,০০০", true},
		{"1000", "1000.01", false},
		{"500", "৫০০", true},
		{"", "0", true},
		// Both sides round to the same stored scale.
		{"10.123456", "10.12349", true},
	}

	for _, tc := range pairs {
		if got := AmountsEqual(tc.a, tc.b); got != tc.want {
			t.Errorf("AmountsEqual(%q, %q) = %t, want %t", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestTruncateField(t *testing.T) {
	short := "short value"
	if got := TruncateField(short); got != short {
		t.Fatalf("short value must pass through, got %q", got)
	}

	long := make([]byte, 0, MaxFieldLength+10)
	for len(long) < MaxFieldLength+10 {
		long = append(long, 'a')
	}
	if got := TruncateField(string(long)); len(got) != MaxFieldLength {
		t.Fatalf("expected truncation to %d bytes, got %d", MaxFieldLength, len(got))
	}

	// A multi-byte rune straddling the limit must not be split.
	prefix := make([]byte, MaxFieldLength-1)
	for i := range prefix {
		prefix[i] = 'b'
	}
	straddled := string(prefix) + "৳"
	got := TruncateField(straddled)
	if len(got) > MaxFieldLength {
		t.Fatalf("truncated value exceeds limit: %d bytes", len(got))
	}
	for _, r := range got {
		if r == 0xFFFD {
			t.Fatal("truncation produced invalid UTF-8")
		}
	}
}
