/**
 * @description
 * Amount normalization for free-text currency amounts. SMS notifications carry
 * amounts in wildly inconsistent shapes ("Tk 1,000.00", "৳1000", "１000",
 * "500 BDT"); verification must compare them numerically, not textually.
 *
 * @notes
 * - Normalization keeps only decimal digits and the first decimal point, after
 *   folding full-width characters and Bengali numerals to ASCII, then rounds
 *   to AmountScale decimal places so the in-memory value always agrees with
 *   the persisted column.
 * - Empty or non-numeric input normalizes to zero. That makes a blank amount
 *   comparable to a zero-amount record, so matching on zero is gated behind an
 *   explicit policy flag at the verification layer rather than here.
 */

package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

// AmountScale is the number of decimal places a canonical amount carries.
// It matches the NUMERIC scale of the stored amount_canonical column, so the
// value compared at verification time is exactly the value that was persisted.
const AmountScale = 4

// Bengali numerals appear in notifications from Bengali-locale handsets.
var bengaliDigits = strings.NewReplacer(
	"০", "0", "১", "1", "২", "2", "৩", "3", "৪", "4",
	"৫", "5", "৬", "6", "৭", "7", "৮", "8", "৯", "9",
)

// NormalizeAmount converts a raw amount string into a canonical decimal value.
// Two amount texts are equal for matching purposes iff their normalized
// decimals are numerically equal, so "1,000.00", "1000" and "Tk 1000" all
// collapse to the same value. Unparseable input yields zero.
func NormalizeAmount(raw string) decimal.Decimal {
	folded := bengaliDigits.Replace(width.Fold.String(raw))

	var b strings.Builder
	sawPoint := false
	for _, r := range folded {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !sawPoint:
			sawPoint = true
			b.WriteRune(r)
		case r == '.':
			// A second point ends the number, matching how a substitution
			// parser reads "1.2.3" as 1.2.
			return parseClean(b.String())
		}
	}
	return parseClean(b.String())
}

// AmountsEqual reports whether two raw amount texts normalize to the same
// numeric value.
func AmountsEqual(a, b string) bool {
	return NormalizeAmount(a).Equal(NormalizeAmount(b))
}

func parseClean(clean string) decimal.Decimal {
	if clean == "" || clean == "." {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero
	}
	return d.Round(AmountScale)
}
