package helpers

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SharesPerLot is the board lot size on IDX.
const SharesPerLot = 100

// FormatRupiah formats an amount as Indonesian Rupiah with dot thousand separators.
// Fractions are rounded away.
func FormatRupiah(amount decimal.Decimal) string {
	value := amount.Round(0)
	if value.IsNegative() {
		return "Rp -" + groupThousands(value.Neg().String())
	}
	return "Rp " + groupThousands(value.String())
}

// FormatLots renders a share volume as lots.
func FormatLots(shares int64) string {
	lots := shares / SharesPerLot
	if lots < 0 {
		return "-" + groupThousands(fmt.Sprintf("%d", -lots)) + " lot"
	}
	return groupThousands(fmt.Sprintf("%d", lots)) + " lot"
}

func groupThousands(digits string) string {
	length := len(digits)
	if length <= 3 {
		return digits
	}

	// Build the formatted string with dots as thousand separators
	out := make([]byte, 0, length+length/3)
	for i := 0; i < length; i++ {
		if i > 0 && (length-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, digits[i])
	}
	return string(out)
}
