package helpers

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUSD formats an amount as US dollars with thousand separators, e.g. $1,234.50
func FormatUSD(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(2)

	negative := d.IsNegative()
	if negative {
		d = d.Neg()
	}

	str := d.StringFixed(2)
	intPart, fracPart, _ := strings.Cut(str, ".")

	var sb strings.Builder
	length := len(intPart)
	for i, digit := range intPart {
		if i > 0 && (length-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(digit)
	}

	if negative {
		return "-$" + sb.String() + "." + fracPart
	}
	return "$" + sb.String() + "." + fracPart
}

// FormatUSDPtr formats an optional amount, returning "N/A" when absent
func FormatUSDPtr(amount *float64) string {
	if amount == nil {
		return "N/A"
	}
	return FormatUSD(*amount)
}

// FormatPercent formats a fraction as a percentage with one decimal, e.g. 0.1234 -> 12.3%
func FormatPercent(fraction float64) string {
	return decimal.NewFromFloat(fraction).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

// FormatScore formats a 0-100 score with one decimal, e.g. 82.5/100
func FormatScore(score float64) string {
	return decimal.NewFromFloat(score).StringFixed(1) + "/100"
}
