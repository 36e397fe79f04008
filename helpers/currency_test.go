package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{19.99, "$19.99"},
		{999.5, "$999.50"},
		{1234.5, "$1,234.50"},
		{1234567.891, "$1,234,567.89"},
		{-42.1, "-$42.10"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUSD(tt.in))
		})
	}
}

func TestFormatUSDPtr(t *testing.T) {
	assert.Equal(t, "N/A", FormatUSDPtr(nil))
	v := 5.0
	assert.Equal(t, "$5.00", FormatUSDPtr(&v))
}

func TestFormatPercentAndScore(t *testing.T) {
	assert.Equal(t, "12.3%", FormatPercent(0.1234))
	assert.Equal(t, "10.0%", FormatPercent(0.10))
	assert.Equal(t, "82.5/100", FormatScore(82.5))
	assert.Equal(t, "100.0/100", FormatScore(100))
}
