package helpers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatRupiah(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "Rp 0"},
		{"999", "Rp 999"},
		{"1000", "Rp 1.000"},
		{"1234567.6", "Rp 1.234.568"},
		{"-2500000", "Rp -2.500.000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRupiah(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFormatLots(t *testing.T) {
	assert.Equal(t, "0 lot", FormatLots(99))
	assert.Equal(t, "12.345 lot", FormatLots(1234500))
	assert.Equal(t, "-5 lot", FormatLots(-500))
}
