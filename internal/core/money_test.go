package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"100", "100"},
		{"1,200", "1200"},
		{"NT$ 85", "85"},
		{"$12.5", "12.5"},
		{"-300", "-300"},
		{"", "0"},
		{"abc", "0"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseAmount(tc.in).String(), tc.in)
	}
}

func TestParseInputAmount(t *testing.T) {
	d, err := ParseInputAmount("1,000.5")
	assert.NoError(t, err)
	assert.Equal(t, "1000.5", d.String())

	for _, bad := range []string{"", "0", "-1", "x"} {
		_, err := ParseInputAmount(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestFormatTWD(t *testing.T) {
	assert.Equal(t, "NT$ 1,234", FormatTWD(decimal.NewFromInt(1234)))
	assert.Equal(t, "NT$ 999", FormatTWD(decimal.NewFromInt(999)))
	assert.Equal(t, "-NT$ 1,000,000", FormatTWD(decimal.NewFromInt(-1000000)))
	assert.Equal(t, "NT$ 50.5", FormatTWD(decimal.RequireFromString("50.50")))
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2024-01-05", "2024/01/05", "2024/1/5", "2024-1-5", "2024-01-05 08:30:00"} {
		d, ok := ParseDate(in)
		assert.True(t, ok, in)
		assert.Equal(t, "2024-01-05", d.String(), in)
	}
	for _, bad := range []string{"", "yesterday", "2024-13-01", "05/01/2024x"} {
		_, ok := ParseDate(bad)
		assert.False(t, ok, bad)
	}
}
