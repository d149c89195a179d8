package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundHalfUp(t *testing.T) {
	cases := map[string]string{
		"2.344":  "2.34",
		"2.345":  "2.35",
		"2.346":  "2.35",
		"6.6666": "6.67",
		"-2.345": "-2.35",
		"10":     "10",
		"0.005":  "0.01",
	}

	for input, want := range cases {
		got := RoundHalfUp(decimal.RequireFromString(input))
		assert.Equal(t, want, got.String(), "RoundHalfUp(%s)", input)
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(2000), MinorUnits(decimal.NewFromInt(20)))
	assert.Equal(t, int64(667), MinorUnits(decimal.RequireFromString("6.666666667")))
	assert.Equal(t, int64(1), MinorUnits(decimal.RequireFromString("0.005")))
}
