package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

func TestProrateUpgrade(t *testing.T) {
	// 20 -> 50 за 10 оставшихся дней из 30: (50-20)/30*10 = 10
	amount := Prorate(decimal.NewFromInt(20), decimal.NewFromInt(50), 10, 30)
	assert.True(t, decimal.NewFromInt(10).Equal(amount), "got %s", amount)
}

func TestProrateDowngradeIsNegative(t *testing.T) {
	amount := Prorate(decimal.NewFromInt(50), decimal.NewFromInt(20), 10, 30)
	assert.True(t, decimal.NewFromInt(-10).Equal(amount), "got %s", amount)
}

func TestProrateAntisymmetry(t *testing.T) {
	a := decimal.RequireFromString("19.90")
	b := decimal.RequireFromString("49.35")

	up := Prorate(a, b, 17, 30)
	down := Prorate(b, a, 17, 30)
	assert.True(t, up.Equal(down.Neg()), "up=%s down=%s", up, down)
}

func TestProrateNoDaysRemaining(t *testing.T) {
	assert.True(t, Prorate(decimal.NewFromInt(20), decimal.NewFromInt(50), 0, 30).IsZero())
	assert.True(t, Prorate(decimal.NewFromInt(20), decimal.NewFromInt(50), -3, 30).IsZero())
}

func TestProrateKeepsPrecisionUntilRounding(t *testing.T) {
	// (50-20)/30*7 = 7, но (10-0)/30*7 = 2.333... — округление только в конце
	amount := Prorate(decimal.Zero, decimal.NewFromInt(10), 7, 30)
	assert.False(t, amount.Equal(domain.RoundHalfUp(amount)))
	assert.Equal(t, "2.33", domain.RoundHalfUp(amount).String())
}

func TestProrateDefaultsPeriodLength(t *testing.T) {
	withDefault := Prorate(decimal.NewFromInt(20), decimal.NewFromInt(50), 10, 0)
	explicit := Prorate(decimal.NewFromInt(20), decimal.NewFromInt(50), 10, DefaultDaysInPeriod)
	assert.True(t, withDefault.Equal(explicit))
}
