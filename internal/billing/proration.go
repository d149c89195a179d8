package billing

import "github.com/shopspring/decimal"

// DefaultDaysInPeriod конвенция 30-дневного месяца для прорации
const DefaultDaysInPeriod = 30

// Prorate вычисляет пропорциональную разницу цены при смене плана:
// (newPrice - oldPrice) / daysInPeriod * daysRemaining.
// Чистая функция без округления: результат округляется единожды
// в точке сохранения или вызова шлюза. Положительный результат —
// доплата, отрицательный — кредит.
func Prorate(oldPrice, newPrice decimal.Decimal, daysRemaining, daysInPeriod int) decimal.Decimal {
	if daysInPeriod <= 0 {
		daysInPeriod = DefaultDaysInPeriod
	}
	if daysRemaining <= 0 {
		return decimal.Zero
	}

	return newPrice.Sub(oldPrice).
		Div(decimal.NewFromInt(int64(daysInPeriod))).
		Mul(decimal.NewFromInt(int64(daysRemaining)))
}
