package domain

import "github.com/shopspring/decimal"

// RoundHalfUp округляет денежную сумму до 2 знаков по правилу half-up.
// Применяется ровно один раз: в точке сохранения или вызова шлюза,
// никогда раньше в цепочке вычислений.
func RoundHalfUp(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// MinorUnits переводит округленную сумму в минорные единицы валюты
// (сантимы/центы) для платежного шлюза.
func MinorUnits(amount decimal.Decimal) int64 {
	return RoundHalfUp(amount).Mul(decimal.NewFromInt(100)).IntPart()
}
