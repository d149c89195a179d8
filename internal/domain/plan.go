package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan представляет собой тарифный план.
// Справочные данные: для биллингового ядра план только читается.
type Plan struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"` // без налога
	Currency        string          `json:"currency"`
	GatewayPriceRef string          `json:"gateway_price_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// IsFree план с нулевой ценой не требует подписки в платежном шлюзе
func (p *Plan) IsFree() bool {
	return p.Price.IsZero()
}
