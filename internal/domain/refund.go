package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundType тип возврата
type RefundType string

const (
	RefundTypeFull     RefundType = "full"
	RefundTypePartial  RefundType = "partial"
	RefundTypeProrated RefundType = "prorated"
)

// Valid проверяет известность типа возврата
func (t RefundType) Valid() bool {
	switch t {
	case RefundTypeFull, RefundTypePartial, RefundTypeProrated:
		return true
	}
	return false
}

// RefundStatus статус возврата
type RefundStatus string

const (
	RefundStatusProcessed RefundStatus = "processed"
	// RefundStatusLedgerOnly возврат без вызова шлюза (ручная корректировка)
	RefundStatusLedgerOnly RefundStatus = "ledger_only"
	RefundStatusFailed     RefundStatus = "failed"
)

// Refund представляет собой запись о возврате. Только добавляется.
type Refund struct {
	ID               uuid.UUID       `json:"id"`
	SubscriptionID   uuid.UUID       `json:"subscription_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Reason           string          `json:"reason"`
	RefundType       RefundType      `json:"refund_type"`
	GatewayRefundRef string          `json:"gateway_refund_ref,omitempty"`
	Status           RefundStatus    `json:"status"`
	ProcessedBy      string          `json:"processed_by"`
	CreatedAt        time.Time       `json:"created_at"`
}
