package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingCredit представляет собой предоплаченный кредит подписки.
// Создается один раз, применяется один раз (AppliedAt), частично не списывается.
type BillingCredit struct {
	ID             uuid.UUID       `json:"id"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"` // всегда > 0
	Currency       string          `json:"currency"`
	Reason         string          `json:"reason"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	AppliedAt      *time.Time      `json:"applied_at,omitempty"`
	IsActive       bool            `json:"is_active"`
}

// IsEligible кредит доступен для применения на момент now
func (c *BillingCredit) IsEligible(now time.Time) bool {
	if !c.IsActive || c.AppliedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}

// CreditApplication результат применения одного кредита
type CreditApplication struct {
	CreditID uuid.UUID       `json:"credit_id"`
	Applied  decimal.Decimal `json:"applied"`
}
