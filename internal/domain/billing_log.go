package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Типы событий журнала биллинга
const (
	EventPlanChanged            = "plan_changed"
	EventPlanChangeScheduled    = "plan_change_scheduled"
	EventCreditAdded            = "credit_added"
	EventCreditApplied          = "credit_applied"
	EventRefundProcessed        = "refund_processed"
	EventUsageReset             = "usage_reset"
	EventSubscriptionPaused     = "subscription_paused"
	EventSubscriptionResumed    = "subscription_resumed"
	EventPaymentSucceeded       = "payment_succeeded"
	EventPaymentMethodUpdated   = "payment_method_updated"
	EventReconciliationRequired = "reconciliation_required"
)

// Статусы записей журнала
const (
	LogStatusSuccess = "success"
	LogStatusPending = "pending"
	LogStatusFailed  = "failed"
)

// BillingLog запись аудиторского журнала биллинга.
// Журнал только дополняется; записи никогда не обновляются и не удаляются.
type BillingLog struct {
	ID             uuid.UUID         `json:"id"`
	SubscriptionID uuid.UUID         `json:"subscription_id"`
	UserID         uuid.UUID         `json:"user_id"`
	EventType      string            `json:"event_type"`
	Amount         *decimal.Decimal  `json:"amount,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
