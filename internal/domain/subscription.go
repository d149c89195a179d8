package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// allowedTransitions единая таблица переходов статусов.
// Все мутаторы (pause, resume, cancel) проверяют переход здесь,
// а не дублируют проверки по месту. cancelled — терминальный статус.
var allowedTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusTrialing:  {SubscriptionStatusActive, SubscriptionStatusPaused, SubscriptionStatusCancelled},
	SubscriptionStatusActive:    {SubscriptionStatusPaused, SubscriptionStatusCancelled},
	SubscriptionStatusPaused:    {SubscriptionStatusActive, SubscriptionStatusCancelled},
	SubscriptionStatusCancelled: {},
}

// CanTransitionTo проверяет допустимость перехода статуса
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsCollectable trialing ведет себя как active для pause/resume
func (s SubscriptionStatus) IsCollectable() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Subscription представляет собой модель подписки
type Subscription struct {
	ID                 uuid.UUID          `json:"id"`
	UserID             uuid.UUID          `json:"user_id"`
	PlanID             uuid.UUID          `json:"plan_id"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	GatewayCustomerRef string             `json:"gateway_customer_ref,omitempty"`
	GatewaySubRef      string             `json:"gateway_subscription_ref,omitempty"`
	PaymentMethodRef   string             `json:"payment_method_ref,omitempty"`
	InvoicesThisMonth  int                `json:"invoices_this_month"`
	StorageUsed        int64              `json:"storage_used"`
	Version            int64              `json:"-"` // для оптимистичной блокировки
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// DaysRemainingInPeriod возвращает количество оставшихся дней периода,
// округленное вверх до целых дней. Не бывает отрицательным.
func (s *Subscription) DaysRemainingInPeriod(now time.Time) int {
	if !now.Before(s.CurrentPeriodEnd) {
		return 0
	}
	remaining := s.CurrentPeriodEnd.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// SubscriptionDetails подписка вместе с планом и отложенными изменениями
type SubscriptionDetails struct {
	Subscription  Subscription     `json:"subscription"`
	Plan          Plan             `json:"plan"`
	PendingChange *ScheduledChange `json:"pending_change,omitempty"`
	PendingResume *ScheduledChange `json:"pending_resume,omitempty"`
}
