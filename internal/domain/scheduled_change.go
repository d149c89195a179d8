package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledChangeKind вид отложенного изменения
type ScheduledChangeKind string

const (
	ScheduledChangeKindPlanChange ScheduledChangeKind = "plan_change"
	ScheduledChangeKindResume     ScheduledChangeKind = "resume"
)

// ScheduledChangeStatus статус отложенного изменения
type ScheduledChangeStatus string

const (
	ScheduledChangeStatusPending   ScheduledChangeStatus = "pending"
	ScheduledChangeStatusApplied   ScheduledChangeStatus = "applied"
	ScheduledChangeStatusCancelled ScheduledChangeStatus = "cancelled"
)

// ScheduledChange отложенное изменение подписки, исполняемое внешним
// планировщиком. На подписку существует не более одной pending записи
// каждого вида; повторная постановка перезаписывает предыдущую.
type ScheduledChange struct {
	ID             uuid.UUID             `json:"id"`
	SubscriptionID uuid.UUID             `json:"subscription_id"`
	Kind           ScheduledChangeKind   `json:"kind"`
	Status         ScheduledChangeStatus `json:"status"`
	// TargetPlanID заполняется для kind=plan_change
	TargetPlanID *uuid.UUID `json:"target_plan_id,omitempty"`
	// EffectiveAt дата исполнения: scheduledDate для смены плана, resumeDate для возобновления
	EffectiveAt time.Time `json:"effective_at"`
	Prorated    bool      `json:"prorated"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
