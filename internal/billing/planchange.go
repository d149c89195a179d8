package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

// Значения proration behavior платежного шлюза
const (
	prorationBehaviorCreate = "create_prorations"
	prorationBehaviorNone   = "none"
)

// ChangePlanInput запрос на смену плана
type ChangePlanInput struct {
	UserID        uuid.UUID
	PlanID        uuid.UUID
	Immediate     bool
	ScheduledDate time.Time
	Prorated      bool
	Reason        string
}

// ChangePlanResult результат смены плана
type ChangePlanResult struct {
	Subscription    domain.Subscription     `json:"subscription"`
	ProrationAmount *decimal.Decimal        `json:"proration_amount,omitempty"`
	Scheduled       bool                    `json:"scheduled"`
	ScheduledChange *domain.ScheduledChange `json:"scheduled_change,omitempty"`
}

// ChangePlan переводит подписку пользователя на другой план: немедленно
// или отложенно. Порядок немедленного пути строгий: шлюз, затем локальное
// состояние, затем журнал — чтобы локальная база никогда не утверждала
// списание, которого не было в шлюзе.
func (s *Service) ChangePlan(ctx context.Context, input ChangePlanInput) (ChangePlanResult, error) {
	s.log.Debugw("Changing plan", "user_id", input.UserID, "plan_id", input.PlanID, "immediate", input.Immediate)

	if input.PlanID == uuid.Nil {
		return ChangePlanResult{}, domain.NewValidationError("plan_id", "plan is required")
	}
	if !input.Immediate && input.ScheduledDate.IsZero() {
		return ChangePlanResult{}, domain.NewValidationError("scheduled_date", "scheduled date is required for a deferred change")
	}

	subscription, err := s.subs.GetByUserID(ctx, input.UserID)
	if err != nil {
		if err == repository.ErrNotFound {
			return ChangePlanResult{}, domain.NewNotFoundError("subscription", input.UserID.String())
		}
		return ChangePlanResult{}, err
	}

	if !s.locks.TryAcquire(subscription.ID) {
		return ChangePlanResult{}, domain.ErrConcurrencyConflict
	}
	defer s.locks.Release(subscription.ID)

	// Перечитываем состояние уже под блокировкой
	subscription, err = s.loadSubscription(ctx, subscription.ID)
	if err != nil {
		return ChangePlanResult{}, err
	}

	if subscription.PlanID == input.PlanID {
		// Без вызова шлюза и без записи в журнал
		return ChangePlanResult{}, domain.ErrAlreadyOnPlan
	}

	currentPlan, err := s.loadPlan(ctx, subscription.PlanID)
	if err != nil {
		return ChangePlanResult{}, err
	}
	targetPlan, err := s.loadPlan(ctx, input.PlanID)
	if err != nil {
		return ChangePlanResult{}, err
	}

	// Прорация по 30-дневной конвенции; дни до конца периода округляются вверх
	var prorationAmount *decimal.Decimal
	if input.Prorated && !currentPlan.Price.Equal(targetPlan.Price) {
		daysRemaining := subscription.DaysRemainingInPeriod(time.Now())
		amount := Prorate(currentPlan.Price, targetPlan.Price, daysRemaining, DefaultDaysInPeriod)
		prorationAmount = &amount
	}

	if !input.Immediate {
		return s.schedulePlanChange(ctx, subscription, targetPlan, input)
	}

	return s.changePlanImmediate(ctx, subscription, currentPlan, targetPlan, prorationAmount, input)
}

// changePlanImmediate немедленный путь смены плана
func (s *Service) changePlanImmediate(
	ctx context.Context,
	subscription domain.Subscription,
	currentPlan, targetPlan domain.Plan,
	prorationAmount *decimal.Decimal,
	input ChangePlanInput,
) (ChangePlanResult, error) {
	prorationBehavior := prorationBehaviorNone
	if input.Prorated {
		prorationBehavior = prorationBehaviorCreate
	}

	gatewaySubRef := subscription.GatewaySubRef
	failureMeta := func(op string) map[string]string {
		return map[string]string{
			"old_plan_id": currentPlan.ID.String(),
			"new_plan_id": targetPlan.ID.String(),
			"gateway_op":  op,
		}
	}

	switch {
	case gatewaySubRef != "" && targetPlan.IsFree():
		// Даунгрейд на бесплатный план: подписка в шлюзе отменяется
		if err := s.gateway.CancelSubscription(ctx, gatewaySubRef); err != nil {
			s.metrics.IncGatewayError("cancel_subscription")
			s.recordGatewayFailure(ctx, subscription, domain.EventPlanChanged, failureMeta("cancel_subscription"), err)
			return ChangePlanResult{}, err
		}
		gatewaySubRef = ""
	case gatewaySubRef != "":
		if err := s.gateway.UpdateSubscriptionItem(ctx, gatewaySubRef, targetPlan.GatewayPriceRef, prorationBehavior); err != nil {
			s.metrics.IncGatewayError("update_subscription_item")
			s.recordGatewayFailure(ctx, subscription, domain.EventPlanChanged, failureMeta("update_subscription_item"), err)
			return ChangePlanResult{}, err
		}
	case !targetPlan.IsFree():
		// Подписки в шлюзе еще нет, а план платный: создаем
		ref, err := s.gateway.CreateSubscription(ctx, subscription.GatewayCustomerRef, targetPlan.GatewayPriceRef, map[string]string{
			"subscription_id": subscription.ID.String(),
			"user_id":         subscription.UserID.String(),
		})
		if err != nil {
			s.metrics.IncGatewayError("create_subscription")
			s.recordGatewayFailure(ctx, subscription, domain.EventPlanChanged, failureMeta("create_subscription"), err)
			return ChangePlanResult{}, err
		}
		gatewaySubRef = ref
	}

	// Локальное состояние меняем только после успеха шлюза
	subscription.PlanID = targetPlan.ID
	subscription.GatewaySubRef = gatewaySubRef

	updated, err := s.subs.Update(ctx, subscription)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ChangePlanResult{}, domain.ErrConcurrencyConflict
		}
		// Шлюз уже переключен, а локальная запись не сохранилась:
		// фиксируем расхождение для ручной сверки, не повторяем вызов шлюза
		s.log.Errorw("Local persist failed after successful gateway call",
			"subscription_id", subscription.ID, "target_plan_id", targetPlan.ID, "error", err)
		s.appendReconciliationLog(ctx, subscription, "plan_change persisted at gateway but not locally", err)
		return ChangePlanResult{}, err
	}

	logEntry := domain.BillingLog{
		SubscriptionID: updated.ID,
		UserID:         updated.UserID,
		EventType:      domain.EventPlanChanged,
		Currency:       targetPlan.Currency,
		Status:         domain.LogStatusSuccess,
		Metadata: map[string]string{
			"old_plan_id": currentPlan.ID.String(),
			"new_plan_id": targetPlan.ID.String(),
			"prorated":    boolString(input.Prorated),
			"reason":      input.Reason,
		},
	}
	var roundedProration *decimal.Decimal
	if prorationAmount != nil {
		rounded := domain.RoundHalfUp(*prorationAmount)
		roundedProration = &rounded
		logEntry.Amount = &rounded
	}
	if err := s.appendLog(ctx, logEntry); err != nil {
		return ChangePlanResult{}, err
	}

	// Денормализованное имя плана в аккаунте; сбой не откатывает смену плана
	if err := s.accounts.SyncPlanName(ctx, updated.UserID, targetPlan.Name); err != nil {
		s.log.Warnw("Failed to sync plan name to account", "user_id", updated.UserID, "plan_name", targetPlan.Name, "error", err)
	}

	s.metrics.IncPlanChanged(targetPlan.Currency)
	if roundedProration != nil {
		amountFloat, _ := roundedProration.Float64()
		s.metrics.ObserveProrationAmount(amountFloat, targetPlan.Currency)
	}

	s.log.Infow("Plan changed", "subscription_id", updated.ID, "old_plan", currentPlan.Name, "new_plan", targetPlan.Name)
	return ChangePlanResult{
		Subscription:    updated,
		ProrationAmount: roundedProration,
	}, nil
}

// schedulePlanChange отложенный путь: план подписки не трогаем,
// ставим единственную pending запись (last-write-wins)
func (s *Service) schedulePlanChange(
	ctx context.Context,
	subscription domain.Subscription,
	targetPlan domain.Plan,
	input ChangePlanInput,
) (ChangePlanResult, error) {
	targetPlanID := targetPlan.ID
	change, err := s.schedule.UpsertPending(ctx, domain.ScheduledChange{
		SubscriptionID: subscription.ID,
		Kind:           domain.ScheduledChangeKindPlanChange,
		TargetPlanID:   &targetPlanID,
		EffectiveAt:    input.ScheduledDate,
		Prorated:       input.Prorated,
		Reason:         input.Reason,
	})
	if err != nil {
		return ChangePlanResult{}, err
	}

	err = s.appendLog(ctx, domain.BillingLog{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		EventType:      domain.EventPlanChangeScheduled,
		Currency:       targetPlan.Currency,
		Status:         domain.LogStatusPending,
		Metadata: map[string]string{
			"target_plan_id": targetPlan.ID.String(),
			"effective_at":   input.ScheduledDate.Format(time.RFC3339),
			"prorated":       boolString(input.Prorated),
			"reason":         input.Reason,
		},
	})
	if err != nil {
		return ChangePlanResult{}, err
	}

	s.metrics.IncPlanChangeScheduled()
	s.log.Infow("Plan change scheduled", "subscription_id", subscription.ID, "target_plan_id", targetPlan.ID, "effective_at", input.ScheduledDate)

	return ChangePlanResult{
		Subscription:    subscription,
		Scheduled:       true,
		ScheduledChange: &change,
	}, nil
}

// appendReconciliationLog фиксирует расхождение шлюза и локальной базы
func (s *Service) appendReconciliationLog(ctx context.Context, subscription domain.Subscription, detail string, cause error) {
	entry := domain.BillingLog{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		EventType:      domain.EventReconciliationRequired,
		Status:         domain.LogStatusFailed,
		Metadata: map[string]string{
			"detail": detail,
			"error":  cause.Error(),
		},
	}
	if err := s.appendLog(ctx, entry); err != nil {
		s.log.Errorw("Failed to record reconciliation entry", "subscription_id", subscription.ID, "error", err)
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
