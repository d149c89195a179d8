package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// GetUsageMetrics агрегирует счетчики использования подписки за период.
// Пустой период означает текущий календарный месяц.
func (s *Service) GetUsageMetrics(ctx context.Context, subscriptionID uuid.UUID, period string) (domain.UsageMetrics, error) {
	subscription, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return domain.UsageMetrics{}, err
	}

	if period == "" {
		period = domain.PeriodOf(time.Now())
	}

	records, err := s.usage.GetForPeriod(ctx, subscription.ID, period)
	if err != nil {
		return domain.UsageMetrics{}, err
	}

	metrics := domain.UsageMetrics{
		SubscriptionID: subscription.ID,
		Period:         period,
		Resources:      make(map[string]int64, len(records)),
	}
	for _, record := range records {
		metrics.Resources[record.ResourceType] = record.Quantity
		if record.RecordedAt.After(metrics.LastUpdated) {
			metrics.LastUpdated = record.RecordedAt
		}
	}
	if metrics.LastUpdated.IsZero() {
		metrics.LastUpdated = time.Now()
	}
	return metrics, nil
}

// ResetUsageLimits обнуляет счетчики использования за текущий период.
// С указанным resourceType обнуляется только он; без него — все строки
// периода вместе с денормализованными счетчиками подписки, атомарно.
func (s *Service) ResetUsageLimits(ctx context.Context, subscriptionID uuid.UUID, resourceType string) error {
	s.log.Debugw("Resetting usage limits", "subscription_id", subscriptionID, "resource_type", resourceType)

	subscription, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	period := domain.PeriodOf(time.Now())
	scope := resourceType
	if scope == "" {
		scope = "all"
	}

	// Событие публикуется после коммита, не изнутри транзакции
	var resetEntry domain.BillingLog
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.usage.ResetPeriod(txCtx, subscription.ID, period, resourceType); err != nil {
			return err
		}
		if resourceType == "" {
			if err := s.subs.ResetUsageCounters(txCtx, subscription.ID); err != nil {
				return err
			}
		}
		saved, err := s.logs.Append(txCtx, domain.BillingLog{
			SubscriptionID: subscription.ID,
			UserID:         subscription.UserID,
			EventType:      domain.EventUsageReset,
			Status:         domain.LogStatusSuccess,
			Metadata: map[string]string{
				"resource_type": scope,
				"period":        period,
			},
		})
		if err != nil {
			return err
		}
		resetEntry = saved
		return nil
	})
	if err != nil {
		return err
	}

	s.publishEvent(ctx, resetEntry)

	s.metrics.IncUsageReset(scope)
	s.log.Infow("Usage limits reset", "subscription_id", subscription.ID, "scope", scope, "period", period)
	return nil
}

// RecordUsage увеличивает счетчик ресурса за текущий период
func (s *Service) RecordUsage(ctx context.Context, subscriptionID uuid.UUID, resourceType string, delta int64) error {
	if resourceType == "" {
		return domain.NewValidationError("resource_type", "resource type is required")
	}
	if delta <= 0 {
		return domain.NewValidationError("delta", "delta must be positive")
	}

	subscription, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	period := domain.PeriodOf(time.Now())
	return s.usage.Increment(ctx, subscription.ID, period, resourceType, delta)
}
