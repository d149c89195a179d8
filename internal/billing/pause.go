package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

// PauseSubscription останавливает списания по подписке.
// Допустим только переход из active (trialing ведет себя как active).
// Порядок: шлюз, затем локальный статус, затем журнал.
func (s *Service) PauseSubscription(ctx context.Context, subscriptionID uuid.UUID, resumeDate *time.Time) (domain.Subscription, error) {
	s.log.Debugw("Pausing subscription", "subscription_id", subscriptionID)

	if !s.locks.TryAcquire(subscriptionID) {
		return domain.Subscription{}, domain.ErrConcurrencyConflict
	}
	defer s.locks.Release(subscriptionID)

	subscription, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}

	if !subscription.Status.IsCollectable() || !subscription.Status.CanTransitionTo(domain.SubscriptionStatusPaused) {
		return domain.Subscription{}, domain.NewInvalidStateError(subscription.ID.String(), subscription.Status, domain.SubscriptionStatusPaused)
	}
	if resumeDate != nil && !resumeDate.After(time.Now()) {
		return domain.Subscription{}, domain.NewValidationError("resume_date", "resume date must be in the future")
	}

	if subscription.GatewaySubRef != "" {
		if err := s.gateway.PauseCollection(ctx, subscription.GatewaySubRef, resumeDate); err != nil {
			s.metrics.IncGatewayError("pause_collection")
			s.recordGatewayFailure(ctx, subscription, domain.EventSubscriptionPaused, nil, err)
			return domain.Subscription{}, err
		}
	}

	subscription.Status = domain.SubscriptionStatusPaused
	updated, err := s.subs.Update(ctx, subscription)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return domain.Subscription{}, domain.ErrConcurrencyConflict
		}
		s.appendReconciliationLog(ctx, subscription, "collection paused at gateway but status not persisted", err)
		return domain.Subscription{}, err
	}

	metadata := map[string]string{}
	if resumeDate != nil {
		metadata["resume_date"] = resumeDate.Format(time.RFC3339)
		if _, err := s.schedule.UpsertPending(ctx, domain.ScheduledChange{
			SubscriptionID: updated.ID,
			Kind:           domain.ScheduledChangeKindResume,
			EffectiveAt:    *resumeDate,
		}); err != nil {
			return domain.Subscription{}, err
		}
	}

	if err := s.appendLog(ctx, domain.BillingLog{
		SubscriptionID: updated.ID,
		UserID:         updated.UserID,
		EventType:      domain.EventSubscriptionPaused,
		Status:         domain.LogStatusSuccess,
		Metadata:       metadata,
	}); err != nil {
		return domain.Subscription{}, err
	}

	s.metrics.IncSubscriptionPaused()
	s.log.Infow("Subscription paused", "subscription_id", updated.ID)
	return updated, nil
}

// ResumeSubscription возобновляет списания по подписке.
// Допустим только переход из paused. Досрочное возобновление
// отменяет запланированное автовозобновление.
func (s *Service) ResumeSubscription(ctx context.Context, subscriptionID uuid.UUID) (domain.Subscription, error) {
	s.log.Debugw("Resuming subscription", "subscription_id", subscriptionID)

	if !s.locks.TryAcquire(subscriptionID) {
		return domain.Subscription{}, domain.ErrConcurrencyConflict
	}
	defer s.locks.Release(subscriptionID)

	subscription, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}

	if subscription.Status != domain.SubscriptionStatusPaused || !subscription.Status.CanTransitionTo(domain.SubscriptionStatusActive) {
		return domain.Subscription{}, domain.NewInvalidStateError(subscription.ID.String(), subscription.Status, domain.SubscriptionStatusActive)
	}

	if subscription.GatewaySubRef != "" {
		if err := s.gateway.ResumeCollection(ctx, subscription.GatewaySubRef); err != nil {
			s.metrics.IncGatewayError("resume_collection")
			s.recordGatewayFailure(ctx, subscription, domain.EventSubscriptionResumed, nil, err)
			return domain.Subscription{}, err
		}
	}

	subscription.Status = domain.SubscriptionStatusActive
	updated, err := s.subs.Update(ctx, subscription)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return domain.Subscription{}, domain.ErrConcurrencyConflict
		}
		s.appendReconciliationLog(ctx, subscription, "collection resumed at gateway but status not persisted", err)
		return domain.Subscription{}, err
	}

	if err := s.schedule.CancelPending(ctx, updated.ID, domain.ScheduledChangeKindResume); err != nil {
		return domain.Subscription{}, err
	}

	if err := s.appendLog(ctx, domain.BillingLog{
		SubscriptionID: updated.ID,
		UserID:         updated.UserID,
		EventType:      domain.EventSubscriptionResumed,
		Status:         domain.LogStatusSuccess,
	}); err != nil {
		return domain.Subscription{}, err
	}

	s.metrics.IncSubscriptionResumed()
	s.log.Infow("Subscription resumed", "subscription_id", updated.ID)
	return updated, nil
}
