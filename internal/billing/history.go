package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

// Границы пагинации журнала биллинга
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// GetSubscriptionDetails возвращает подписку вместе с планом
// и отложенными изменениями
func (s *Service) GetSubscriptionDetails(ctx context.Context, subscriptionID uuid.UUID) (domain.SubscriptionDetails, error) {
	subscription, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return domain.SubscriptionDetails{}, err
	}

	plan, err := s.loadPlan(ctx, subscription.PlanID)
	if err != nil {
		return domain.SubscriptionDetails{}, err
	}

	details := domain.SubscriptionDetails{
		Subscription: subscription,
		Plan:         plan,
	}

	if change, err := s.schedule.GetPending(ctx, subscription.ID, domain.ScheduledChangeKindPlanChange); err == nil {
		details.PendingChange = &change
	} else if err != repository.ErrNotFound {
		return domain.SubscriptionDetails{}, err
	}

	if resume, err := s.schedule.GetPending(ctx, subscription.ID, domain.ScheduledChangeKindResume); err == nil {
		details.PendingResume = &resume
	} else if err != repository.ErrNotFound {
		return domain.SubscriptionDetails{}, err
	}

	return details, nil
}

// GetBillingHistory возвращает страницу журнала биллинга подписки
func (s *Service) GetBillingHistory(ctx context.Context, subscriptionID uuid.UUID, limit, offset int) ([]domain.BillingLog, error) {
	if _, err := s.loadSubscription(ctx, subscriptionID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.logs.List(ctx, subscriptionID, limit, offset)
}

// GetPaymentMethods возвращает платежные методы клиента из шлюза
func (s *Service) GetPaymentMethods(ctx context.Context, subscriptionID uuid.UUID) ([]domain.PaymentMethod, error) {
	subscription, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if subscription.GatewayCustomerRef == "" {
		return nil, nil
	}

	methods, err := s.gateway.ListPaymentMethods(ctx, subscription.GatewayCustomerRef)
	if err != nil {
		s.metrics.IncGatewayError("list_payment_methods")
		return nil, err
	}

	for i := range methods {
		if methods[i].Ref == subscription.PaymentMethodRef {
			methods[i].IsDefault = true
		}
	}
	return methods, nil
}

// UpdatePaymentMethod делает methodRef платежным методом по умолчанию
func (s *Service) UpdatePaymentMethod(ctx context.Context, subscriptionID uuid.UUID, methodRef string) (domain.Subscription, error) {
	if methodRef == "" {
		return domain.Subscription{}, domain.NewValidationError("payment_method_ref", "payment method is required")
	}

	if !s.locks.TryAcquire(subscriptionID) {
		return domain.Subscription{}, domain.ErrConcurrencyConflict
	}
	defer s.locks.Release(subscriptionID)

	subscription, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if subscription.GatewayCustomerRef == "" {
		return domain.Subscription{}, domain.NewValidationError("subscription", "subscription has no gateway customer")
	}

	if err := s.gateway.UpdateDefaultPaymentMethod(ctx, subscription.GatewayCustomerRef, methodRef); err != nil {
		s.metrics.IncGatewayError("update_default_payment_method")
		s.recordGatewayFailure(ctx, subscription, domain.EventPaymentMethodUpdated, map[string]string{"payment_method_ref": methodRef}, err)
		return domain.Subscription{}, err
	}

	subscription.PaymentMethodRef = methodRef
	updated, err := s.subs.Update(ctx, subscription)
	if err != nil {
		if err == repository.ErrVersionConflict {
			return domain.Subscription{}, domain.ErrConcurrencyConflict
		}
		s.appendReconciliationLog(ctx, subscription, "default payment method updated at gateway but not persisted", err)
		return domain.Subscription{}, err
	}

	if err := s.appendLog(ctx, domain.BillingLog{
		SubscriptionID: updated.ID,
		UserID:         updated.UserID,
		EventType:      domain.EventPaymentMethodUpdated,
		Status:         domain.LogStatusSuccess,
		Metadata:       map[string]string{"payment_method_ref": methodRef},
	}); err != nil {
		return domain.Subscription{}, err
	}

	s.log.Infow("Payment method updated", "subscription_id", updated.ID)
	return updated, nil
}
