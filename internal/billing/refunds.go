package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

// ProcessRefundInput запрос на возврат
type ProcessRefundInput struct {
	SubscriptionID uuid.UUID
	Amount         decimal.Decimal
	Reason         string
	RefundType     domain.RefundType
	ProcessedBy    string
}

// ProcessRefund вычисляет сумму возврата по типу, вызывает шлюз при
// наличии успешного платежа и записывает Refund вместе с журналом.
// Запись бухгалтерии делается и при сбое шлюза: попытка возврата
// должна остаться в журнале для сверки.
func (s *Service) ProcessRefund(ctx context.Context, input ProcessRefundInput) (domain.Refund, error) {
	s.log.Debugw("Processing refund", "subscription_id", input.SubscriptionID, "refund_type", input.RefundType)

	if !input.RefundType.Valid() {
		return domain.Refund{}, domain.NewValidationError("refund_type", "unknown refund type")
	}
	if input.RefundType == domain.RefundTypePartial && !input.Amount.IsPositive() {
		return domain.Refund{}, domain.NewValidationError("amount", "partial refund amount must be positive")
	}

	subscription, err := s.loadSubscription(ctx, input.SubscriptionID)
	if err != nil {
		return domain.Refund{}, err
	}

	if !s.locks.TryAcquire(subscription.ID) {
		return domain.Refund{}, domain.ErrConcurrencyConflict
	}
	defer s.locks.Release(subscription.ID)

	plan, err := s.loadPlan(ctx, subscription.PlanID)
	if err != nil {
		return domain.Refund{}, err
	}

	// Сумма возврата по типу; для full и prorated caller-сумма игнорируется
	var refundAmount decimal.Decimal
	switch input.RefundType {
	case domain.RefundTypeFull:
		refundAmount = plan.Price
	case domain.RefundTypeProrated:
		daysRemaining := subscription.DaysRemainingInPeriod(time.Now())
		refundAmount = plan.Price.
			Div(decimal.NewFromInt(DefaultDaysInPeriod)).
			Mul(decimal.NewFromInt(int64(daysRemaining)))
	case domain.RefundTypePartial:
		refundAmount = input.Amount
	}

	rounded := domain.RoundHalfUp(refundAmount)
	if !rounded.IsPositive() {
		return domain.Refund{}, domain.NewValidationError("amount", "computed refund amount is not positive")
	}

	// Накопленные возвраты подписки не могут превысить цену плана
	alreadyRefunded, err := s.refunds.SumBySubscription(ctx, subscription.ID)
	if err != nil {
		return domain.Refund{}, err
	}
	if alreadyRefunded.Add(rounded).GreaterThan(plan.Price) {
		return domain.Refund{}, domain.NewValidationError("amount", "cumulative refunds would exceed plan price")
	}

	refund := domain.Refund{
		SubscriptionID: subscription.ID,
		Amount:         rounded,
		Currency:       plan.Currency,
		Reason:         input.Reason,
		RefundType:     input.RefundType,
		ProcessedBy:    input.ProcessedBy,
	}

	// Ищем последний успешный платеж: без него возврат идет только по бухгалтерии
	var gatewayErr error
	lastPayment, err := s.logs.LastByEventType(ctx, subscription.ID, domain.EventPaymentSucceeded, domain.LogStatusSuccess)
	switch {
	case err == repository.ErrNotFound:
		s.log.Warnw("No successful payment found, recording ledger-only refund", "subscription_id", subscription.ID)
		refund.Status = domain.RefundStatusLedgerOnly
	case err != nil:
		return domain.Refund{}, err
	default:
		paymentRef := lastPayment.Metadata["payment_ref"]
		refundRef, err := s.gateway.CreateRefund(ctx, paymentRef, domain.MinorUnits(rounded), input.Reason)
		if err != nil {
			// Попытку все равно фиксируем локально, ошибку вернем после записи
			s.metrics.IncGatewayError("create_refund")
			gatewayErr = err
			refund.Status = domain.RefundStatusFailed
		} else {
			refund.GatewayRefundRef = refundRef
			refund.Status = domain.RefundStatusProcessed
		}
	}

	saved, err := s.refunds.Insert(ctx, refund)
	if err != nil {
		return domain.Refund{}, err
	}

	logStatus := domain.LogStatusSuccess
	if gatewayErr != nil {
		logStatus = domain.LogStatusFailed
	}
	logEntry := domain.BillingLog{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		EventType:      domain.EventRefundProcessed,
		Amount:         &saved.Amount,
		Currency:       saved.Currency,
		Status:         logStatus,
		Metadata: map[string]string{
			"refund_id":    saved.ID.String(),
			"refund_type":  string(saved.RefundType),
			"processed_by": saved.ProcessedBy,
		},
	}
	if gatewayErr != nil {
		logEntry.Metadata["error"] = gatewayErr.Error()
	}
	if saved.GatewayRefundRef != "" {
		logEntry.Metadata["gateway_refund_ref"] = saved.GatewayRefundRef
	}
	if err := s.appendLog(ctx, logEntry); err != nil {
		return domain.Refund{}, err
	}

	if gatewayErr != nil {
		return saved, gatewayErr
	}

	amountFloat, _ := saved.Amount.Float64()
	s.metrics.IncRefundProcessed(string(saved.RefundType), saved.Currency)
	s.metrics.ObserveRefundAmount(amountFloat, saved.Currency)

	s.log.Infow("Refund processed", "refund_id", saved.ID, "subscription_id", subscription.ID, "amount", saved.Amount, "status", saved.Status)
	return saved, nil
}

// GetRefunds возвращает возвраты подписки от новых к старым,
// включая неудачные попытки
func (s *Service) GetRefunds(ctx context.Context, subscriptionID uuid.UUID) ([]domain.Refund, error) {
	subscription, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return s.refunds.ListBySubscription(ctx, subscription.ID)
}
