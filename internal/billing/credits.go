package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// AddCreditInput запрос на начисление кредита
type AddCreditInput struct {
	SubscriptionID uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	Reason         string
	CreatedBy      string
	ExpiresAt      *time.Time
}

// AddCredit начисляет предоплаченный кредит подписке
func (s *Service) AddCredit(ctx context.Context, input AddCreditInput) (domain.BillingCredit, error) {
	s.log.Debugw("Adding credit", "subscription_id", input.SubscriptionID, "amount", input.Amount)

	if !input.Amount.IsPositive() {
		return domain.BillingCredit{}, domain.NewValidationError("amount", "credit amount must be positive")
	}
	if input.Reason == "" {
		return domain.BillingCredit{}, domain.NewValidationError("reason", "reason is required")
	}

	subscription, err := s.loadSubscription(ctx, input.SubscriptionID)
	if err != nil {
		return domain.BillingCredit{}, err
	}

	amount := domain.RoundHalfUp(input.Amount)
	credit, err := s.credits.Insert(ctx, domain.BillingCredit{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		Amount:         amount,
		Currency:       input.Currency,
		Reason:         input.Reason,
		CreatedBy:      input.CreatedBy,
		ExpiresAt:      input.ExpiresAt,
		IsActive:       true,
	})
	if err != nil {
		return domain.BillingCredit{}, err
	}

	err = s.appendLog(ctx, domain.BillingLog{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		EventType:      domain.EventCreditAdded,
		Amount:         &amount,
		Currency:       input.Currency,
		Status:         domain.LogStatusSuccess,
		Metadata: map[string]string{
			"credit_id":  credit.ID.String(),
			"reason":     input.Reason,
			"created_by": input.CreatedBy,
		},
	})
	if err != nil {
		return domain.BillingCredit{}, err
	}

	s.metrics.IncCreditAdded(input.Currency)
	s.log.Infow("Credit added", "credit_id", credit.ID, "subscription_id", subscription.ID, "amount", amount)
	return credit, nil
}

// ApplyCreditsResult результат применения кредитов
type ApplyCreditsResult struct {
	TotalApplied decimal.Decimal            `json:"total_applied"`
	Applications []domain.CreditApplication `json:"applications"`
}

// ApplyCredits гасит amountDue доступными кредитами подписки в порядке
// FIFO. Каждый затронутый кредит помечается примененным целиком, даже
// если для покрытия остатка понадобилась только часть его суммы —
// неиспользованный остаток сгорает. Возвращаемая сумма не превышает
// ни amountDue, ни сумму доступных кредитов.
func (s *Service) ApplyCredits(ctx context.Context, subscriptionID uuid.UUID, amountDue decimal.Decimal) (ApplyCreditsResult, error) {
	s.log.Debugw("Applying credits", "subscription_id", subscriptionID, "amount_due", amountDue)

	if !amountDue.IsPositive() {
		return ApplyCreditsResult{}, domain.NewValidationError("amount_due", "amount due must be positive")
	}

	subscription, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return ApplyCreditsResult{}, err
	}

	if !s.locks.TryAcquire(subscription.ID) {
		return ApplyCreditsResult{}, domain.ErrConcurrencyConflict
	}
	defer s.locks.Release(subscription.ID)

	result := ApplyCreditsResult{TotalApplied: decimal.Zero}
	var committed []domain.BillingLog

	// Выбор, пометка и журналирование кредитов — одна локальная транзакция.
	// События публикуются после коммита: откат не должен оставлять
	// в Kafka применения, которых не было.
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		now := time.Now()
		eligible, err := s.credits.ListEligible(txCtx, subscription.ID, now)
		if err != nil {
			return err
		}

		for _, credit := range eligible {
			remaining := amountDue.Sub(result.TotalApplied)
			if !remaining.IsPositive() {
				break
			}

			applied := decimal.Min(credit.Amount, remaining)
			if err := s.credits.MarkApplied(txCtx, credit.ID, now); err != nil {
				return err
			}

			appliedRounded := domain.RoundHalfUp(applied)
			saved, err := s.logs.Append(txCtx, domain.BillingLog{
				SubscriptionID: subscription.ID,
				UserID:         subscription.UserID,
				EventType:      domain.EventCreditApplied,
				Amount:         &appliedRounded,
				Currency:       credit.Currency,
				Status:         domain.LogStatusSuccess,
				Metadata: map[string]string{
					"credit_id":     credit.ID.String(),
					"credit_amount": credit.Amount.String(),
				},
			})
			if err != nil {
				return err
			}
			committed = append(committed, saved)

			result.TotalApplied = result.TotalApplied.Add(applied)
			result.Applications = append(result.Applications, domain.CreditApplication{
				CreditID: credit.ID,
				Applied:  applied,
			})
			s.metrics.IncCreditApplied(credit.Currency)
		}
		return nil
	})
	if err != nil {
		return ApplyCreditsResult{}, err
	}

	for _, entry := range committed {
		s.publishEvent(ctx, entry)
	}

	s.log.Infow("Credits applied", "subscription_id", subscription.ID, "total_applied", result.TotalApplied, "credits_touched", len(result.Applications))
	return result, nil
}
