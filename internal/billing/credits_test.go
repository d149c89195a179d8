package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

func TestAddCredit(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	credit, err := f.service.AddCredit(context.Background(), AddCreditInput{
		SubscriptionID: subscription.ID,
		Amount:         decimal.RequireFromString("15.005"),
		Currency:       "CHF",
		Reason:         "goodwill",
		CreatedBy:      "support",
	})
	require.NoError(t, err)

	// Сумма округлена полуокруглением вверх при сохранении
	assert.Equal(t, "15.01", credit.Amount.String())
	assert.True(t, credit.IsActive)
	assert.Nil(t, credit.AppliedAt)

	entries, err := f.logs.List(context.Background(), subscription.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventCreditAdded, entries[0].EventType)
}

func TestAddCreditValidation(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	_, err := f.service.AddCredit(context.Background(), AddCreditInput{
		SubscriptionID: subscription.ID,
		Amount:         decimal.Zero,
		Reason:         "goodwill",
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.service.AddCredit(context.Background(), AddCreditInput{
		SubscriptionID: subscription.ID,
		Amount:         decimal.NewFromInt(5),
	})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestApplyCreditsFIFOWithForfeiture(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	// Два кредита: 15 (старший) и 10
	older, err := f.credits.Insert(context.Background(), domain.BillingCredit{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		Amount:         decimal.NewFromInt(15),
		Currency:       "CHF",
		IsActive:       true,
		CreatedAt:      time.Now().Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	newer, err := f.credits.Insert(context.Background(), domain.BillingCredit{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		Amount:         decimal.NewFromInt(10),
		Currency:       "CHF",
		IsActive:       true,
		CreatedAt:      time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	result, err := f.service.ApplyCredits(context.Background(), subscription.ID, decimal.NewFromInt(20))
	require.NoError(t, err)

	// 15 целиком, затем 5 из 10; остаток второго кредита сгорает
	assert.Equal(t, "20", result.TotalApplied.String())
	require.Len(t, result.Applications, 2)
	assert.Equal(t, older.ID, result.Applications[0].CreditID)
	assert.Equal(t, "15", result.Applications[0].Applied.String())
	assert.Equal(t, newer.ID, result.Applications[1].CreditID)
	assert.Equal(t, "5", result.Applications[1].Applied.String())

	// Оба кредита помечены примененными: повторное применение невозможно
	eligible, err := f.credits.ListEligible(context.Background(), subscription.ID, time.Now())
	require.NoError(t, err)
	assert.Empty(t, eligible)

	entries, err := f.logs.List(context.Background(), subscription.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, domain.EventCreditApplied, entry.EventType)
	}
}

func TestApplyCreditsCappedByAvailable(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	_, err := f.credits.Insert(context.Background(), domain.BillingCredit{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		Amount:         decimal.NewFromInt(7),
		Currency:       "CHF",
		IsActive:       true,
	})
	require.NoError(t, err)

	result, err := f.service.ApplyCredits(context.Background(), subscription.ID, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, "7", result.TotalApplied.String())
}

func TestApplyCreditsSkipsExpiredAndApplied(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	expired := time.Now().Add(-time.Minute)
	_, err := f.credits.Insert(context.Background(), domain.BillingCredit{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		Amount:         decimal.NewFromInt(30),
		Currency:       "CHF",
		IsActive:       true,
		ExpiresAt:      &expired,
	})
	require.NoError(t, err)

	appliedAt := time.Now().Add(-time.Hour)
	_, err = f.credits.Insert(context.Background(), domain.BillingCredit{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		Amount:         decimal.NewFromInt(30),
		Currency:       "CHF",
		IsActive:       true,
		AppliedAt:      &appliedAt,
	})
	require.NoError(t, err)

	result, err := f.service.ApplyCredits(context.Background(), subscription.ID, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, result.TotalApplied.IsZero())
	assert.Empty(t, result.Applications)
}

func TestApplyCreditsValidation(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	_, err := f.service.ApplyCredits(context.Background(), subscription.ID, decimal.Zero)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestApplyCreditsPublishesOnlyAfterCommit(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	_, err := f.credits.Insert(context.Background(), domain.BillingCredit{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		Amount:         decimal.NewFromInt(15),
		Currency:       "CHF",
		IsActive:       true,
		CreatedAt:      time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	// Транзакция падает на коммите: ни одно событие не должно уйти
	producer := &fakeProducer{}
	f.rebuildService(producer, commitFailTxManager{err: errors.New("tx aborted")})

	_, err = f.service.ApplyCredits(context.Background(), subscription.ID, decimal.NewFromInt(10))
	require.Error(t, err)
	assert.Empty(t, producer.published())

	// Успешный коммит публикует по событию на каждое применение.
	// In-memory репозиторий не умеет откатывать пометку, поэтому
	// для успешной попытки заводится свежий кредит.
	_, err = f.credits.Insert(context.Background(), domain.BillingCredit{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		Amount:         decimal.NewFromInt(15),
		Currency:       "CHF",
		IsActive:       true,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
	f.rebuildService(producer, repository.NoopTxManager{})

	result, err := f.service.ApplyCredits(context.Background(), subscription.ID, decimal.NewFromInt(10))
	require.NoError(t, err)
	require.Len(t, result.Applications, 1)

	events := producer.published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCreditApplied, events[0].EventType)
}
