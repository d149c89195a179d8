package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.ERROR)
}

func TestSubscriptionUpdateVersionConflict(t *testing.T) {
	repo := NewInMemorySubscriptionRepository(testLogger())
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.Subscription{
		UserID: uuid.New(),
		PlanID: uuid.New(),
		Status: domain.SubscriptionStatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	// Первый писатель выигрывает, версия растет
	first := created
	first.Status = domain.SubscriptionStatusPaused
	updated, err := repo.Update(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	// Второй писатель со старой версией проигрывает
	stale := created
	stale.Status = domain.SubscriptionStatusCancelled
	_, err = repo.Update(ctx, stale)
	require.ErrorIs(t, err, ErrVersionConflict)

	// Состояние осталось от первого писателя
	current, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPaused, current.Status)
}

func TestSubscriptionResetUsageCounters(t *testing.T) {
	repo := NewInMemorySubscriptionRepository(testLogger())
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.Subscription{
		UserID:            uuid.New(),
		PlanID:            uuid.New(),
		Status:            domain.SubscriptionStatusActive,
		InvoicesThisMonth: 12,
		StorageUsed:       4096,
	})
	require.NoError(t, err)

	require.NoError(t, repo.ResetUsageCounters(ctx, created.ID))

	current, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, current.InvoicesThisMonth)
	assert.Equal(t, int64(0), current.StorageUsed)
}

func TestScheduledChangeUpsertLastWriteWins(t *testing.T) {
	repo := NewInMemoryScheduledChangeRepository(testLogger())
	ctx := context.Background()
	subscriptionID := uuid.New()

	firstPlan := uuid.New()
	first, err := repo.UpsertPending(ctx, domain.ScheduledChange{
		SubscriptionID: subscriptionID,
		Kind:           domain.ScheduledChangeKindPlanChange,
		TargetPlanID:   &firstPlan,
		EffectiveAt:    time.Now().AddDate(0, 0, 5),
	})
	require.NoError(t, err)

	secondPlan := uuid.New()
	second, err := repo.UpsertPending(ctx, domain.ScheduledChange{
		SubscriptionID: subscriptionID,
		Kind:           domain.ScheduledChangeKindPlanChange,
		TargetPlanID:   &secondPlan,
		EffectiveAt:    time.Now().AddDate(0, 0, 9),
	})
	require.NoError(t, err)

	// Перезапись, а не вторая запись: ID сохраняется
	assert.Equal(t, first.ID, second.ID)

	pending, err := repo.GetPending(ctx, subscriptionID, domain.ScheduledChangeKindPlanChange)
	require.NoError(t, err)
	assert.Equal(t, secondPlan, *pending.TargetPlanID)

	// Разные виды не конфликтуют
	_, err = repo.UpsertPending(ctx, domain.ScheduledChange{
		SubscriptionID: subscriptionID,
		Kind:           domain.ScheduledChangeKindResume,
		EffectiveAt:    time.Now().AddDate(0, 0, 3),
	})
	require.NoError(t, err)
	_, err = repo.GetPending(ctx, subscriptionID, domain.ScheduledChangeKindPlanChange)
	require.NoError(t, err)
}

func TestScheduledChangeCancelPendingIsIdempotent(t *testing.T) {
	repo := NewInMemoryScheduledChangeRepository(testLogger())
	ctx := context.Background()
	subscriptionID := uuid.New()

	// Отмена без записи не ошибка
	require.NoError(t, repo.CancelPending(ctx, subscriptionID, domain.ScheduledChangeKindResume))

	_, err := repo.UpsertPending(ctx, domain.ScheduledChange{
		SubscriptionID: subscriptionID,
		Kind:           domain.ScheduledChangeKindResume,
		EffectiveAt:    time.Now().AddDate(0, 0, 3),
	})
	require.NoError(t, err)

	require.NoError(t, repo.CancelPending(ctx, subscriptionID, domain.ScheduledChangeKindResume))
	_, err = repo.GetPending(ctx, subscriptionID, domain.ScheduledChangeKindResume)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBillingLogListNewestFirst(t *testing.T) {
	repo := NewInMemoryBillingLogRepository(testLogger())
	ctx := context.Background()
	subscriptionID := uuid.New()

	events := []string{domain.EventCreditAdded, domain.EventCreditApplied, domain.EventRefundProcessed}
	for _, eventType := range events {
		_, err := repo.Append(ctx, domain.BillingLog{
			SubscriptionID: subscriptionID,
			UserID:         uuid.New(),
			EventType:      eventType,
			Status:         domain.LogStatusSuccess,
		})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	entries, err := repo.List(ctx, subscriptionID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.EventRefundProcessed, entries[0].EventType)
	assert.Equal(t, domain.EventCreditAdded, entries[2].EventType)
}

func TestBillingLogLastByEventType(t *testing.T) {
	repo := NewInMemoryBillingLogRepository(testLogger())
	ctx := context.Background()
	subscriptionID := uuid.New()

	_, err := repo.Append(ctx, domain.BillingLog{
		SubscriptionID: subscriptionID,
		UserID:         uuid.New(),
		EventType:      domain.EventPaymentSucceeded,
		Status:         domain.LogStatusFailed,
	})
	require.NoError(t, err)

	// Записи с другим статусом не подходят
	_, err = repo.LastByEventType(ctx, subscriptionID, domain.EventPaymentSucceeded, domain.LogStatusSuccess)
	require.ErrorIs(t, err, ErrNotFound)

	time.Sleep(time.Millisecond)
	amount := decimal.NewFromInt(20)
	_, err = repo.Append(ctx, domain.BillingLog{
		SubscriptionID: subscriptionID,
		UserID:         uuid.New(),
		EventType:      domain.EventPaymentSucceeded,
		Status:         domain.LogStatusSuccess,
		Amount:         &amount,
		Metadata:       map[string]string{"payment_ref": "pi_123"},
	})
	require.NoError(t, err)

	last, err := repo.LastByEventType(ctx, subscriptionID, domain.EventPaymentSucceeded, domain.LogStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", last.Metadata["payment_ref"])
}

func TestUsageIncrementAndReset(t *testing.T) {
	repo := NewInMemoryUsageRepository(testLogger())
	ctx := context.Background()
	subscriptionID := uuid.New()
	period := "2026-08"

	require.NoError(t, repo.Increment(ctx, subscriptionID, period, domain.ResourceInvoices, 3))
	require.NoError(t, repo.Increment(ctx, subscriptionID, period, domain.ResourceInvoices, 4))
	require.NoError(t, repo.Increment(ctx, subscriptionID, period, domain.ResourceStorage, 100))

	records, err := repo.GetForPeriod(ctx, subscriptionID, period)
	require.NoError(t, err)
	quantities := map[string]int64{}
	for _, record := range records {
		quantities[record.ResourceType] = record.Quantity
	}
	assert.Equal(t, int64(7), quantities[domain.ResourceInvoices])
	assert.Equal(t, int64(100), quantities[domain.ResourceStorage])

	// Сброс одного ресурса обнуляет только его
	require.NoError(t, repo.ResetPeriod(ctx, subscriptionID, period, domain.ResourceInvoices))
	records, err = repo.GetForPeriod(ctx, subscriptionID, period)
	require.NoError(t, err)
	quantities = map[string]int64{}
	for _, record := range records {
		quantities[record.ResourceType] = record.Quantity
	}
	assert.Equal(t, int64(0), quantities[domain.ResourceInvoices])
	assert.Equal(t, int64(100), quantities[domain.ResourceStorage])

	// Другой период не затронут
	require.NoError(t, repo.Increment(ctx, subscriptionID, "2026-09", domain.ResourceInvoices, 1))
	require.NoError(t, repo.ResetPeriod(ctx, subscriptionID, period, ""))
	other, err := repo.GetForPeriod(ctx, subscriptionID, "2026-09")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, int64(1), other[0].Quantity)
}
