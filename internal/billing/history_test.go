package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

func TestGetSubscriptionDetails(t *testing.T) {
	f := newFixture()
	_, basic, pro := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	details, err := f.service.GetSubscriptionDetails(context.Background(), subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.ID, details.Subscription.ID)
	assert.Equal(t, "Basic", details.Plan.Name)
	assert.Nil(t, details.PendingChange)
	assert.Nil(t, details.PendingResume)

	_, err = f.service.ChangePlan(context.Background(), ChangePlanInput{
		UserID:        subscription.UserID,
		PlanID:        pro.ID,
		ScheduledDate: time.Now().AddDate(0, 0, 10),
	})
	require.NoError(t, err)

	details, err = f.service.GetSubscriptionDetails(context.Background(), subscription.ID)
	require.NoError(t, err)
	require.NotNil(t, details.PendingChange)
	assert.Equal(t, pro.ID, *details.PendingChange.TargetPlanID)
}

func TestGetBillingHistoryPaging(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := f.logs.Append(ctx, domain.BillingLog{
			SubscriptionID: subscription.ID,
			UserID:         subscription.UserID,
			EventType:      domain.EventCreditAdded,
			Status:         domain.LogStatusSuccess,
		})
		require.NoError(t, err)
	}

	page, err := f.service.GetBillingHistory(ctx, subscription.ID, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := f.service.GetBillingHistory(ctx, subscription.ID, 10, 4)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	// Нулевой лимит заменяется значением по умолчанию
	all, err := f.service.GetBillingHistory(ctx, subscription.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestUpdatePaymentMethod(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	updated, err := f.service.UpdatePaymentMethod(context.Background(), subscription.ID, "pm_new")
	require.NoError(t, err)
	assert.Equal(t, "pm_new", updated.PaymentMethodRef)

	entries, err := f.logs.List(context.Background(), subscription.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventPaymentMethodUpdated, entries[0].EventType)
}

func TestUpdatePaymentMethodValidation(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	_, err := f.service.UpdatePaymentMethod(context.Background(), subscription.ID, "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetPaymentMethodsMarksDefault(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	f.gateway.paymentMethods = []domain.PaymentMethod{
		{Ref: "pm_other", Brand: "visa", Last4: "4242"},
		{Ref: "pm_test", Brand: "mastercard", Last4: "4444"},
	}

	methods, err := f.service.GetPaymentMethods(context.Background(), subscription.ID)
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.False(t, methods[0].IsDefault)
	assert.True(t, methods[1].IsDefault)
}

func TestUpdatePaymentMethodGatewayFailureRecordsAttempt(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	f.gateway.paymentMethodErr = errors.New("stripe is down")

	_, err := f.service.UpdatePaymentMethod(context.Background(), subscription.ID, "pm_new")
	require.Error(t, err)

	// Платежный метод не изменился, попытка осталась в журнале
	current, err := f.subs.GetByID(context.Background(), subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, "pm_test", current.PaymentMethodRef)

	failed, err := f.logs.LastByEventType(context.Background(), subscription.ID, domain.EventPaymentMethodUpdated, domain.LogStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, "pm_new", failed.Metadata["payment_method_ref"])
	assert.Contains(t, failed.Metadata["error"], "stripe is down")
}
