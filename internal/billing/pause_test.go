package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/repository"
)

func TestPauseSubscription(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	paused, err := f.service.PauseSubscription(context.Background(), subscription.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.SubscriptionStatusPaused, paused.Status)
	assert.Equal(t, 1, f.gateway.pauseCalls)
	assert.Nil(t, f.gateway.lastResumeAt)

	entries, err := f.logs.List(context.Background(), subscription.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventSubscriptionPaused, entries[0].EventType)

	// Без resume_date автовозобновление не планируется
	_, err = f.schedule.GetPending(context.Background(), subscription.ID, domain.ScheduledChangeKindResume)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPauseSubscriptionWithResumeDate(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	resumeDate := time.Now().AddDate(0, 1, 0)
	paused, err := f.service.PauseSubscription(context.Background(), subscription.ID, &resumeDate)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPaused, paused.Status)

	pending, err := f.schedule.GetPending(context.Background(), subscription.ID, domain.ScheduledChangeKindResume)
	require.NoError(t, err)
	assert.WithinDuration(t, resumeDate, pending.EffectiveAt, time.Second)

	require.NotNil(t, f.gateway.lastResumeAt)
}

func TestPauseSubscriptionRejectsPastResumeDate(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	past := time.Now().Add(-time.Hour)
	_, err := f.service.PauseSubscription(context.Background(), subscription.ID, &past)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, f.gateway.pauseCalls)
}

func TestPauseAlreadyPaused(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	_, err := f.service.PauseSubscription(context.Background(), subscription.ID, nil)
	require.NoError(t, err)

	_, err = f.service.PauseSubscription(context.Background(), subscription.ID, nil)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestPauseTrialingSubscription(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	// trialing ведет себя как active
	subscription.Status = domain.SubscriptionStatusTrialing
	subscription, err := f.subs.Update(context.Background(), subscription)
	require.NoError(t, err)

	paused, err := f.service.PauseSubscription(context.Background(), subscription.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPaused, paused.Status)
}

func TestResumeSubscription(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	resumeDate := time.Now().AddDate(0, 1, 0)
	_, err := f.service.PauseSubscription(context.Background(), subscription.ID, &resumeDate)
	require.NoError(t, err)

	resumed, err := f.service.ResumeSubscription(context.Background(), subscription.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.SubscriptionStatusActive, resumed.Status)
	assert.Equal(t, 1, f.gateway.resumeCalls)

	// Досрочное возобновление снимает запланированное автовозобновление
	_, err = f.schedule.GetPending(context.Background(), subscription.ID, domain.ScheduledChangeKindResume)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestResumeActiveSubscription(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	_, err := f.service.ResumeSubscription(context.Background(), subscription.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 0, f.gateway.resumeCalls)
}

func TestCancelledIsTerminal(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	subscription.Status = domain.SubscriptionStatusCancelled
	_, err := f.subs.Update(context.Background(), subscription)
	require.NoError(t, err)

	_, err = f.service.PauseSubscription(context.Background(), subscription.ID, nil)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.service.ResumeSubscription(context.Background(), subscription.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestPauseSubscriptionGatewayFailureRecordsAttempt(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	f.gateway.pauseErr = errors.New("stripe is down")

	_, err := f.service.PauseSubscription(context.Background(), subscription.ID, nil)
	require.Error(t, err)

	// Статус не изменился, но попытка осталась в журнале для сверки
	current, err := f.subs.GetByID(context.Background(), subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, current.Status)

	failed, err := f.logs.LastByEventType(context.Background(), subscription.ID, domain.EventSubscriptionPaused, domain.LogStatusFailed)
	require.NoError(t, err)
	assert.Contains(t, failed.Metadata["error"], "stripe is down")
	assert.Equal(t, 1, f.logs.CountBySubscription(subscription.ID))
}

func TestResumeSubscriptionGatewayFailureRecordsAttempt(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	_, err := f.service.PauseSubscription(context.Background(), subscription.ID, nil)
	require.NoError(t, err)

	f.gateway.resumeErr = errors.New("stripe is down")

	_, err = f.service.ResumeSubscription(context.Background(), subscription.ID)
	require.Error(t, err)

	current, err := f.subs.GetByID(context.Background(), subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPaused, current.Status)

	failed, err := f.logs.LastByEventType(context.Background(), subscription.ID, domain.EventSubscriptionResumed, domain.LogStatusFailed)
	require.NoError(t, err)
	assert.Contains(t, failed.Metadata["error"], "stripe is down")
}
