package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from    SubscriptionStatus
		to      SubscriptionStatus
		allowed bool
	}{
		{SubscriptionStatusActive, SubscriptionStatusPaused, true},
		{SubscriptionStatusActive, SubscriptionStatusCancelled, true},
		{SubscriptionStatusActive, SubscriptionStatusTrialing, false},
		{SubscriptionStatusTrialing, SubscriptionStatusActive, true},
		{SubscriptionStatusTrialing, SubscriptionStatusPaused, true},
		{SubscriptionStatusPaused, SubscriptionStatusActive, true},
		{SubscriptionStatusPaused, SubscriptionStatusPaused, false},
		{SubscriptionStatusCancelled, SubscriptionStatusActive, false},
		{SubscriptionStatusCancelled, SubscriptionStatusPaused, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestIsCollectable(t *testing.T) {
	assert.True(t, SubscriptionStatusActive.IsCollectable())
	assert.True(t, SubscriptionStatusTrialing.IsCollectable())
	assert.False(t, SubscriptionStatusPaused.IsCollectable())
	assert.False(t, SubscriptionStatusCancelled.IsCollectable())
}

func TestDaysRemainingInPeriod(t *testing.T) {
	now := time.Now()
	s := Subscription{CurrentPeriodEnd: now.Add(36 * time.Hour)}

	// Неполные сутки округляются вверх
	assert.Equal(t, 2, s.DaysRemainingInPeriod(now))

	s.CurrentPeriodEnd = now.Add(24 * time.Hour)
	assert.Equal(t, 1, s.DaysRemainingInPeriod(now))

	s.CurrentPeriodEnd = now.Add(time.Minute)
	assert.Equal(t, 1, s.DaysRemainingInPeriod(now))

	s.CurrentPeriodEnd = now
	assert.Equal(t, 0, s.DaysRemainingInPeriod(now))

	s.CurrentPeriodEnd = now.Add(-time.Hour)
	assert.Equal(t, 0, s.DaysRemainingInPeriod(now))
}
