package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

func TestRecordAndGetUsage(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	ctx := context.Background()
	require.NoError(t, f.service.RecordUsage(ctx, subscription.ID, domain.ResourceInvoices, 3))
	require.NoError(t, f.service.RecordUsage(ctx, subscription.ID, domain.ResourceInvoices, 2))
	require.NoError(t, f.service.RecordUsage(ctx, subscription.ID, domain.ResourceStorage, 1024))

	metrics, err := f.service.GetUsageMetrics(ctx, subscription.ID, "")
	require.NoError(t, err)

	assert.Equal(t, domain.PeriodOf(time.Now()), metrics.Period)
	assert.Equal(t, int64(5), metrics.Resources[domain.ResourceInvoices])
	assert.Equal(t, int64(1024), metrics.Resources[domain.ResourceStorage])
	assert.False(t, metrics.LastUpdated.IsZero())
}

func TestRecordUsageValidation(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	err := f.service.RecordUsage(context.Background(), subscription.ID, "", 1)
	require.ErrorIs(t, err, domain.ErrValidation)

	err = f.service.RecordUsage(context.Background(), subscription.ID, domain.ResourceInvoices, 0)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestResetUsageAll(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	ctx := context.Background()
	require.NoError(t, f.service.RecordUsage(ctx, subscription.ID, domain.ResourceInvoices, 7))
	require.NoError(t, f.service.RecordUsage(ctx, subscription.ID, domain.ResourceOCRScans, 40))

	require.NoError(t, f.service.ResetUsageLimits(ctx, subscription.ID, ""))

	metrics, err := f.service.GetUsageMetrics(ctx, subscription.ID, "")
	require.NoError(t, err)
	// Строки обнуляются, но не удаляются
	assert.Equal(t, int64(0), metrics.Resources[domain.ResourceInvoices])
	assert.Equal(t, int64(0), metrics.Resources[domain.ResourceOCRScans])

	entries, err := f.logs.List(ctx, subscription.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventUsageReset, entries[0].EventType)
	assert.Equal(t, "all", entries[0].Metadata["resource_type"])
}

func TestResetUsageSingleResource(t *testing.T) {
	f := newFixture()
	_, basic, _ := f.seedPlans()
	subscription := f.seedSubscription(basic.ID, 10)

	ctx := context.Background()
	require.NoError(t, f.service.RecordUsage(ctx, subscription.ID, domain.ResourceInvoices, 7))
	require.NoError(t, f.service.RecordUsage(ctx, subscription.ID, domain.ResourceStorage, 512))

	require.NoError(t, f.service.ResetUsageLimits(ctx, subscription.ID, domain.ResourceInvoices))

	metrics, err := f.service.GetUsageMetrics(ctx, subscription.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), metrics.Resources[domain.ResourceInvoices])
	assert.Equal(t, int64(512), metrics.Resources[domain.ResourceStorage])

	entries, err := f.logs.List(ctx, subscription.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ResourceInvoices, entries[0].Metadata["resource_type"])
}

func TestGetUsageMetricsUnknownSubscription(t *testing.T) {
	f := newFixture()
	f.seedPlans()

	_, err := f.service.GetUsageMetrics(context.Background(), uuid.New(), "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
