package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// UsageRepository интерфейс репозитория счетчиков использования
type UsageRepository interface {
	GetForPeriod(ctx context.Context, subscriptionID uuid.UUID, period string) ([]domain.UsageRecord, error)
	// Increment увеличивает счетчик ресурса за период, создавая строку при необходимости
	Increment(ctx context.Context, subscriptionID uuid.UUID, period, resourceType string, delta int64) error
	// ResetPeriod обнуляет счетчики за период; resourceType == "" обнуляет все.
	// Строки не удаляются.
	ResetPeriod(ctx context.Context, subscriptionID uuid.UUID, period, resourceType string) error
}

type usageKey struct {
	subscriptionID uuid.UUID
	period         string
	resourceType   string
}

// InMemoryUsageRepository реализация репозитория счетчиков в памяти
type InMemoryUsageRepository struct {
	records map[usageKey]domain.UsageRecord
	mutex   sync.RWMutex
	log     *logger.Logger
}

// NewInMemoryUsageRepository создает новый репозиторий счетчиков в памяти
func NewInMemoryUsageRepository(log *logger.Logger) *InMemoryUsageRepository {
	return &InMemoryUsageRepository{
		records: make(map[usageKey]domain.UsageRecord),
		log:     log,
	}
}

// GetForPeriod возвращает счетчики подписки за период
func (r *InMemoryUsageRepository) GetForPeriod(ctx context.Context, subscriptionID uuid.UUID, period string) ([]domain.UsageRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var records []domain.UsageRecord
	for key, record := range r.records {
		if key.subscriptionID == subscriptionID && key.period == period {
			records = append(records, record)
		}
	}
	return records, nil
}

// Increment увеличивает счетчик ресурса за период
func (r *InMemoryUsageRepository) Increment(ctx context.Context, subscriptionID uuid.UUID, period, resourceType string, delta int64) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := usageKey{subscriptionID: subscriptionID, period: period, resourceType: resourceType}
	record, exists := r.records[key]
	if !exists {
		record = domain.UsageRecord{
			SubscriptionID: subscriptionID,
			Period:         period,
			ResourceType:   resourceType,
		}
	}
	record.Quantity += delta
	if record.Quantity < 0 {
		record.Quantity = 0
	}
	record.RecordedAt = time.Now()
	r.records[key] = record
	return nil
}

// ResetPeriod обнуляет счетчики за период
func (r *InMemoryUsageRepository) ResetPeriod(ctx context.Context, subscriptionID uuid.UUID, period, resourceType string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	for key, record := range r.records {
		if key.subscriptionID != subscriptionID || key.period != period {
			continue
		}
		if resourceType != "" && key.resourceType != resourceType {
			continue
		}
		record.Quantity = 0
		record.RecordedAt = now
		r.records[key] = record
	}
	return nil
}

// PostgresUsageRepository реализация репозитория счетчиков в Postgres
type PostgresUsageRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresUsageRepository создает новый репозиторий счетчиков в Postgres
func NewPostgresUsageRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresUsageRepository {
	return &PostgresUsageRepository{pool: pool, log: log}
}

// GetForPeriod возвращает счетчики подписки за период из базы данных
func (r *PostgresUsageRepository) GetForPeriod(ctx context.Context, subscriptionID uuid.UUID, period string) ([]domain.UsageRecord, error) {
	query := `
		SELECT subscription_id, period, resource_type, quantity, recorded_at
		FROM usage_records
		WHERE subscription_id = $1 AND period = $2
	`

	rows, err := queryerFrom(ctx, r.pool).Query(ctx, query, subscriptionID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	var records []domain.UsageRecord
	for rows.Next() {
		var record domain.UsageRecord
		err := rows.Scan(
			&record.SubscriptionID,
			&record.Period,
			&record.ResourceType,
			&record.Quantity,
			&record.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage records: %w", err)
	}
	return records, nil
}

// Increment увеличивает счетчик ресурса за период
func (r *PostgresUsageRepository) Increment(ctx context.Context, subscriptionID uuid.UUID, period, resourceType string, delta int64) error {
	query := `
		INSERT INTO usage_records (subscription_id, period, resource_type, quantity, recorded_at)
		VALUES ($1, $2, $3, GREATEST($4, 0), $5)
		ON CONFLICT (subscription_id, period, resource_type) DO UPDATE SET
			quantity = GREATEST(usage_records.quantity + $4, 0),
			recorded_at = $5
	`

	_, err := queryerFrom(ctx, r.pool).Exec(ctx, query, subscriptionID, period, resourceType, delta, time.Now())
	if err != nil {
		return fmt.Errorf("failed to increment usage record: %w", err)
	}
	return nil
}

// ResetPeriod обнуляет счетчики за период; строки не удаляются
func (r *PostgresUsageRepository) ResetPeriod(ctx context.Context, subscriptionID uuid.UUID, period, resourceType string) error {
	query := `
		UPDATE usage_records
		SET quantity = 0, recorded_at = $1
		WHERE subscription_id = $2 AND period = $3
	`
	args := []any{time.Now(), subscriptionID, period}

	if resourceType != "" {
		query += ` AND resource_type = $4`
		args = append(args, resourceType)
	}

	_, err := queryerFrom(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to reset usage records: %w", err)
	}
	return nil
}
