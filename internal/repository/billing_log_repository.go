package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// BillingLogRepository интерфейс журнала биллинга.
// Журнал только дополняется; обновление и удаление записей не предусмотрено.
type BillingLogRepository interface {
	Append(ctx context.Context, entry domain.BillingLog) (domain.BillingLog, error)
	// List возвращает записи подписки от новых к старым
	List(ctx context.Context, subscriptionID uuid.UUID, limit, offset int) ([]domain.BillingLog, error)
	// LastByEventType возвращает последнюю запись данного типа и статуса.
	// Используется процессором возвратов для поиска последнего успешного платежа.
	LastByEventType(ctx context.Context, subscriptionID uuid.UUID, eventType, status string) (domain.BillingLog, error)
}

// InMemoryBillingLogRepository реализация журнала в памяти
type InMemoryBillingLogRepository struct {
	entries []domain.BillingLog
	mutex   sync.RWMutex
	log     *logger.Logger
}

// NewInMemoryBillingLogRepository создает новый журнал в памяти
func NewInMemoryBillingLogRepository(log *logger.Logger) *InMemoryBillingLogRepository {
	return &InMemoryBillingLogRepository{log: log}
}

// Append добавляет запись в журнал
func (r *InMemoryBillingLogRepository) Append(ctx context.Context, entry domain.BillingLog) (domain.BillingLog, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.entries = append(r.entries, entry)
	return entry, nil
}

// List возвращает записи подписки от новых к старым
func (r *InMemoryBillingLogRepository) List(ctx context.Context, subscriptionID uuid.UUID, limit, offset int) ([]domain.BillingLog, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var entries []domain.BillingLog
	for _, entry := range r.entries {
		if entry.SubscriptionID == subscriptionID {
			entries = append(entries, entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries, nil
}

// LastByEventType возвращает последнюю запись данного типа и статуса
func (r *InMemoryBillingLogRepository) LastByEventType(ctx context.Context, subscriptionID uuid.UUID, eventType, status string) (domain.BillingLog, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var found *domain.BillingLog
	for i := range r.entries {
		entry := r.entries[i]
		if entry.SubscriptionID != subscriptionID || entry.EventType != eventType || entry.Status != status {
			continue
		}
		if found == nil || entry.CreatedAt.After(found.CreatedAt) {
			found = &r.entries[i]
		}
	}
	if found == nil {
		return domain.BillingLog{}, ErrNotFound
	}
	return *found, nil
}

// CountBySubscription возвращает число записей подписки (для тестов)
func (r *InMemoryBillingLogRepository) CountBySubscription(subscriptionID uuid.UUID) int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	count := 0
	for _, entry := range r.entries {
		if entry.SubscriptionID == subscriptionID {
			count++
		}
	}
	return count
}

// PostgresBillingLogRepository реализация журнала в Postgres
type PostgresBillingLogRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresBillingLogRepository создает новый журнал в Postgres
func NewPostgresBillingLogRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresBillingLogRepository {
	return &PostgresBillingLogRepository{pool: pool, log: log}
}

// Append добавляет запись в журнал в базе данных
func (r *PostgresBillingLogRepository) Append(ctx context.Context, entry domain.BillingLog) (domain.BillingLog, error) {
	query := `
		INSERT INTO billing_logs (
			id, subscription_id, user_id, event_type,
			amount, currency, status, metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		RETURNING created_at
	`

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	metadataBytes := []byte("{}")
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return domain.BillingLog{}, fmt.Errorf("failed to marshal log metadata: %w", err)
		}
		metadataBytes = encoded
	}

	err := queryerFrom(ctx, r.pool).QueryRow(
		ctx,
		query,
		entry.ID,
		entry.SubscriptionID,
		entry.UserID,
		entry.EventType,
		entry.Amount,
		entry.Currency,
		entry.Status,
		metadataBytes,
		time.Now(),
	).Scan(&entry.CreatedAt)

	if err != nil {
		return domain.BillingLog{}, fmt.Errorf("failed to append billing log: %w", err)
	}
	return entry, nil
}

// scanBillingLog читает запись журнала из строки результата
func scanBillingLog(row pgx.Row) (domain.BillingLog, error) {
	var entry domain.BillingLog
	var metadataBytes []byte

	err := row.Scan(
		&entry.ID,
		&entry.SubscriptionID,
		&entry.UserID,
		&entry.EventType,
		&entry.Amount,
		&entry.Currency,
		&entry.Status,
		&metadataBytes,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BillingLog{}, ErrNotFound
		}
		return domain.BillingLog{}, fmt.Errorf("failed to scan billing log: %w", err)
	}

	if len(metadataBytes) > 0 {
		if err := json.Unmarshal(metadataBytes, &entry.Metadata); err != nil {
			return domain.BillingLog{}, fmt.Errorf("failed to unmarshal log metadata: %w", err)
		}
	}
	return entry, nil
}

const billingLogColumns = `
	id, subscription_id, user_id, event_type,
	amount, currency, status, metadata, created_at
`

// List возвращает записи подписки от новых к старым
func (r *PostgresBillingLogRepository) List(ctx context.Context, subscriptionID uuid.UUID, limit, offset int) ([]domain.BillingLog, error) {
	query := `
		SELECT ` + billingLogColumns + `
		FROM billing_logs
		WHERE subscription_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := queryerFrom(ctx, r.pool).Query(ctx, query, subscriptionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query billing logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.BillingLog
	for rows.Next() {
		entry, err := scanBillingLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating billing logs: %w", err)
	}
	return entries, nil
}

// LastByEventType возвращает последнюю запись данного типа и статуса
func (r *PostgresBillingLogRepository) LastByEventType(ctx context.Context, subscriptionID uuid.UUID, eventType, status string) (domain.BillingLog, error) {
	query := `
		SELECT ` + billingLogColumns + `
		FROM billing_logs
		WHERE subscription_id = $1 AND event_type = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanBillingLog(queryerFrom(ctx, r.pool).QueryRow(ctx, query, subscriptionID, eventType, status))
}
