package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// ScheduledChangeRepository интерфейс репозитория отложенных изменений.
// На подписку существует не более одной pending записи каждого вида;
// повторная постановка перезаписывает предыдущую (last-write-wins).
type ScheduledChangeRepository interface {
	UpsertPending(ctx context.Context, change domain.ScheduledChange) (domain.ScheduledChange, error)
	GetPending(ctx context.Context, subscriptionID uuid.UUID, kind domain.ScheduledChangeKind) (domain.ScheduledChange, error)
	// CancelPending переводит pending запись в cancelled; отсутствие записи не ошибка
	CancelPending(ctx context.Context, subscriptionID uuid.UUID, kind domain.ScheduledChangeKind) error
}

type scheduleKey struct {
	subscriptionID uuid.UUID
	kind           domain.ScheduledChangeKind
}

// InMemoryScheduledChangeRepository реализация репозитория отложенных изменений в памяти
type InMemoryScheduledChangeRepository struct {
	pending map[scheduleKey]domain.ScheduledChange
	mutex   sync.RWMutex
	log     *logger.Logger
}

// NewInMemoryScheduledChangeRepository создает новый репозиторий отложенных изменений в памяти
func NewInMemoryScheduledChangeRepository(log *logger.Logger) *InMemoryScheduledChangeRepository {
	return &InMemoryScheduledChangeRepository{
		pending: make(map[scheduleKey]domain.ScheduledChange),
		log:     log,
	}
}

// UpsertPending создает или перезаписывает pending запись
func (r *InMemoryScheduledChangeRepository) UpsertPending(ctx context.Context, change domain.ScheduledChange) (domain.ScheduledChange, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	key := scheduleKey{subscriptionID: change.SubscriptionID, kind: change.Kind}

	if existing, exists := r.pending[key]; exists {
		change.ID = existing.ID
		change.CreatedAt = existing.CreatedAt
	} else {
		change.ID = uuid.New()
		change.CreatedAt = now
	}
	change.Status = domain.ScheduledChangeStatusPending
	change.UpdatedAt = now

	r.pending[key] = change
	return change, nil
}

// GetPending возвращает pending запись подписки данного вида
func (r *InMemoryScheduledChangeRepository) GetPending(ctx context.Context, subscriptionID uuid.UUID, kind domain.ScheduledChangeKind) (domain.ScheduledChange, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	change, exists := r.pending[scheduleKey{subscriptionID: subscriptionID, kind: kind}]
	if !exists {
		return domain.ScheduledChange{}, ErrNotFound
	}
	return change, nil
}

// CancelPending отменяет pending запись
func (r *InMemoryScheduledChangeRepository) CancelPending(ctx context.Context, subscriptionID uuid.UUID, kind domain.ScheduledChangeKind) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.pending, scheduleKey{subscriptionID: subscriptionID, kind: kind})
	return nil
}

// PostgresScheduledChangeRepository реализация репозитория отложенных изменений в Postgres
type PostgresScheduledChangeRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresScheduledChangeRepository создает новый репозиторий отложенных изменений в Postgres
func NewPostgresScheduledChangeRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresScheduledChangeRepository {
	return &PostgresScheduledChangeRepository{pool: pool, log: log}
}

// UpsertPending создает или перезаписывает pending запись.
// Частичный уникальный индекс по (subscription_id, kind) WHERE status = 'pending'
// гарантирует единственность на уровне схемы.
func (r *PostgresScheduledChangeRepository) UpsertPending(ctx context.Context, change domain.ScheduledChange) (domain.ScheduledChange, error) {
	query := `
		INSERT INTO scheduled_changes (
			id, subscription_id, kind, status, target_plan_id,
			effective_at, prorated, reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, 'pending', $4, $5, $6, $7, $8, $8
		)
		ON CONFLICT (subscription_id, kind) WHERE status = 'pending' DO UPDATE SET
			target_plan_id = EXCLUDED.target_plan_id,
			effective_at = EXCLUDED.effective_at,
			prorated = EXCLUDED.prorated,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`

	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	change.Status = domain.ScheduledChangeStatusPending

	err := queryerFrom(ctx, r.pool).QueryRow(
		ctx,
		query,
		change.ID,
		change.SubscriptionID,
		change.Kind,
		change.TargetPlanID,
		change.EffectiveAt,
		change.Prorated,
		change.Reason,
		time.Now(),
	).Scan(&change.ID, &change.CreatedAt, &change.UpdatedAt)

	if err != nil {
		return domain.ScheduledChange{}, fmt.Errorf("failed to upsert scheduled change: %w", err)
	}
	return change, nil
}

// GetPending возвращает pending запись подписки данного вида
func (r *PostgresScheduledChangeRepository) GetPending(ctx context.Context, subscriptionID uuid.UUID, kind domain.ScheduledChangeKind) (domain.ScheduledChange, error) {
	query := `
		SELECT
			id, subscription_id, kind, status, target_plan_id,
			effective_at, prorated, reason, created_at, updated_at
		FROM scheduled_changes
		WHERE subscription_id = $1 AND kind = $2 AND status = 'pending'
	`

	var change domain.ScheduledChange
	err := queryerFrom(ctx, r.pool).QueryRow(ctx, query, subscriptionID, kind).Scan(
		&change.ID,
		&change.SubscriptionID,
		&change.Kind,
		&change.Status,
		&change.TargetPlanID,
		&change.EffectiveAt,
		&change.Prorated,
		&change.Reason,
		&change.CreatedAt,
		&change.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ScheduledChange{}, ErrNotFound
		}
		return domain.ScheduledChange{}, fmt.Errorf("failed to get scheduled change: %w", err)
	}
	return change, nil
}

// CancelPending переводит pending запись в cancelled
func (r *PostgresScheduledChangeRepository) CancelPending(ctx context.Context, subscriptionID uuid.UUID, kind domain.ScheduledChangeKind) error {
	query := `
		UPDATE scheduled_changes
		SET status = 'cancelled', updated_at = $1
		WHERE subscription_id = $2 AND kind = $3 AND status = 'pending'
	`

	_, err := queryerFrom(ctx, r.pool).Exec(ctx, query, time.Now(), subscriptionID, kind)
	if err != nil {
		return fmt.Errorf("failed to cancel scheduled change: %w", err)
	}
	return nil
}
