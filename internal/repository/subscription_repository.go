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

// SubscriptionRepository интерфейс репозитория подписок
type SubscriptionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error)
	Create(ctx context.Context, subscription domain.Subscription) (domain.Subscription, error)
	// Update сохраняет подписку с проверкой версии: если версия в базе
	// отличается от subscription.Version, возвращает ErrVersionConflict
	Update(ctx context.Context, subscription domain.Subscription) (domain.Subscription, error)
	// ResetUsageCounters обнуляет денормализованные счетчики подписки
	ResetUsageCounters(ctx context.Context, id uuid.UUID) error
}

// InMemorySubscriptionRepository реализация репозитория подписок в памяти
type InMemorySubscriptionRepository struct {
	subscriptions map[uuid.UUID]domain.Subscription
	mutex         sync.RWMutex
	log           *logger.Logger
}

// NewInMemorySubscriptionRepository создает новый репозиторий подписок в памяти
func NewInMemorySubscriptionRepository(log *logger.Logger) *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subscriptions: make(map[uuid.UUID]domain.Subscription),
		log:           log,
	}
}

// GetByID возвращает подписку по ID
func (r *InMemorySubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	subscription, exists := r.subscriptions[id]
	if !exists {
		return domain.Subscription{}, ErrNotFound
	}
	return subscription, nil
}

// GetByUserID возвращает подписку пользователя
func (r *InMemorySubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, subscription := range r.subscriptions {
		if subscription.UserID == userID {
			return subscription, nil
		}
	}
	return domain.Subscription{}, ErrNotFound
}

// Create создает новую подписку
func (r *InMemorySubscriptionRepository) Create(ctx context.Context, subscription domain.Subscription) (domain.Subscription, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if subscription.ID == uuid.Nil {
		subscription.ID = uuid.New()
	}
	now := time.Now()
	subscription.CreatedAt = now
	subscription.UpdatedAt = now
	subscription.Version = 1

	r.subscriptions[subscription.ID] = subscription
	return subscription, nil
}

// Update сохраняет подписку с проверкой версии
func (r *InMemorySubscriptionRepository) Update(ctx context.Context, subscription domain.Subscription) (domain.Subscription, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	current, exists := r.subscriptions[subscription.ID]
	if !exists {
		return domain.Subscription{}, ErrNotFound
	}
	if current.Version != subscription.Version {
		return domain.Subscription{}, ErrVersionConflict
	}

	subscription.Version++
	subscription.UpdatedAt = time.Now()
	r.subscriptions[subscription.ID] = subscription
	return subscription, nil
}

// ResetUsageCounters обнуляет денормализованные счетчики подписки
func (r *InMemorySubscriptionRepository) ResetUsageCounters(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	subscription, exists := r.subscriptions[id]
	if !exists {
		return ErrNotFound
	}

	subscription.InvoicesThisMonth = 0
	subscription.StorageUsed = 0
	subscription.Version++
	subscription.UpdatedAt = time.Now()
	r.subscriptions[id] = subscription
	return nil
}

// PostgresSubscriptionRepository реализация репозитория подписок в Postgres
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresSubscriptionRepository создает новый репозиторий подписок в Postgres
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool, log: log}
}

const subscriptionColumns = `
	id, user_id, plan_id, status,
	current_period_start, current_period_end, cancel_at_period_end,
	gateway_customer_ref, gateway_subscription_ref, payment_method_ref,
	invoices_this_month, storage_used, version, created_at, updated_at
`

// scanSubscription читает подписку из строки результата
func scanSubscription(row pgx.Row) (domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.PlanID,
		&s.Status,
		&s.CurrentPeriodStart,
		&s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd,
		&s.GatewayCustomerRef,
		&s.GatewaySubRef,
		&s.PaymentMethodRef,
		&s.InvoicesThisMonth,
		&s.StorageUsed,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return s, nil
}

// GetByID возвращает подписку по ID из базы данных
func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return scanSubscription(queryerFrom(ctx, r.pool).QueryRow(ctx, query, id))
}

// GetByUserID возвращает подписку пользователя из базы данных
func (r *PostgresSubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`
	return scanSubscription(queryerFrom(ctx, r.pool).QueryRow(ctx, query, userID))
}

// Create создает новую подписку в базе данных
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, subscription domain.Subscription) (domain.Subscription, error) {
	query := `
		INSERT INTO subscriptions (
			id, user_id, plan_id, status,
			current_period_start, current_period_end, cancel_at_period_end,
			gateway_customer_ref, gateway_subscription_ref, payment_method_ref,
			invoices_this_month, storage_used, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $13
		)
		RETURNING version, created_at, updated_at
	`

	if subscription.ID == uuid.Nil {
		subscription.ID = uuid.New()
	}

	err := queryerFrom(ctx, r.pool).QueryRow(
		ctx,
		query,
		subscription.ID,
		subscription.UserID,
		subscription.PlanID,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CancelAtPeriodEnd,
		subscription.GatewayCustomerRef,
		subscription.GatewaySubRef,
		subscription.PaymentMethodRef,
		subscription.InvoicesThisMonth,
		subscription.StorageUsed,
		time.Now(),
	).Scan(&subscription.Version, &subscription.CreatedAt, &subscription.UpdatedAt)

	if err != nil {
		return domain.Subscription{}, fmt.Errorf("failed to create subscription: %w", err)
	}
	return subscription, nil
}

// Update сохраняет подписку с проверкой версии
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, subscription domain.Subscription) (domain.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET
			plan_id = $1,
			status = $2,
			current_period_start = $3,
			current_period_end = $4,
			cancel_at_period_end = $5,
			gateway_customer_ref = $6,
			gateway_subscription_ref = $7,
			payment_method_ref = $8,
			invoices_this_month = $9,
			storage_used = $10,
			version = version + 1,
			updated_at = $11
		WHERE id = $12 AND version = $13
		RETURNING version, updated_at
	`

	err := queryerFrom(ctx, r.pool).QueryRow(
		ctx,
		query,
		subscription.PlanID,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CancelAtPeriodEnd,
		subscription.GatewayCustomerRef,
		subscription.GatewaySubRef,
		subscription.PaymentMethodRef,
		subscription.InvoicesThisMonth,
		subscription.StorageUsed,
		time.Now(),
		subscription.ID,
		subscription.Version,
	).Scan(&subscription.Version, &subscription.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Либо подписки нет, либо версия устарела
			var exists bool
			checkErr := queryerFrom(ctx, r.pool).QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, subscription.ID,
			).Scan(&exists)
			if checkErr == nil && !exists {
				return domain.Subscription{}, ErrNotFound
			}
			return domain.Subscription{}, ErrVersionConflict
		}
		return domain.Subscription{}, fmt.Errorf("failed to update subscription: %w", err)
	}
	return subscription, nil
}

// ResetUsageCounters обнуляет денормализованные счетчики подписки
func (r *PostgresSubscriptionRepository) ResetUsageCounters(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE subscriptions
		SET invoices_this_month = 0, storage_used = 0, version = version + 1, updated_at = $1
		WHERE id = $2
	`

	result, err := queryerFrom(ctx, r.pool).Exec(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to reset usage counters: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
