package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// RefundRepository интерфейс репозитория возвратов.
// Возвраты только добавляются и никогда не изменяются.
type RefundRepository interface {
	Insert(ctx context.Context, refund domain.Refund) (domain.Refund, error)
	// SumBySubscription возвращает сумму всех возвратов подписки,
	// используется для контроля кумулятивного лимита возвратов
	SumBySubscription(ctx context.Context, subscriptionID uuid.UUID) (decimal.Decimal, error)
	// ListBySubscription возвращает все возвраты подписки от новых к старым
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]domain.Refund, error)
}

// InMemoryRefundRepository реализация репозитория возвратов в памяти
type InMemoryRefundRepository struct {
	refunds []domain.Refund
	mutex   sync.RWMutex
	log     *logger.Logger
}

// NewInMemoryRefundRepository создает новый репозиторий возвратов в памяти
func NewInMemoryRefundRepository(log *logger.Logger) *InMemoryRefundRepository {
	return &InMemoryRefundRepository{log: log}
}

// Insert сохраняет новую запись о возврате
func (r *InMemoryRefundRepository) Insert(ctx context.Context, refund domain.Refund) (domain.Refund, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now()
	}
	r.refunds = append(r.refunds, refund)
	return refund, nil
}

// SumBySubscription возвращает сумму всех возвратов подписки
func (r *InMemoryRefundRepository) SumBySubscription(ctx context.Context, subscriptionID uuid.UUID) (decimal.Decimal, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	total := decimal.Zero
	for _, refund := range r.refunds {
		if refund.SubscriptionID == subscriptionID && refund.Status != domain.RefundStatusFailed {
			total = total.Add(refund.Amount)
		}
	}
	return total, nil
}

// ListBySubscription возвращает все возвраты подписки от новых к старым
func (r *InMemoryRefundRepository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]domain.Refund, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []domain.Refund
	for _, refund := range r.refunds {
		if refund.SubscriptionID == subscriptionID {
			result = append(result, refund)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// PostgresRefundRepository реализация репозитория возвратов в Postgres
type PostgresRefundRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresRefundRepository создает новый репозиторий возвратов в Postgres
func NewPostgresRefundRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresRefundRepository {
	return &PostgresRefundRepository{pool: pool, log: log}
}

// Insert сохраняет новую запись о возврате в базе данных
func (r *PostgresRefundRepository) Insert(ctx context.Context, refund domain.Refund) (domain.Refund, error) {
	query := `
		INSERT INTO refunds (
			id, subscription_id, amount, currency, reason,
			refund_type, gateway_refund_ref, status, processed_by, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING created_at
	`

	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}

	err := queryerFrom(ctx, r.pool).QueryRow(
		ctx,
		query,
		refund.ID,
		refund.SubscriptionID,
		refund.Amount,
		refund.Currency,
		refund.Reason,
		refund.RefundType,
		refund.GatewayRefundRef,
		refund.Status,
		refund.ProcessedBy,
		time.Now(),
	).Scan(&refund.CreatedAt)

	if err != nil {
		return domain.Refund{}, fmt.Errorf("failed to insert refund: %w", err)
	}
	return refund, nil
}

// SumBySubscription возвращает сумму всех возвратов подписки
func (r *PostgresRefundRepository) SumBySubscription(ctx context.Context, subscriptionID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM refunds
		WHERE subscription_id = $1 AND status <> $2
	`

	var total decimal.Decimal
	err := queryerFrom(ctx, r.pool).QueryRow(ctx, query, subscriptionID, domain.RefundStatusFailed).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum refunds: %w", err)
	}
	return total, nil
}

// ListBySubscription возвращает все возвраты подписки
func (r *PostgresRefundRepository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]domain.Refund, error) {
	query := `
		SELECT
			id, subscription_id, amount, currency, reason,
			refund_type, gateway_refund_ref, status, processed_by, created_at
		FROM refunds
		WHERE subscription_id = $1
		ORDER BY created_at DESC
	`

	rows, err := queryerFrom(ctx, r.pool).Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query refunds: %w", err)
	}
	defer rows.Close()

	var refunds []domain.Refund
	for rows.Next() {
		var refund domain.Refund
		err := rows.Scan(
			&refund.ID,
			&refund.SubscriptionID,
			&refund.Amount,
			&refund.Currency,
			&refund.Reason,
			&refund.RefundType,
			&refund.GatewayRefundRef,
			&refund.Status,
			&refund.ProcessedBy,
			&refund.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		refunds = append(refunds, refund)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refunds: %w", err)
	}
	return refunds, nil
}
