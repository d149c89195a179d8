package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// CreditRepository интерфейс репозитория кредитов
type CreditRepository interface {
	Insert(ctx context.Context, credit domain.BillingCredit) (domain.BillingCredit, error)
	// ListEligible возвращает активные, непросроченные, непримененные кредиты
	// подписки в порядке создания (FIFO)
	ListEligible(ctx context.Context, subscriptionID uuid.UUID, now time.Time) ([]domain.BillingCredit, error)
	// MarkApplied помечает кредит примененным; повторная пометка — ошибка
	MarkApplied(ctx context.Context, creditID uuid.UUID, appliedAt time.Time) error
}

// InMemoryCreditRepository реализация репозитория кредитов в памяти
type InMemoryCreditRepository struct {
	credits map[uuid.UUID]domain.BillingCredit
	mutex   sync.RWMutex
	log     *logger.Logger
}

// NewInMemoryCreditRepository создает новый репозиторий кредитов в памяти
func NewInMemoryCreditRepository(log *logger.Logger) *InMemoryCreditRepository {
	return &InMemoryCreditRepository{
		credits: make(map[uuid.UUID]domain.BillingCredit),
		log:     log,
	}
}

// Insert сохраняет новый кредит
func (r *InMemoryCreditRepository) Insert(ctx context.Context, credit domain.BillingCredit) (domain.BillingCredit, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if credit.ID == uuid.Nil {
		credit.ID = uuid.New()
	}
	if credit.CreatedAt.IsZero() {
		credit.CreatedAt = time.Now()
	}
	r.credits[credit.ID] = credit
	return credit, nil
}

// ListEligible возвращает доступные кредиты подписки в порядке FIFO
func (r *InMemoryCreditRepository) ListEligible(ctx context.Context, subscriptionID uuid.UUID, now time.Time) ([]domain.BillingCredit, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var eligible []domain.BillingCredit
	for _, credit := range r.credits {
		if credit.SubscriptionID == subscriptionID && credit.IsEligible(now) {
			eligible = append(eligible, credit)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	return eligible, nil
}

// MarkApplied помечает кредит примененным
func (r *InMemoryCreditRepository) MarkApplied(ctx context.Context, creditID uuid.UUID, appliedAt time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	credit, exists := r.credits[creditID]
	if !exists {
		return ErrNotFound
	}
	if credit.AppliedAt != nil {
		return ErrInvalidData
	}

	credit.AppliedAt = &appliedAt
	r.credits[creditID] = credit
	return nil
}

// PostgresCreditRepository реализация репозитория кредитов в Postgres
type PostgresCreditRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresCreditRepository создает новый репозиторий кредитов в Postgres
func NewPostgresCreditRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresCreditRepository {
	return &PostgresCreditRepository{pool: pool, log: log}
}

// Insert сохраняет новый кредит в базе данных
func (r *PostgresCreditRepository) Insert(ctx context.Context, credit domain.BillingCredit) (domain.BillingCredit, error) {
	query := `
		INSERT INTO billing_credits (
			id, subscription_id, user_id, amount, currency,
			reason, created_by, created_at, expires_at, applied_at, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, $10
		)
		RETURNING created_at
	`

	if credit.ID == uuid.Nil {
		credit.ID = uuid.New()
	}

	err := queryerFrom(ctx, r.pool).QueryRow(
		ctx,
		query,
		credit.ID,
		credit.SubscriptionID,
		credit.UserID,
		credit.Amount,
		credit.Currency,
		credit.Reason,
		credit.CreatedBy,
		time.Now(),
		credit.ExpiresAt,
		credit.IsActive,
	).Scan(&credit.CreatedAt)

	if err != nil {
		return domain.BillingCredit{}, fmt.Errorf("failed to insert billing credit: %w", err)
	}
	return credit, nil
}

// ListEligible возвращает доступные кредиты подписки в порядке FIFO
func (r *PostgresCreditRepository) ListEligible(ctx context.Context, subscriptionID uuid.UUID, now time.Time) ([]domain.BillingCredit, error) {
	query := `
		SELECT
			id, subscription_id, user_id, amount, currency,
			reason, created_by, created_at, expires_at, applied_at, is_active
		FROM billing_credits
		WHERE subscription_id = $1
		  AND is_active = TRUE
		  AND applied_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at ASC
		FOR UPDATE
	`

	rows, err := queryerFrom(ctx, r.pool).Query(ctx, query, subscriptionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible credits: %w", err)
	}
	defer rows.Close()

	var credits []domain.BillingCredit
	for rows.Next() {
		var credit domain.BillingCredit
		err := rows.Scan(
			&credit.ID,
			&credit.SubscriptionID,
			&credit.UserID,
			&credit.Amount,
			&credit.Currency,
			&credit.Reason,
			&credit.CreatedBy,
			&credit.CreatedAt,
			&credit.ExpiresAt,
			&credit.AppliedAt,
			&credit.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan billing credit: %w", err)
		}
		credits = append(credits, credit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating billing credits: %w", err)
	}
	return credits, nil
}

// MarkApplied помечает кредит примененным в базе данных
func (r *PostgresCreditRepository) MarkApplied(ctx context.Context, creditID uuid.UUID, appliedAt time.Time) error {
	query := `
		UPDATE billing_credits
		SET applied_at = $1
		WHERE id = $2 AND applied_at IS NULL
	`

	result, err := queryerFrom(ctx, r.pool).Exec(ctx, query, appliedAt, creditID)
	if err != nil {
		return fmt.Errorf("failed to mark credit applied: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Кредита нет либо он уже применен
		var exists bool
		checkErr := queryerFrom(ctx, r.pool).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM billing_credits WHERE id = $1)`, creditID,
		).Scan(&exists)
		if checkErr == nil && !exists {
			return ErrNotFound
		}
		return ErrInvalidData
	}
	return nil
}
