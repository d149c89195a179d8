package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// PlanRepository интерфейс реестра тарифных планов.
// Планы — неизменяемые справочные данные, ядро их только читает.
type PlanRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error)
	GetAll(ctx context.Context) ([]domain.Plan, error)
}

// InMemoryPlanRepository реализация реестра планов в памяти
type InMemoryPlanRepository struct {
	plans map[uuid.UUID]domain.Plan
	mutex sync.RWMutex
	log   *logger.Logger
}

// NewInMemoryPlanRepository создает новый реестр планов в памяти
func NewInMemoryPlanRepository(log *logger.Logger) *InMemoryPlanRepository {
	return &InMemoryPlanRepository{
		plans: make(map[uuid.UUID]domain.Plan),
		log:   log,
	}
}

// Seed наполняет реестр планами (для тестов и dev-режима)
func (r *InMemoryPlanRepository) Seed(plans ...domain.Plan) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, plan := range plans {
		r.plans[plan.ID] = plan
	}
}

// GetByID возвращает план по ID
func (r *InMemoryPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	plan, exists := r.plans[id]
	if !exists {
		return domain.Plan{}, ErrNotFound
	}
	return plan, nil
}

// GetAll возвращает все планы
func (r *InMemoryPlanRepository) GetAll(ctx context.Context) ([]domain.Plan, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	plans := make([]domain.Plan, 0, len(r.plans))
	for _, plan := range r.plans {
		plans = append(plans, plan)
	}
	return plans, nil
}

// PostgresPlanRepository реализация реестра планов в Postgres
type PostgresPlanRepository struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresPlanRepository создает новый реестр планов в Postgres
func NewPostgresPlanRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresPlanRepository {
	return &PostgresPlanRepository{pool: pool, log: log}
}

// GetByID возвращает план по ID из базы данных
func (r *PostgresPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error) {
	query := `
		SELECT id, name, price, currency, gateway_price_ref, created_at
		FROM plans
		WHERE id = $1
	`

	var plan domain.Plan
	err := queryerFrom(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&plan.ID,
		&plan.Name,
		&plan.Price,
		&plan.Currency,
		&plan.GatewayPriceRef,
		&plan.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Plan{}, ErrNotFound
		}
		return domain.Plan{}, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// GetAll возвращает все планы из базы данных
func (r *PostgresPlanRepository) GetAll(ctx context.Context) ([]domain.Plan, error) {
	query := `
		SELECT id, name, price, currency, gateway_price_ref, created_at
		FROM plans
		ORDER BY price ASC
	`

	rows, err := queryerFrom(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		var plan domain.Plan
		err := rows.Scan(
			&plan.ID,
			&plan.Name,
			&plan.Price,
			&plan.Currency,
			&plan.GatewayPriceRef,
			&plan.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}
	return plans, nil
}
