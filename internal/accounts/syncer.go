package accounts

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// PostgresSyncer денормализует имя текущего плана в таблицу users.
// Вызывается из биллинга best-effort: сбой синхронизации не откатывает
// смену плана.
type PostgresSyncer struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresSyncer создает синхронизатор аккаунтов поверх Postgres
func NewPostgresSyncer(pool *pgxpool.Pool, log *logger.Logger) *PostgresSyncer {
	return &PostgresSyncer{pool: pool, log: log}
}

// SyncPlanName обновляет имя плана пользователя
func (s *PostgresSyncer) SyncPlanName(ctx context.Context, userID uuid.UUID, planName string) error {
	query := `UPDATE users SET plan_name = $1, updated_at = NOW() WHERE id = $2`

	tag, err := s.pool.Exec(ctx, query, planName, userID)
	if err != nil {
		return fmt.Errorf("failed to sync plan name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.log.Warnw("User not found during plan name sync", "user_id", userID, "plan_name", planName)
		return nil
	}

	s.log.Debugw("Plan name synced", "user_id", userID, "plan_name", planName)
	return nil
}

// InMemorySyncer хранит имена планов в памяти, используется в тестах
type InMemorySyncer struct {
	mu    sync.RWMutex
	plans map[uuid.UUID]string
}

// NewInMemorySyncer создает синхронизатор аккаунтов в памяти
func NewInMemorySyncer() *InMemorySyncer {
	return &InMemorySyncer{plans: make(map[uuid.UUID]string)}
}

// SyncPlanName запоминает имя плана пользователя
func (s *InMemorySyncer) SyncPlanName(_ context.Context, userID uuid.UUID, planName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[userID] = planName
	return nil
}

// PlanNameOf возвращает последнее синхронизированное имя плана
func (s *InMemorySyncer) PlanNameOf(userID uuid.UUID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.plans[userID]
	return name, ok
}
