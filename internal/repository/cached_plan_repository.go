package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

const planCacheTTL = 10 * time.Minute

// CachedPlanRepository кэширующая обертка над реестром планов.
// Планы неизменяемы, поэтому кэш с TTL безопасен. Ошибки Redis
// не фатальны: чтение проваливается на основной репозиторий.
type CachedPlanRepository struct {
	inner PlanRepository
	redis *redis.Client
	log   *logger.Logger
}

// NewCachedPlanRepository создает кэширующий реестр планов
func NewCachedPlanRepository(inner PlanRepository, redisClient *redis.Client, log *logger.Logger) *CachedPlanRepository {
	return &CachedPlanRepository{
		inner: inner,
		redis: redisClient,
		log:   log,
	}
}

// NewRedisClient создает и проверяет клиент Redis
func NewRedisClient(ctx context.Context, addr, password string, db int, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Infow("Redis connection established", "addr", addr)
	return client, nil
}

func planCacheKey(id uuid.UUID) string {
	return "billing:plan:" + id.String()
}

// GetByID возвращает план из кэша или из основного репозитория
func (r *CachedPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Plan, error) {
	key := planCacheKey(id)

	cached, err := r.redis.Get(ctx, key).Bytes()
	if err == nil {
		var plan domain.Plan
		if err := json.Unmarshal(cached, &plan); err == nil {
			return plan, nil
		}
		// Битую запись в кэше игнорируем и перечитываем из базы
		r.log.Warnw("Failed to decode cached plan, falling back to store", "plan_id", id)
	} else if !errors.Is(err, redis.Nil) {
		r.log.Warnw("Redis read failed, falling back to store", "plan_id", id, "error", err)
	}

	plan, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return domain.Plan{}, err
	}

	if encoded, err := json.Marshal(plan); err == nil {
		if err := r.redis.Set(ctx, key, encoded, planCacheTTL).Err(); err != nil {
			r.log.Warnw("Failed to cache plan", "plan_id", id, "error", err)
		}
	}
	return plan, nil
}

// GetAll возвращает все планы; список не кэшируется
func (r *CachedPlanRepository) GetAll(ctx context.Context) ([]domain.Plan, error) {
	return r.inner.GetAll(ctx)
}
