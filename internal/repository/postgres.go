package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// DBTX общий интерфейс pgxpool.Pool и pgx.Tx.
// Репозитории работают через него, чтобы один и тот же код
// выполнялся как вне транзакции, так и внутри нее.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresPool создает пул соединений с Postgres.
// Подключение ретраится с экспоненциальной выдержкой: при старте
// сервиса база может быть еще не готова.
func NewPostgresPool(ctx context.Context, dsn string, log *logger.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingOp := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			log.Warnw("Database not ready, retrying", "error", err)
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(pingOp, backoff.WithContext(bo, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Infow("Database connection established")
	return pool, nil
}

// txKey ключ контекста для активной транзакции
type txKey struct{}

// TxManager управляет локальными транзакциями.
// Транзакция передается через контекст, чтобы репозитории
// не зависели от конкретного способа ее открытия.
type TxManager interface {
	// WithinTx выполняет fn внутри одной транзакции; ошибка fn откатывает ее
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PgxTxManager реализация TxManager поверх pgxpool
type PgxTxManager struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPgxTxManager создает новый менеджер транзакций
func NewPgxTxManager(pool *pgxpool.Pool, log *logger.Logger) *PgxTxManager {
	return &PgxTxManager{pool: pool, log: log}
}

// WithinTx выполняет fn внутри транзакции Postgres
func (m *PgxTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// Вложенные транзакции не открываем
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			m.log.Errorw("Failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// queryerFrom возвращает активную транзакцию из контекста или пул
func queryerFrom(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// NoopTxManager выполняет fn без транзакции.
// Используется с in-memory репозиториями в тестах.
type NoopTxManager struct{}

// WithinTx выполняет fn как есть
func (NoopTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
