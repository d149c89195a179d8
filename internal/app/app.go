package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dhoini/Billing-microservice/internal/accounts"
	"github.com/Dhoini/Billing-microservice/internal/api/rest"
	"github.com/Dhoini/Billing-microservice/internal/api/rest/handlers"
	"github.com/Dhoini/Billing-microservice/internal/billing"
	"github.com/Dhoini/Billing-microservice/internal/config"
	"github.com/Dhoini/Billing-microservice/internal/gateway/stripe"
	"github.com/Dhoini/Billing-microservice/internal/kafka"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/middleware"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config         *config.Config
	BillingService *billing.Service
	Router         *gin.Engine
	Registry       *prometheus.Registry
	SystemMetrics  metrics.SystemMetrics
	Logger         *logger.Logger

	closers []func() error
}

// NewApp создает и связывает все компоненты приложения
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: log,
	}

	pool, err := repository.NewPostgresPool(ctx, cfg.Database.DSN, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	log.Infow("Database connection established")

	// План-репозиторий оборачивается в Redis кеш, если Redis доступен
	var planRepo repository.PlanRepository = repository.NewPostgresPlanRepository(pool, log)
	redisClient, err := repository.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Warnw("Failed to initialize Redis cache, continuing without plan caching", "error", err)
	} else {
		planRepo = repository.NewCachedPlanRepository(planRepo, redisClient, log)
		a.closers = append(a.closers, redisClient.Close)
		log.Infow("Redis plan cache initialized")
	}

	var producer billing.EventProducer
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureKafkaTopics(cfg.Kafka.Brokers, log); err != nil {
			log.Warnw("Failed to ensure Kafka topics", "error", err)
		}
		kafkaProducer, err := kafka.NewBillingEventProducer(cfg.Kafka.Brokers, kafka.NewConfig(cfg.Kafka.Brokers), log)
		if err != nil {
			log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		} else {
			producer = kafkaProducer
			a.closers = append(a.closers, kafkaProducer.Close)
		}
	}

	registry := prometheus.NewRegistry()
	a.Registry = registry
	a.SystemMetrics = metrics.NewSystemMetrics(registry, log)

	service := billing.NewService(billing.Deps{
		Subscriptions:    repository.NewPostgresSubscriptionRepository(pool, log),
		Plans:            planRepo,
		Credits:          repository.NewPostgresCreditRepository(pool, log),
		Refunds:          repository.NewPostgresRefundRepository(pool, log),
		Usage:            repository.NewPostgresUsageRepository(pool, log),
		Logs:             repository.NewPostgresBillingLogRepository(pool, log),
		ScheduledChanges: repository.NewPostgresScheduledChangeRepository(pool, log),
		TxManager:        repository.NewPgxTxManager(pool, log),
		Gateway:          stripe.NewGateway(cfg.Stripe.APIKey, log),
		Accounts:         accounts.NewPostgresSyncer(pool, log),
		Producer:         producer,
		Metrics:          metrics.NewBillingMetrics(registry, log),
		Logger:           log,
	})
	a.BillingService = service

	auth := middleware.NewJWTMiddleware(log, &middleware.DefaultTokenValidator{
		Secret: []byte(cfg.Auth.JWTSecret),
	})
	billingHandler := handlers.NewBillingHandler(service, log)
	a.Router = rest.SetupRouter(billingHandler, auth, registry, log)

	return a, nil
}

// Close закрывает ресурсы приложения в обратном порядке создания
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Errorw("Error closing resource", "error", err)
		}
	}
}
