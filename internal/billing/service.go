package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// PaymentGateway интерфейс платежного шлюза.
// Внедряется в сервис, чтобы тесты могли подставить фейковый шлюз
// без сетевого доступа.
type PaymentGateway interface {
	// CreateSubscription создает подписку в шлюзе, возвращает ее ссылку
	CreateSubscription(ctx context.Context, customerRef, priceRef string, metadata map[string]string) (string, error)
	// UpdateSubscriptionItem переводит подписку на другую цену;
	// prorationBehavior передается шлюзу как есть
	UpdateSubscriptionItem(ctx context.Context, subRef, priceRef, prorationBehavior string) error
	CancelSubscription(ctx context.Context, subRef string) error
	// CreateRefund возвращает средства по платежу, сумма в минорных единицах
	CreateRefund(ctx context.Context, paymentRef string, amountMinorUnits int64, reason string) (string, error)
	// PauseCollection останавливает списания; resumeAt задает автовозобновление
	PauseCollection(ctx context.Context, subRef string, resumeAt *time.Time) error
	ResumeCollection(ctx context.Context, subRef string) error
	ListPaymentMethods(ctx context.Context, customerRef string) ([]domain.PaymentMethod, error)
	UpdateDefaultPaymentMethod(ctx context.Context, customerRef, methodRef string) error
}

// AccountSyncer коллаборатор аккаунтов: принимает денормализованное
// имя плана после успешной смены плана.
type AccountSyncer interface {
	SyncPlanName(ctx context.Context, userID uuid.UUID, planName string) error
}

// EventProducer публикует события биллинга во внешнюю шину.
// Может быть nil: публикация тогда пропускается.
type EventProducer interface {
	PublishBillingEvent(ctx context.Context, entry domain.BillingLog) error
	Close() error
}

// Service биллинговое ядро: смена планов, кредиты, возвраты,
// учет использования и pause/resume подписок.
type Service struct {
	subs     repository.SubscriptionRepository
	plans    repository.PlanRepository
	credits  repository.CreditRepository
	refunds  repository.RefundRepository
	usage    repository.UsageRepository
	logs     repository.BillingLogRepository
	schedule repository.ScheduledChangeRepository
	tx       repository.TxManager
	gateway  PaymentGateway
	accounts AccountSyncer
	producer EventProducer
	metrics  metrics.BillingMetrics
	locks    *subscriptionLocks
	log      *logger.Logger
}

// Deps зависимости биллингового ядра
type Deps struct {
	Subscriptions    repository.SubscriptionRepository
	Plans            repository.PlanRepository
	Credits          repository.CreditRepository
	Refunds          repository.RefundRepository
	Usage            repository.UsageRepository
	Logs             repository.BillingLogRepository
	ScheduledChanges repository.ScheduledChangeRepository
	TxManager        repository.TxManager
	Gateway          PaymentGateway
	Accounts         AccountSyncer
	Producer         EventProducer // может быть nil
	Metrics          metrics.BillingMetrics
	Logger           *logger.Logger
}

// NewService создает биллинговый сервис
func NewService(deps Deps) *Service {
	if deps.Producer == nil {
		deps.Logger.Warnw("Event producer is nil, billing event publishing will be skipped")
	}
	return &Service{
		subs:     deps.Subscriptions,
		plans:    deps.Plans,
		credits:  deps.Credits,
		refunds:  deps.Refunds,
		usage:    deps.Usage,
		logs:     deps.Logs,
		schedule: deps.ScheduledChanges,
		tx:       deps.TxManager,
		gateway:  deps.Gateway,
		accounts: deps.Accounts,
		producer: deps.Producer,
		metrics:  deps.Metrics,
		locks:    newSubscriptionLocks(),
		log:      deps.Logger,
	}
}

// appendLog добавляет запись в журнал биллинга и публикует событие.
// Сбой журнала — ошибка операции; сбой публикации — нет.
// Внутри транзакции не использовать: публикация должна идти только
// после коммита, см. publishEvent.
func (s *Service) appendLog(ctx context.Context, entry domain.BillingLog) error {
	saved, err := s.logs.Append(ctx, entry)
	if err != nil {
		s.log.Errorw("Failed to append billing log", "subscription_id", entry.SubscriptionID, "event_type", entry.EventType, "error", err)
		return err
	}

	s.publishEvent(ctx, saved)
	return nil
}

// publishEvent публикует закоммиченную запись журнала; сбой не ошибка операции
func (s *Service) publishEvent(ctx context.Context, entry domain.BillingLog) {
	if s.producer == nil {
		return
	}
	if err := s.producer.PublishBillingEvent(ctx, entry); err != nil {
		s.log.Warnw("Failed to publish billing event", "subscription_id", entry.SubscriptionID, "event_type", entry.EventType, "error", err)
	}
}

// recordGatewayFailure фиксирует неудачный вызов шлюза в журнале:
// попытка операции должна остаться в аудите и при отказе шлюза.
// Сбой самой записи не маскирует ошибку шлюза.
func (s *Service) recordGatewayFailure(ctx context.Context, subscription domain.Subscription, eventType string, metadata map[string]string, cause error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["error"] = cause.Error()
	if err := s.appendLog(ctx, domain.BillingLog{
		SubscriptionID: subscription.ID,
		UserID:         subscription.UserID,
		EventType:      eventType,
		Status:         domain.LogStatusFailed,
		Metadata:       metadata,
	}); err != nil {
		s.log.Errorw("Failed to record gateway failure", "subscription_id", subscription.ID, "event_type", eventType, "error", err)
	}
}

// loadSubscription возвращает подписку или доменную ошибку NotFound
func (s *Service) loadSubscription(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	subscription, err := s.subs.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return domain.Subscription{}, domain.NewNotFoundError("subscription", id.String())
		}
		return domain.Subscription{}, err
	}
	return subscription, nil
}

// loadPlan возвращает план или доменную ошибку NotFound
func (s *Service) loadPlan(ctx context.Context, id uuid.UUID) (domain.Plan, error) {
	plan, err := s.plans.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return domain.Plan{}, domain.NewNotFoundError("plan", id.String())
		}
		return domain.Plan{}, err
	}
	return plan, nil
}
