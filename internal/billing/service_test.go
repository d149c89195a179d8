package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/accounts"
	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/internal/metrics"
	"github.com/Dhoini/Billing-microservice/internal/repository"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// fakeGateway платежный шлюз для тестов: считает вызовы,
// по требованию возвращает подготовленные ошибки
type fakeGateway struct {
	mu sync.Mutex

	createSubErr     error
	updateErr        error
	cancelErr        error
	refundErr        error
	pauseErr         error
	resumeErr        error
	paymentMethodErr error

	createSubCalls     int
	updateCalls        int
	cancelCalls        int
	refundCalls        int
	pauseCalls         int
	resumeCalls        int
	paymentMethodCalls int

	lastProrationBehavior string
	lastRefundAmount      int64
	lastRefundPaymentRef  string
	lastResumeAt          *time.Time

	paymentMethods []domain.PaymentMethod
}

func (g *fakeGateway) CreateSubscription(_ context.Context, _, _ string, _ map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createSubCalls++
	if g.createSubErr != nil {
		return "", g.createSubErr
	}
	return "sub_new", nil
}

func (g *fakeGateway) UpdateSubscriptionItem(_ context.Context, _, _, prorationBehavior string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateCalls++
	g.lastProrationBehavior = prorationBehavior
	return g.updateErr
}

func (g *fakeGateway) CancelSubscription(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls++
	return g.cancelErr
}

func (g *fakeGateway) CreateRefund(_ context.Context, paymentRef string, amountMinorUnits int64, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	g.lastRefundPaymentRef = paymentRef
	g.lastRefundAmount = amountMinorUnits
	if g.refundErr != nil {
		return "", g.refundErr
	}
	return "re_test", nil
}

func (g *fakeGateway) PauseCollection(_ context.Context, _ string, resumeAt *time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pauseCalls++
	g.lastResumeAt = resumeAt
	return g.pauseErr
}

func (g *fakeGateway) ResumeCollection(_ context.Context, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resumeCalls++
	return g.resumeErr
}

func (g *fakeGateway) ListPaymentMethods(_ context.Context, _ string) ([]domain.PaymentMethod, error) {
	return g.paymentMethods, nil
}

func (g *fakeGateway) UpdateDefaultPaymentMethod(_ context.Context, _, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paymentMethodCalls++
	return g.paymentMethodErr
}

// fakeProducer собирает опубликованные события биллинга
type fakeProducer struct {
	mu     sync.Mutex
	events []domain.BillingLog
}

func (p *fakeProducer) PublishBillingEvent(_ context.Context, entry domain.BillingLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, entry)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) published() []domain.BillingLog {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.BillingLog(nil), p.events...)
}

// commitFailTxManager выполняет fn, но завершает транзакцию с ошибкой,
// имитируя откат на коммите
type commitFailTxManager struct{ err error }

func (m commitFailTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return m.err
}

// fixture собранный сервис с фейковым шлюзом и репозиториями в памяти
type fixture struct {
	service  *Service
	gateway  *fakeGateway
	subs     *repository.InMemorySubscriptionRepository
	plans    *repository.InMemoryPlanRepository
	credits  *repository.InMemoryCreditRepository
	refunds  *repository.InMemoryRefundRepository
	usage    *repository.InMemoryUsageRepository
	logs     *repository.InMemoryBillingLogRepository
	schedule *repository.InMemoryScheduledChangeRepository
	accounts *accounts.InMemorySyncer
}

func newFixture() *fixture {
	log := logger.New(logger.ERROR)
	f := &fixture{
		gateway:  &fakeGateway{},
		subs:     repository.NewInMemorySubscriptionRepository(log),
		plans:    repository.NewInMemoryPlanRepository(log),
		credits:  repository.NewInMemoryCreditRepository(log),
		refunds:  repository.NewInMemoryRefundRepository(log),
		usage:    repository.NewInMemoryUsageRepository(log),
		logs:     repository.NewInMemoryBillingLogRepository(log),
		schedule: repository.NewInMemoryScheduledChangeRepository(log),
		accounts: accounts.NewInMemorySyncer(),
	}
	f.service = NewService(Deps{
		Subscriptions:    f.subs,
		Plans:            f.plans,
		Credits:          f.credits,
		Refunds:          f.refunds,
		Usage:            f.usage,
		Logs:             f.logs,
		ScheduledChanges: f.schedule,
		TxManager:        repository.NoopTxManager{},
		Gateway:          f.gateway,
		Accounts:         f.accounts,
		Metrics:          metrics.NewBillingMetrics(prometheus.NewRegistry(), log),
		Logger:           log,
	})
	return f
}

// rebuildService пересобирает сервис на тех же репозиториях
// с другим продюсером и менеджером транзакций
func (f *fixture) rebuildService(producer EventProducer, tx repository.TxManager) {
	log := logger.New(logger.ERROR)
	f.service = NewService(Deps{
		Subscriptions:    f.subs,
		Plans:            f.plans,
		Credits:          f.credits,
		Refunds:          f.refunds,
		Usage:            f.usage,
		Logs:             f.logs,
		ScheduledChanges: f.schedule,
		TxManager:        tx,
		Gateway:          f.gateway,
		Accounts:         f.accounts,
		Producer:         producer,
		Metrics:          metrics.NewBillingMetrics(prometheus.NewRegistry(), log),
		Logger:           log,
	})
}

// Тарифные планы тестового каталога
func (f *fixture) seedPlans() (free, basic, pro domain.Plan) {
	free = domain.Plan{ID: uuid.New(), Name: "Free", Price: decimal.Zero, Currency: "CHF"}
	basic = domain.Plan{ID: uuid.New(), Name: "Basic", Price: decimal.NewFromInt(20), Currency: "CHF", GatewayPriceRef: "price_basic"}
	pro = domain.Plan{ID: uuid.New(), Name: "Pro", Price: decimal.NewFromInt(50), Currency: "CHF", GatewayPriceRef: "price_pro"}
	f.plans.Seed(free, basic, pro)
	return free, basic, pro
}

// Активная подписка с заданным числом оставшихся полных дней периода
func (f *fixture) seedSubscription(planID uuid.UUID, daysRemaining int) domain.Subscription {
	now := time.Now()
	subscription, err := f.subs.Create(context.Background(), domain.Subscription{
		UserID:             uuid.New(),
		PlanID:             planID,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: now.AddDate(0, 0, daysRemaining-30),
		CurrentPeriodEnd:   now.AddDate(0, 0, daysRemaining),
		GatewayCustomerRef: "cus_test",
		GatewaySubRef:      "sub_test",
		PaymentMethodRef:   "pm_test",
	})
	if err != nil {
		panic(err)
	}
	return subscription
}
