package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// BillingMetrics интерфейс для метрик биллинга
type BillingMetrics interface {
	IncPlanChanged(currency string)
	IncPlanChangeScheduled()
	ObserveProrationAmount(amount float64, currency string)
	IncCreditAdded(currency string)
	IncCreditApplied(currency string)
	IncRefundProcessed(refundType string, currency string)
	ObserveRefundAmount(amount float64, currency string)
	IncUsageReset(scope string)
	IncSubscriptionPaused()
	IncSubscriptionResumed()
	IncGatewayError(operation string)
}

type billingMetrics struct {
	log                  *logger.Logger
	planChanges          *prometheus.CounterVec
	planChangesScheduled prometheus.Counter
	prorationAmount      *prometheus.HistogramVec
	credits              *prometheus.CounterVec
	refunds              *prometheus.CounterVec
	refundAmount         *prometheus.HistogramVec
	usageResets          *prometheus.CounterVec
	subscriptionState    *prometheus.CounterVec
	gatewayErrors        *prometheus.CounterVec
}

// NewBillingMetrics создает новые метрики биллинга
func NewBillingMetrics(registry *prometheus.Registry, log *logger.Logger) BillingMetrics {
	planChanges := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_plan_changes_total",
			Help: "The total number of applied plan changes",
		},
		[]string{"currency"},
	)

	planChangesScheduled := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "billing_plan_changes_scheduled_total",
			Help: "The total number of scheduled plan changes",
		},
	)

	prorationAmount := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_proration_amount",
			Help:    "Proration amounts distribution",
			Buckets: prometheus.ExponentialBuckets(1, 10, 5), // 1, 10, 100, 1000, 10000
		},
		[]string{"currency"},
	)

	credits := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_credits_total",
			Help: "The total number of credit operations by action",
		},
		[]string{"action", "currency"},
	)

	refunds := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_refunds_total",
			Help: "The total number of processed refunds by type",
		},
		[]string{"type", "currency"},
	)

	refundAmount := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_refund_amount",
			Help:    "Refund amounts distribution",
			Buckets: prometheus.ExponentialBuckets(1, 10, 5),
		},
		[]string{"currency"},
	)

	usageResets := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_usage_resets_total",
			Help: "The total number of usage resets by scope",
		},
		[]string{"scope"},
	)

	subscriptionState := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_subscription_state_total",
			Help: "The total number of subscription state transitions",
		},
		[]string{"transition"},
	)

	gatewayErrors := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_gateway_errors_total",
			Help: "The total number of payment gateway errors by operation",
		},
		[]string{"operation"},
	)

	return &billingMetrics{
		log:                  log,
		planChanges:          planChanges,
		planChangesScheduled: planChangesScheduled,
		prorationAmount:      prorationAmount,
		credits:              credits,
		refunds:              refunds,
		refundAmount:         refundAmount,
		usageResets:          usageResets,
		subscriptionState:    subscriptionState,
		gatewayErrors:        gatewayErrors,
	}
}

// IncPlanChanged увеличивает счетчик примененных смен плана
func (m *billingMetrics) IncPlanChanged(currency string) {
	m.planChanges.WithLabelValues(currency).Inc()
}

// IncPlanChangeScheduled увеличивает счетчик отложенных смен плана
func (m *billingMetrics) IncPlanChangeScheduled() {
	m.planChangesScheduled.Inc()
}

// ObserveProrationAmount записывает сумму перерасчета
func (m *billingMetrics) ObserveProrationAmount(amount float64, currency string) {
	m.prorationAmount.WithLabelValues(currency).Observe(amount)
}

// IncCreditAdded увеличивает счетчик начисленных кредитов
func (m *billingMetrics) IncCreditAdded(currency string) {
	m.credits.WithLabelValues("added", currency).Inc()
}

// IncCreditApplied увеличивает счетчик примененных кредитов
func (m *billingMetrics) IncCreditApplied(currency string) {
	m.credits.WithLabelValues("applied", currency).Inc()
}

// IncRefundProcessed увеличивает счетчик возвратов
func (m *billingMetrics) IncRefundProcessed(refundType string, currency string) {
	m.refunds.WithLabelValues(refundType, currency).Inc()
}

// ObserveRefundAmount записывает сумму возврата
func (m *billingMetrics) ObserveRefundAmount(amount float64, currency string) {
	m.refundAmount.WithLabelValues(currency).Observe(amount)
}

// IncUsageReset увеличивает счетчик сбросов использования
func (m *billingMetrics) IncUsageReset(scope string) {
	m.usageResets.WithLabelValues(scope).Inc()
}

// IncSubscriptionPaused увеличивает счетчик приостановок
func (m *billingMetrics) IncSubscriptionPaused() {
	m.subscriptionState.WithLabelValues("paused").Inc()
}

// IncSubscriptionResumed увеличивает счетчик возобновлений
func (m *billingMetrics) IncSubscriptionResumed() {
	m.subscriptionState.WithLabelValues("resumed").Inc()
}

// IncGatewayError увеличивает счетчик ошибок шлюза
func (m *billingMetrics) IncGatewayError(operation string) {
	m.gatewayErrors.WithLabelValues(operation).Inc()
}
