package stripe

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// Поведение приостановки списаний: счета за время паузы не выставляются
const pauseBehaviorVoid = "void"

// Gateway реализует платежный шлюз биллинга поверх Stripe SDK.
type Gateway struct {
	client *client.API
	log    *logger.Logger
}

// NewGateway создает новый экземпляр шлюза Stripe.
func NewGateway(apiKey string, log *logger.Logger) *Gateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &Gateway{
		client: sc,
		log:    log,
	}
}

// CreateSubscription создает подписку в Stripe и возвращает ее ID.
func (g *Gateway) CreateSubscription(ctx context.Context, customerRef, priceRef string, metadata map[string]string) (string, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerRef),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(priceRef),
			},
		},
		Metadata: metadata,
		Params: stripe.Params{
			Context: ctx,
		},
	}

	subscription, err := g.client.Subscriptions.New(params)
	if err != nil {
		return "", g.wrapError("create_subscription", err)
	}

	g.log.Infow("Stripe subscription created", "stripe_subscription_id", subscription.ID, "status", string(subscription.Status))
	return subscription.ID, nil
}

// UpdateSubscriptionItem переводит подписку на другую цену.
// prorationBehavior передается Stripe как есть ("create_prorations" или "none").
func (g *Gateway) UpdateSubscriptionItem(ctx context.Context, subRef, priceRef, prorationBehavior string) error {
	getParams := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}
	subscription, err := g.client.Subscriptions.Get(subRef, getParams)
	if err != nil {
		return g.wrapError("update_subscription_item", err)
	}
	if subscription.Items == nil || len(subscription.Items.Data) == 0 {
		return domain.NewGatewayError("update_subscription_item", "no_items", "subscription has no items", 0, nil)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(subscription.Items.Data[0].ID),
				Price: stripe.String(priceRef),
			},
		},
		ProrationBehavior: stripe.String(prorationBehavior),
		Params: stripe.Params{
			Context: ctx,
		},
	}

	if _, err := g.client.Subscriptions.Update(subRef, params); err != nil {
		return g.wrapError("update_subscription_item", err)
	}

	g.log.Infow("Stripe subscription item updated", "stripe_subscription_id", subRef, "price", priceRef, "proration_behavior", prorationBehavior)
	return nil
}

// CancelSubscription отменяет подписку в Stripe немедленно.
func (g *Gateway) CancelSubscription(ctx context.Context, subRef string) error {
	params := &stripe.SubscriptionCancelParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}

	if _, err := g.client.Subscriptions.Cancel(subRef, params); err != nil {
		// Подписка уже отменена или удалена в Stripe
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			g.log.Warnw("Attempted to cancel already canceled/missing Stripe subscription", "stripe_subscription_id", subRef)
			return nil
		}
		return g.wrapError("cancel_subscription", err)
	}

	g.log.Infow("Stripe subscription canceled", "stripe_subscription_id", subRef)
	return nil
}

// CreateRefund возвращает средства по платежу, сумма в минорных единицах.
func (g *Gateway) CreateRefund(ctx context.Context, paymentRef string, amountMinorUnits int64, reason string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentRef),
		Amount:        stripe.Int64(amountMinorUnits),
		Params: stripe.Params{
			Context: ctx,
		},
	}
	if reason != "" {
		params.Metadata = map[string]string{"reason": reason}
	}

	refund, err := g.client.Refunds.New(params)
	if err != nil {
		return "", g.wrapError("create_refund", err)
	}

	g.log.Infow("Stripe refund created", "stripe_refund_id", refund.ID, "payment_intent", paymentRef, "amount", amountMinorUnits)
	return refund.ID, nil
}

// PauseCollection останавливает списания по подписке.
// Если resumeAt задан, Stripe возобновит списания сам.
func (g *Gateway) PauseCollection(ctx context.Context, subRef string, resumeAt *time.Time) error {
	pause := &stripe.SubscriptionPauseCollectionParams{
		Behavior: stripe.String(pauseBehaviorVoid),
	}
	if resumeAt != nil {
		pause.ResumesAt = stripe.Int64(resumeAt.Unix())
	}

	params := &stripe.SubscriptionParams{
		PauseCollection: pause,
		Params: stripe.Params{
			Context: ctx,
		},
	}

	if _, err := g.client.Subscriptions.Update(subRef, params); err != nil {
		return g.wrapError("pause_collection", err)
	}

	g.log.Infow("Stripe collection paused", "stripe_subscription_id", subRef)
	return nil
}

// ResumeCollection снимает приостановку списаний.
func (g *Gateway) ResumeCollection(ctx context.Context, subRef string) error {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}
	// Пустое значение стирает pause_collection на стороне Stripe
	params.AddExtra("pause_collection", "")

	if _, err := g.client.Subscriptions.Update(subRef, params); err != nil {
		return g.wrapError("resume_collection", err)
	}

	g.log.Infow("Stripe collection resumed", "stripe_subscription_id", subRef)
	return nil
}

// ListPaymentMethods возвращает карты клиента.
func (g *Gateway) ListPaymentMethods(ctx context.Context, customerRef string) ([]domain.PaymentMethod, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerRef),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
		ListParams: stripe.ListParams{
			Context: ctx,
		},
	}

	var methods []domain.PaymentMethod
	iter := g.client.PaymentMethods.List(params)
	for iter.Next() {
		pm := iter.PaymentMethod()
		method := domain.PaymentMethod{
			Ref: pm.ID,
		}
		if pm.Card != nil {
			method.Brand = string(pm.Card.Brand)
			method.Last4 = pm.Card.Last4
			method.ExpMonth = pm.Card.ExpMonth
			method.ExpYear = pm.Card.ExpYear
		}
		methods = append(methods, method)
	}
	if err := iter.Err(); err != nil {
		return nil, g.wrapError("list_payment_methods", err)
	}

	return methods, nil
}

// UpdateDefaultPaymentMethod делает methodRef платежным методом клиента по умолчанию.
func (g *Gateway) UpdateDefaultPaymentMethod(ctx context.Context, customerRef, methodRef string) error {
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(methodRef),
		},
		Params: stripe.Params{
			Context: ctx,
		},
	}

	if _, err := g.client.Customers.Update(customerRef, params); err != nil {
		return g.wrapError("update_default_payment_method", err)
	}

	g.log.Infow("Stripe default payment method updated", "stripe_customer_id", customerRef, "payment_method", methodRef)
	return nil
}

// wrapError логирует детали ошибки Stripe и переводит ее в доменную ошибку шлюза.
func (g *Gateway) wrapError(operation string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		g.log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
		return domain.NewGatewayError(operation, string(stripeErr.Code), stripeErr.Msg, stripeErr.HTTPStatusCode, err)
	}

	g.log.Errorw("Non-Stripe error during Stripe operation", "operation", operation, "error", err)
	return domain.NewGatewayError(operation, "unknown", err.Error(), 0, err)
}
