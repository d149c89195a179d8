package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/billing"
	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// BillingHandler обработчик операций биллинга
type BillingHandler struct {
	service *billing.Service
	log     *logger.Logger
}

// NewBillingHandler создает новый обработчик биллинга
func NewBillingHandler(service *billing.Service, log *logger.Logger) *BillingHandler {
	return &BillingHandler{
		service: service,
		log:     log,
	}
}

// ChangePlanRequest тело запроса смены плана
type ChangePlanRequest struct {
	UserID        string     `json:"user_id" binding:"required,uuid"`
	PlanID        string     `json:"plan_id" binding:"required,uuid"`
	Immediate     bool       `json:"immediate"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	Prorated      bool       `json:"prorated"`
	Reason        string     `json:"reason,omitempty"`
}

// ChangePlan переводит подписку пользователя на другой план
func (h *BillingHandler) ChangePlan(c *gin.Context) {
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := billing.ChangePlanInput{
		UserID:    uuid.MustParse(req.UserID),
		PlanID:    uuid.MustParse(req.PlanID),
		Immediate: req.Immediate,
		Prorated:  req.Prorated,
		Reason:    req.Reason,
	}
	if req.ScheduledDate != nil {
		input.ScheduledDate = *req.ScheduledDate
	}

	result, err := h.service.ChangePlan(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, "Failed to change plan", err)
		return
	}

	status := http.StatusOK
	if result.Scheduled {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

// GetSubscription возвращает подписку с планом и отложенными изменениями
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	details, err := h.service.GetSubscriptionDetails(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get subscription", err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// GetBillingHistory возвращает страницу журнала биллинга
func (h *BillingHandler) GetBillingHistory(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	var query struct {
		Limit  int `form:"limit" binding:"omitempty,min=1"`
		Offset int `form:"offset" binding:"omitempty,min=0"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries, err := h.service.GetBillingHistory(c.Request.Context(), id, query.Limit, query.Offset)
	if err != nil {
		h.respondError(c, "Failed to get billing history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// AddCreditRequest тело запроса начисления кредита
type AddCreditRequest struct {
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Currency  string          `json:"currency" binding:"required,iso4217"`
	Reason    string          `json:"reason" binding:"required"`
	CreatedBy string          `json:"created_by,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// AddCredit начисляет кредит подписке
func (h *BillingHandler) AddCredit(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	var req AddCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	credit, err := h.service.AddCredit(c.Request.Context(), billing.AddCreditInput{
		SubscriptionID: id,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Reason:         req.Reason,
		CreatedBy:      req.CreatedBy,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		h.respondError(c, "Failed to add credit", err)
		return
	}
	c.JSON(http.StatusCreated, credit)
}

// ApplyCreditsRequest тело запроса применения кредитов
type ApplyCreditsRequest struct {
	AmountDue decimal.Decimal `json:"amount_due" binding:"required"`
}

// ApplyCredits гасит сумму к оплате доступными кредитами
func (h *BillingHandler) ApplyCredits(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	var req ApplyCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.ApplyCredits(c.Request.Context(), id, req.AmountDue)
	if err != nil {
		h.respondError(c, "Failed to apply credits", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ProcessRefundRequest тело запроса возврата
type ProcessRefundRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason,omitempty"`
	RefundType  string          `json:"refund_type" binding:"required,oneof=full partial prorated"`
	ProcessedBy string          `json:"processed_by,omitempty"`
}

// ProcessRefund выполняет возврат средств по подписке
func (h *BillingHandler) ProcessRefund(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	var req ProcessRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	refund, err := h.service.ProcessRefund(c.Request.Context(), billing.ProcessRefundInput{
		SubscriptionID: id,
		Amount:         req.Amount,
		Reason:         req.Reason,
		RefundType:     domain.RefundType(req.RefundType),
		ProcessedBy:    req.ProcessedBy,
	})
	if err != nil {
		// Возврат мог быть записан со статусом failed: отдаем его вместе с ошибкой
		if errors.Is(err, domain.ErrGateway) && refund.ID != uuid.Nil {
			c.JSON(http.StatusBadGateway, gin.H{"refund": refund, "error": err.Error()})
			return
		}
		h.respondError(c, "Failed to process refund", err)
		return
	}
	c.JSON(http.StatusCreated, refund)
}

// GetUsageMetrics возвращает агрегированное использование за период
func (h *BillingHandler) GetUsageMetrics(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	var query struct {
		Period string `form:"period" binding:"omitempty,billingperiod"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metrics, err := h.service.GetUsageMetrics(c.Request.Context(), id, query.Period)
	if err != nil {
		h.respondError(c, "Failed to get usage metrics", err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// RecordUsageRequest тело запроса учета использования
type RecordUsageRequest struct {
	ResourceType string `json:"resource_type" binding:"required"`
	Delta        int64  `json:"delta" binding:"required"`
}

// RecordUsage учитывает потребление ресурса
func (h *BillingHandler) RecordUsage(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	var req RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.RecordUsage(c.Request.Context(), id, req.ResourceType, req.Delta); err != nil {
		h.respondError(c, "Failed to record usage", err)
		return
	}
	c.JSON(http.StatusNoContent, nil)
}

// ResetUsageRequest тело запроса сброса использования
type ResetUsageRequest struct {
	ResourceType string `json:"resource_type,omitempty"`
}

// ResetUsage сбрасывает счетчики использования текущего периода
func (h *BillingHandler) ResetUsage(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	// Тело опционально: без него сбрасываются все ресурсы
	var req ResetUsageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.service.ResetUsageLimits(c.Request.Context(), id, req.ResourceType); err != nil {
		h.respondError(c, "Failed to reset usage", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// PauseRequest тело запроса приостановки подписки
type PauseRequest struct {
	ResumeDate *time.Time `json:"resume_date,omitempty"`
}

// PauseSubscription приостанавливает подписку
func (h *BillingHandler) PauseSubscription(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	// Тело опционально: без resume_date пауза бессрочная
	var req PauseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	subscription, err := h.service.PauseSubscription(c.Request.Context(), id, req.ResumeDate)
	if err != nil {
		h.respondError(c, "Failed to pause subscription", err)
		return
	}
	c.JSON(http.StatusOK, subscription)
}

// ResumeSubscription возобновляет приостановленную подписку
func (h *BillingHandler) ResumeSubscription(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	subscription, err := h.service.ResumeSubscription(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to resume subscription", err)
		return
	}
	c.JSON(http.StatusOK, subscription)
}

// GetPaymentMethods возвращает платежные методы клиента
// GetRefunds возвращает историю возвратов подписки
func (h *BillingHandler) GetRefunds(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	refunds, err := h.service.GetRefunds(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get refunds", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": refunds, "count": len(refunds)})
}

func (h *BillingHandler) GetPaymentMethods(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	methods, err := h.service.GetPaymentMethods(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get payment methods", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_methods": methods})
}

// UpdatePaymentMethodRequest тело запроса смены метода оплаты
type UpdatePaymentMethodRequest struct {
	PaymentMethodRef string `json:"payment_method_ref" binding:"required"`
}

// UpdatePaymentMethod делает метод оплаты методом по умолчанию
func (h *BillingHandler) UpdatePaymentMethod(c *gin.Context) {
	id, ok := h.subscriptionID(c)
	if !ok {
		return
	}

	var req UpdatePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subscription, err := h.service.UpdatePaymentMethod(c.Request.Context(), id, req.PaymentMethodRef)
	if err != nil {
		h.respondError(c, "Failed to update payment method", err)
		return
	}
	c.JSON(http.StatusOK, subscription)
}

// subscriptionID извлекает и проверяет :id из пути
func (h *BillingHandler) subscriptionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.log.Warnw("Invalid subscription ID format", "id", c.Param("id"))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription ID format"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError переводит доменную ошибку в HTTP статус
func (h *BillingHandler) respondError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.log.Warnw(message, "reason", err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrValidation):
		h.log.Warnw(message, "reason", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyOnPlan), errors.Is(err, domain.ErrInvalidState):
		h.log.Warnw(message, "reason", err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrConcurrencyConflict):
		h.log.Warnw(message, "reason", err)
		c.JSON(http.StatusConflict, gin.H{"error": "Subscription is being modified by another request, retry later"})
	case errors.Is(err, domain.ErrGateway):
		h.log.Errorw(message, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.Errorw(message, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
