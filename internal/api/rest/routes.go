package rest

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dhoini/Billing-microservice/internal/api/rest/handlers"
	"github.com/Dhoini/Billing-microservice/internal/middleware"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// Период использования в формате YYYY-MM
var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(
	billingHandler *handlers.BillingHandler,
	auth *middleware.JWTMiddleware,
	registry *prometheus.Registry,
	log *logger.Logger,
) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestLogger(log))
	r.Use(gin.Recovery())

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("billingperiod", func(fl validator.FieldLevel) bool {
			return periodPattern.MatchString(fl.Field().String())
		})
	}

	r.GET("/health", handlers.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	v1.Use(auth.RequireAuth())
	{
		subscriptions := v1.Group("/subscriptions")
		{
			subscriptions.POST("/plan-change", billingHandler.ChangePlan)
			subscriptions.GET("/:id", billingHandler.GetSubscription)
			subscriptions.GET("/:id/history", billingHandler.GetBillingHistory)

			subscriptions.POST("/:id/credits", billingHandler.AddCredit)
			subscriptions.POST("/:id/credits/apply", billingHandler.ApplyCredits)

			subscriptions.POST("/:id/refunds", billingHandler.ProcessRefund)
			subscriptions.GET("/:id/refunds", billingHandler.GetRefunds)

			subscriptions.GET("/:id/usage", billingHandler.GetUsageMetrics)
			subscriptions.POST("/:id/usage", billingHandler.RecordUsage)
			subscriptions.POST("/:id/usage/reset", billingHandler.ResetUsage)

			subscriptions.POST("/:id/pause", billingHandler.PauseSubscription)
			subscriptions.POST("/:id/resume", billingHandler.ResumeSubscription)

			subscriptions.GET("/:id/payment-methods", billingHandler.GetPaymentMethods)
			subscriptions.PUT("/:id/payment-method", billingHandler.UpdatePaymentMethod)
		}
	}

	return r
}
