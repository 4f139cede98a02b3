package api

import (
	v1 "github.com/entbill/entbill/internal/api/v1"
	"github.com/entbill/entbill/internal/rest/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health  *v1.HealthHandler
	Billing *v1.BillingHandler
	Balance *v1.BalanceHandler
}

func NewRouter(handlers Handlers) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.TenantMiddleware)
	router.Use(middleware.ErrorHandler())

	router.GET("/health", handlers.Health.Health)

	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	customers := router.Group("/customers")
	{
		customers.POST("/:id/products", handlers.Billing.AttachProduct)
		customers.PUT("/:id/products", handlers.Billing.UpdateProduct)
		customers.DELETE("/:id/products", handlers.Billing.CancelProduct)
		customers.GET("/:id/balances", handlers.Balance.GetCustomerBalances)
		customers.POST("/:id/verify", handlers.Balance.VerifyCustomer)
	}

	customerProducts := router.Group("/customer-products")
	{
		customerProducts.POST("/:id/expire", handlers.Billing.ExpireProduct)
		customerProducts.POST("/:id/activate", handlers.Billing.ActivateScheduled)
	}
}
