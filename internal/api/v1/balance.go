package v1

import (
	"net/http"

	"github.com/entbill/entbill/internal/api/dto"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/service"
	"github.com/gin-gonic/gin"
)

type BalanceHandler struct {
	balance     service.BalanceService
	consistency service.ConsistencyService
	log         *logger.Logger
}

func NewBalanceHandler(balance service.BalanceService, consistency service.ConsistencyService, log *logger.Logger) *BalanceHandler {
	return &BalanceHandler{balance: balance, consistency: consistency, log: log}
}

// GetCustomerBalances godoc
// @Summary Get a customer's feature balances
// @Description Aggregate all entitlements of the customer into one balance per feature
// @Tags Balances
// @Produce json
// @Param id path string true "Customer ID"
// @Param entity_id query string false "Scope balances to one entity"
// @Success 200 {object} dto.ListBalancesResponse
// @Failure 404 {object} ErrorResponse
// @Router /customers/{id}/balances [get]
func (h *BalanceHandler) GetCustomerBalances(c *gin.Context) {
	customerID := c.Param("id")
	if customerID == "" {
		NewErrorResponse(c, http.StatusBadRequest, "customer id is required", nil)
		return
	}
	entityID := c.Query("entity_id")

	balances, err := h.balance.GetCustomerBalances(c.Request.Context(), customerID, entityID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewListBalancesResponse(customerID, entityID, balances))
}

// VerifyCustomer godoc
// @Summary Verify a customer's cached projection
// @Description Compare the cached balance projection against durable state
// @Tags Balances
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {object} dto.ConsistencyReportResponse
// @Failure 404 {object} ErrorResponse
// @Router /customers/{id}/verify [post]
func (h *BalanceHandler) VerifyCustomer(c *gin.Context) {
	customerID := c.Param("id")
	if customerID == "" {
		NewErrorResponse(c, http.StatusBadRequest, "customer id is required", nil)
		return
	}

	report, err := h.consistency.VerifyCustomer(c.Request.Context(), customerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewConsistencyReportResponse(report))
}
