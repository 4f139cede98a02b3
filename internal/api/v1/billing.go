package v1

import (
	"context"
	"net/http"

	"github.com/entbill/entbill/internal/api/dto"
	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/service"
	"github.com/entbill/entbill/internal/types"
	"github.com/gin-gonic/gin"
)

type BillingHandler struct {
	service service.BillingService
	log     *logger.Logger
}

func NewBillingHandler(service service.BillingService, log *logger.Logger) *BillingHandler {
	return &BillingHandler{service: service, log: log}
}

// AttachProduct godoc
// @Summary Attach products to a customer
// @Description Resolve and execute a billing plan attaching the given products
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param request body dto.BillingOperationRequest true "Attach request"
// @Success 200 {object} dto.BillingPlanResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /customers/{id}/products [post]
func (h *BillingHandler) AttachProduct(c *gin.Context) {
	h.handleOperation(c, types.BillingOperationAttach, h.service.Attach)
}

// UpdateProduct godoc
// @Summary Update a customer's product
// @Description Resolve and execute a billing plan updating quantities on the ongoing product
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param request body dto.BillingOperationRequest true "Update request"
// @Success 200 {object} dto.BillingPlanResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /customers/{id}/products [put]
func (h *BillingHandler) UpdateProduct(c *gin.Context) {
	h.handleOperation(c, types.BillingOperationUpdate, h.service.Update)
}

// CancelProduct godoc
// @Summary Cancel a customer's product
// @Description Soft-cancel the ongoing product at the period boundary
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param request body dto.BillingOperationRequest true "Cancel request"
// @Success 200 {object} dto.BillingPlanResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /customers/{id}/products [delete]
func (h *BillingHandler) CancelProduct(c *gin.Context) {
	h.handleOperation(c, types.BillingOperationCancel, h.service.Cancel)
}

func (h *BillingHandler) handleOperation(
	c *gin.Context,
	op types.BillingOperation,
	run func(ctx context.Context, req *service.BillingRequest) (*billingplan.BillingPlan, error),
) {
	customerID := c.Param("id")
	if customerID == "" {
		NewErrorResponse(c, http.StatusBadRequest, "customer id is required", nil)
		return
	}

	var req dto.BillingOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		NewErrorResponse(c, http.StatusBadRequest, "invalid request payload", err)
		return
	}

	if err := req.Validate(op); err != nil {
		c.Error(err)
		return
	}

	plan, err := run(c.Request.Context(), req.ToBillingRequest(op, customerID))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.NewBillingPlanResponse(plan))
}

// ExpireProduct godoc
// @Summary Expire a customer product immediately
// @Description End an attachment now, activating the group default when needed
// @Tags Billing
// @Produce json
// @Param id path string true "Customer Product ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /customer-products/{id}/expire [post]
func (h *BillingHandler) ExpireProduct(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		NewErrorResponse(c, http.StatusBadRequest, "id is required", nil)
		return
	}

	if err := h.service.ExpireProduct(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "expired"})
}

// ActivateScheduled godoc
// @Summary Activate a scheduled customer product
// @Description Flip a scheduled attachment to active once its start time has passed
// @Tags Billing
// @Produce json
// @Param id path string true "Customer Product ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /customer-products/{id}/activate [post]
func (h *BillingHandler) ActivateScheduled(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		NewErrorResponse(c, http.StatusBadRequest, "id is required", nil)
		return
	}

	if err := h.service.ActivateScheduled(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "activated"})
}
