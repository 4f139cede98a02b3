package dto

import (
	"time"

	"github.com/entbill/entbill/internal/domain/billingplan"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/service"
	"github.com/entbill/entbill/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// FeatureQuantityRequest is a caller-chosen prepaid quantity for one feature.
type FeatureQuantityRequest struct {
	FeatureID string          `json:"feature_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
}

// ProductRequest identifies one target product of a billing operation.
type ProductRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	// Version 0 resolves to the latest version.
	Version int `json:"version"`

	FeatureQuantities []FeatureQuantityRequest `json:"feature_quantities,omitempty"`
}

// BillingOperationRequest is the request body shared by attach, update and
// cancel. The operation itself comes from the route.
type BillingOperationRequest struct {
	Products []ProductRequest `json:"products"`

	// EntityID scopes the operation to one sub-entity of the customer.
	EntityID string `json:"entity_id,omitempty"`

	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`

	// CarryUsage requests existing-usage carry-over for all entitlements of
	// the superseded product.
	CarryUsage bool `json:"carry_usage,omitempty"`

	Proration *types.ProrationConfig `json:"proration,omitempty"`

	ProcessorType types.ProcessorType `json:"processor_type,omitempty"`
}

// ToBillingRequest converts the body into the engine's request type.
func (r *BillingOperationRequest) ToBillingRequest(op types.BillingOperation, customerID string) *service.BillingRequest {
	return &service.BillingRequest{
		Operation:        op,
		CustomerID:       customerID,
		InternalEntityID: r.EntityID,
		Products: lo.Map(r.Products, func(p ProductRequest, _ int) service.ProductRequest {
			return service.ProductRequest{
				ProductID: p.ProductID,
				Version:   p.Version,
				FeatureQuantities: lo.Map(p.FeatureQuantities, func(q FeatureQuantityRequest, _ int) service.FeatureQuantityRequest {
					return service.FeatureQuantityRequest{
						FeatureID: q.FeatureID,
						Quantity:  q.Quantity,
					}
				}),
			}
		}),
		TrialEndsAt:   r.TrialEndsAt,
		CarryUsage:    r.CarryUsage,
		Proration:     r.Proration,
		ProcessorType: r.ProcessorType,
	}
}

// Validate checks the parts of the body the engine cannot default.
func (r *BillingOperationRequest) Validate(op types.BillingOperation) error {
	if op != types.BillingOperationCancel && len(r.Products) == 0 {
		return ierr.NewError("at least one product is required").
			WithHint("Provide the products to attach or update").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CustomerProductResponse is one resulting attachment row.
type CustomerProductResponse struct {
	ID            string                      `json:"id"`
	ProductID     string                      `json:"product_id"`
	Version       int                         `json:"product_version"`
	Status        types.CustomerProductStatus `json:"status"`
	StartsAt      time.Time                   `json:"starts_at"`
	TrialEndsAt   *time.Time                  `json:"trial_ends_at,omitempty"`
	CanceledAt    *time.Time                  `json:"canceled_at,omitempty"`
	SubscriptionID string                     `json:"subscription_id,omitempty"`
	ScheduleID     string                     `json:"schedule_id,omitempty"`
}

// BillingPlanResponse summarizes the executed plan.
type BillingPlanResponse struct {
	Operation     types.BillingOperation `json:"operation"`
	CustomerID    string                 `json:"customer_id"`
	Timing        types.AttachTiming     `json:"timing"`
	OngoingAction types.OngoingAction    `json:"ongoing_action,omitempty"`

	Products []CustomerProductResponse `json:"products"`
}

// NewBillingPlanResponse builds the API response from an executed plan.
func NewBillingPlanResponse(plan *billingplan.BillingPlan) *BillingPlanResponse {
	resp := &BillingPlanResponse{
		Operation:     plan.Operation,
		CustomerID:    plan.CustomerID,
		Timing:        plan.Timing,
		OngoingAction: plan.OngoingAction,
	}
	for _, cp := range plan.Local.InsertCustomerProducts {
		resp.Products = append(resp.Products, newCustomerProductResponse(cp))
	}
	for _, cp := range plan.Local.UpdateCustomerProducts {
		resp.Products = append(resp.Products, newCustomerProductResponse(cp))
	}
	return resp
}

func newCustomerProductResponse(cp *customerproduct.CustomerProduct) CustomerProductResponse {
	return CustomerProductResponse{
		ID:             cp.ID,
		ProductID:      cp.ProductID,
		Version:        cp.ProductVersion,
		Status:         cp.ProductStatus,
		StartsAt:       cp.StartsAt,
		TrialEndsAt:    cp.TrialEndsAt,
		CanceledAt:     cp.CanceledAt,
		SubscriptionID: cp.SubscriptionID,
		ScheduleID:     cp.ScheduleID,
	}
}
