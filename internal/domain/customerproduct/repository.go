package customerproduct

import (
	"context"
)

// Repository defines the interface for customer product state access. It
// is the only mutable shared store in the billing core; entitlement writes
// go exclusively through the plan executor.
type Repository interface {
	Create(ctx context.Context, cp *CustomerProduct) error
	Get(ctx context.Context, id string) (*CustomerProduct, error)
	// ListByCustomer returns attachments with a relevant status (active,
	// past_due, trialing, scheduled) in stable created_at order.
	ListByCustomer(ctx context.Context, customerID string) ([]*CustomerProduct, error)
	// ListAllByCustomer includes expired attachments, needed for usage
	// carry-over history.
	ListAllByCustomer(ctx context.Context, customerID string) ([]*CustomerProduct, error)
	// Update persists the row only if ResourceVersion still matches,
	// returning ErrVersionConflict otherwise.
	Update(ctx context.Context, cp *CustomerProduct) error
	Delete(ctx context.Context, id string) error

	CreateEntitlement(ctx context.Context, ce *CustomerEntitlement) error
	GetEntitlement(ctx context.Context, id string) (*CustomerEntitlement, error)
	ListEntitlementsByCustomer(ctx context.Context, customerID string) ([]*CustomerEntitlement, error)
	ListEntitlementsByProduct(ctx context.Context, customerProductID string) ([]*CustomerEntitlement, error)
	UpdateEntitlement(ctx context.Context, ce *CustomerEntitlement) error
	DeleteEntitlement(ctx context.Context, id string) error

	CreateCustomerPrice(ctx context.Context, cprice *CustomerPrice) error
	ListCustomerPrices(ctx context.Context, customerProductID string) ([]*CustomerPrice, error)
	DeleteCustomerPrice(ctx context.Context, id string) error

	CreateReplaceable(ctx context.Context, r *Replaceable) error
	ListReplaceables(ctx context.Context, customerEntitlementID string) ([]*Replaceable, error)
	DeleteReplaceable(ctx context.Context, id string) error
}
