package product

import (
	"context"
)

// Repository defines the interface for product definition data access.
// Product definitions are read-mostly; versions are immutable once any
// customer is attached.
type Repository interface {
	Create(ctx context.Context, product *Product) error
	Get(ctx context.Context, internalID string) (*Product, error)
	// GetByIDAndVersion resolves a stable product id and version to one
	// row; version 0 means latest.
	GetByIDAndVersion(ctx context.Context, id string, version int) (*Product, error)
	// GetFull loads the product with entitlements, prices and trial.
	GetFull(ctx context.Context, internalID string) (*FullProduct, error)
	// GetFullByIDAndVersion combines GetByIDAndVersion and GetFull.
	GetFullByIDAndVersion(ctx context.Context, id string, version int) (*FullProduct, error)
	// ListDefault returns the default products, one per group at most.
	ListDefault(ctx context.Context) ([]*FullProduct, error)
	ListByGroup(ctx context.Context, group string) ([]*Product, error)
	Update(ctx context.Context, product *Product) error
	Delete(ctx context.Context, internalID string) error

	CreateEntitlement(ctx context.Context, entitlement *Entitlement) error
	CreatePrice(ctx context.Context, price *Price) error
	UpdatePrice(ctx context.Context, price *Price) error
	CreateFreeTrial(ctx context.Context, trial *FreeTrial) error
}
