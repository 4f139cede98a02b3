package customer

import (
	"context"
)

// Repository defines the interface for customer data access
type Repository interface {
	Create(ctx context.Context, customer *Customer) error
	Get(ctx context.Context, id string) (*Customer, error)
	GetByExternalID(ctx context.Context, externalID string) (*Customer, error)
	Update(ctx context.Context, customer *Customer) error
	Delete(ctx context.Context, id string) error

	// ListEntities returns all non-deleted entities of the customer.
	ListEntities(ctx context.Context, customerID string) ([]*Entity, error)
	// ListAllEntities includes soft-deleted entities, needed by the
	// configuration diff to turn dropped slots into replaceables.
	ListAllEntities(ctx context.Context, customerID string) ([]*Entity, error)
	CreateEntity(ctx context.Context, entity *Entity) error
	UpdateEntity(ctx context.Context, entity *Entity) error
}
