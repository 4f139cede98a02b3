package feature

import (
	"context"
)

// Repository defines the interface for feature data access
type Repository interface {
	Create(ctx context.Context, feature *Feature) error
	Get(ctx context.Context, id string) (*Feature, error)
	GetByLookupKey(ctx context.Context, lookupKey string) (*Feature, error)
	List(ctx context.Context, ids []string) ([]*Feature, error)
	ListAll(ctx context.Context) ([]*Feature, error)
	Update(ctx context.Context, feature *Feature) error
	Delete(ctx context.Context, id string) error
}
