package testutil

import (
	"context"

	"github.com/entbill/entbill/internal/domain/customer"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/types"
	"github.com/samber/lo"
)

// InMemoryCustomerStore implements customer.Repository
type InMemoryCustomerStore struct {
	customers *InMemoryStore[*customer.Customer]
	entities  *InMemoryStore[*customer.Entity]
}

// NewInMemoryCustomerStore creates a new in-memory customer store
func NewInMemoryCustomerStore() *InMemoryCustomerStore {
	return &InMemoryCustomerStore{
		customers: NewInMemoryStore[*customer.Customer](),
		entities:  NewInMemoryStore[*customer.Entity](),
	}
}

func copyCustomer(c *customer.Customer) *customer.Customer {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Metadata = lo.Assign(map[string]string{}, c.Metadata)
	return &cp
}

func copyEntity(e *customer.Entity) *customer.Entity {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

func (s *InMemoryCustomerStore) Create(ctx context.Context, c *customer.Customer) error {
	return s.customers.Create(ctx, c.ID, copyCustomer(c))
}

func (s *InMemoryCustomerStore) Get(ctx context.Context, id string) (*customer.Customer, error) {
	c, err := s.customers.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, c.BaseModel) || c.Status == types.StatusDeleted {
		return nil, ierr.NewError("customer not found").
			WithReportableDetails(map[string]any{"customer_id": id}).
			Mark(ierr.ErrCustomerNotFound)
	}
	return copyCustomer(c), nil
}

func (s *InMemoryCustomerStore) GetByExternalID(ctx context.Context, externalID string) (*customer.Customer, error) {
	filterFn := func(ctx context.Context, c *customer.Customer, _ interface{}) bool {
		return c.ExternalID == externalID && CheckTenantFilter(ctx, c.BaseModel) && c.Status != types.StatusDeleted
	}
	customers, err := s.customers.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, ierr.NewError("customer not found").
			WithReportableDetails(map[string]any{"external_id": externalID}).
			Mark(ierr.ErrCustomerNotFound)
	}
	return copyCustomer(customers[0]), nil
}

func (s *InMemoryCustomerStore) Update(ctx context.Context, c *customer.Customer) error {
	if err := s.customers.Update(ctx, c.ID, copyCustomer(c)); err != nil {
		return ierr.NewError("customer not found").
			WithReportableDetails(map[string]any{"customer_id": c.ID}).
			Mark(ierr.ErrCustomerNotFound)
	}
	return nil
}

func (s *InMemoryCustomerStore) Delete(ctx context.Context, id string) error {
	c, err := s.customers.Get(ctx, id)
	if err != nil {
		return ierr.NewError("customer not found").
			WithReportableDetails(map[string]any{"customer_id": id}).
			Mark(ierr.ErrCustomerNotFound)
	}
	deleted := copyCustomer(c)
	deleted.Status = types.StatusDeleted
	return s.customers.Update(ctx, id, deleted)
}

func (s *InMemoryCustomerStore) ListEntities(ctx context.Context, customerID string) ([]*customer.Entity, error) {
	return s.listEntities(ctx, customerID, false)
}

func (s *InMemoryCustomerStore) ListAllEntities(ctx context.Context, customerID string) ([]*customer.Entity, error) {
	return s.listEntities(ctx, customerID, true)
}

func (s *InMemoryCustomerStore) listEntities(ctx context.Context, customerID string, includeDeleted bool) ([]*customer.Entity, error) {
	filterFn := func(ctx context.Context, e *customer.Entity, _ interface{}) bool {
		if e.CustomerID != customerID || !CheckTenantFilter(ctx, e.BaseModel) {
			return false
		}
		return includeDeleted || !e.Deleted
	}
	sortFn := func(i, j *customer.Entity) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	}
	entities, err := s.entities.List(ctx, nil, filterFn, sortFn)
	if err != nil {
		return nil, err
	}
	return lo.Map(entities, func(e *customer.Entity, _ int) *customer.Entity {
		return copyEntity(e)
	}), nil
}

func (s *InMemoryCustomerStore) CreateEntity(ctx context.Context, e *customer.Entity) error {
	return s.entities.Create(ctx, e.ID, copyEntity(e))
}

func (s *InMemoryCustomerStore) UpdateEntity(ctx context.Context, e *customer.Entity) error {
	if err := s.entities.Update(ctx, e.ID, copyEntity(e)); err != nil {
		return ierr.NewError("entity not found").
			WithReportableDetails(map[string]any{"entity_id": e.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *InMemoryCustomerStore) Clear() {
	s.customers.Clear()
	s.entities.Clear()
}
