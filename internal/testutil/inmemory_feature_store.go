package testutil

import (
	"context"

	"github.com/entbill/entbill/internal/domain/feature"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/types"
	"github.com/samber/lo"
)

// InMemoryFeatureStore implements feature.Repository
type InMemoryFeatureStore struct {
	*InMemoryStore[*feature.Feature]
}

// NewInMemoryFeatureStore creates a new in-memory feature store
func NewInMemoryFeatureStore() *InMemoryFeatureStore {
	return &InMemoryFeatureStore{
		InMemoryStore: NewInMemoryStore[*feature.Feature](),
	}
}

func copyFeature(f *feature.Feature) *feature.Feature {
	if f == nil {
		return nil
	}
	cp := *f
	cp.CreditSchema = append([]feature.CreditSchemaItem(nil), f.CreditSchema...)
	return &cp
}

func (s *InMemoryFeatureStore) Create(ctx context.Context, f *feature.Feature) error {
	return s.InMemoryStore.Create(ctx, f.ID, copyFeature(f))
}

func (s *InMemoryFeatureStore) Get(ctx context.Context, id string) (*feature.Feature, error) {
	f, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, f.BaseModel) || f.Status == types.StatusDeleted {
		return nil, ierr.NewError("feature not found").
			WithReportableDetails(map[string]any{"feature_id": id}).
			Mark(ierr.ErrFeatureNotFound)
	}
	return copyFeature(f), nil
}

func (s *InMemoryFeatureStore) GetByLookupKey(ctx context.Context, lookupKey string) (*feature.Feature, error) {
	filterFn := func(ctx context.Context, f *feature.Feature, _ interface{}) bool {
		return f.LookupKey == lookupKey && CheckTenantFilter(ctx, f.BaseModel) && f.Status != types.StatusDeleted
	}
	features, err := s.InMemoryStore.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, ierr.NewError("feature not found").
			WithReportableDetails(map[string]any{"lookup_key": lookupKey}).
			Mark(ierr.ErrFeatureNotFound)
	}
	return copyFeature(features[0]), nil
}

func (s *InMemoryFeatureStore) List(ctx context.Context, ids []string) ([]*feature.Feature, error) {
	filterFn := func(ctx context.Context, f *feature.Feature, _ interface{}) bool {
		return lo.Contains(ids, f.ID) && CheckTenantFilter(ctx, f.BaseModel) && f.Status != types.StatusDeleted
	}
	features, err := s.InMemoryStore.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	return lo.Map(features, func(f *feature.Feature, _ int) *feature.Feature {
		return copyFeature(f)
	}), nil
}

func (s *InMemoryFeatureStore) ListAll(ctx context.Context) ([]*feature.Feature, error) {
	filterFn := func(ctx context.Context, f *feature.Feature, _ interface{}) bool {
		return CheckTenantFilter(ctx, f.BaseModel) && f.Status != types.StatusDeleted
	}
	sortFn := func(i, j *feature.Feature) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	}
	features, err := s.InMemoryStore.List(ctx, nil, filterFn, sortFn)
	if err != nil {
		return nil, err
	}
	return lo.Map(features, func(f *feature.Feature, _ int) *feature.Feature {
		return copyFeature(f)
	}), nil
}

func (s *InMemoryFeatureStore) Update(ctx context.Context, f *feature.Feature) error {
	if err := s.InMemoryStore.Update(ctx, f.ID, copyFeature(f)); err != nil {
		return ierr.NewError("feature not found").
			WithReportableDetails(map[string]any{"feature_id": f.ID}).
			Mark(ierr.ErrFeatureNotFound)
	}
	return nil
}

func (s *InMemoryFeatureStore) Delete(ctx context.Context, id string) error {
	f, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return ierr.NewError("feature not found").
			WithReportableDetails(map[string]any{"feature_id": id}).
			Mark(ierr.ErrFeatureNotFound)
	}
	deleted := copyFeature(f)
	deleted.Status = types.StatusDeleted
	return s.InMemoryStore.Update(ctx, id, deleted)
}
