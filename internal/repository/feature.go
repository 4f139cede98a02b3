package repository

import (
	"context"
	"errors"

	"github.com/entbill/entbill/internal/domain/feature"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/types"
	"gorm.io/gorm"
)

type featureRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeatureRepository(db *gorm.DB, log *logger.Logger) feature.Repository {
	return &featureRepository{db: db, log: log}
}

func (r *featureRepository) Create(ctx context.Context, f *feature.Feature) error {
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create feature").
			WithReportableDetails(map[string]any{"feature_id": f.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *featureRepository) Get(ctx context.Context, id string) (*feature.Feature, error) {
	var f feature.Feature
	err := scoped(ctx, r.db).
		Where("status = ?", types.StatusActive).
		First(&f, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("feature not found").
				WithReportableDetails(map[string]any{"feature_id": id}).
				Mark(ierr.ErrFeatureNotFound)
		}
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return &f, nil
}

func (r *featureRepository) GetByLookupKey(ctx context.Context, lookupKey string) (*feature.Feature, error) {
	var f feature.Feature
	err := scoped(ctx, r.db).
		Where("status = ?", types.StatusActive).
		First(&f, "lookup_key = ?", lookupKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("feature not found").
				WithReportableDetails(map[string]any{"lookup_key": lookupKey}).
				Mark(ierr.ErrFeatureNotFound)
		}
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return &f, nil
}

func (r *featureRepository) List(ctx context.Context, ids []string) ([]*feature.Feature, error) {
	var features []*feature.Feature
	err := scoped(ctx, r.db).
		Where("status = ?", types.StatusActive).
		Where("id IN ?", ids).
		Find(&features).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return features, nil
}

func (r *featureRepository) ListAll(ctx context.Context) ([]*feature.Feature, error) {
	var features []*feature.Feature
	err := scoped(ctx, r.db).
		Where("status = ?", types.StatusActive).
		Order("created_at asc").
		Find(&features).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return features, nil
}

func (r *featureRepository) Update(ctx context.Context, f *feature.Feature) error {
	res := scoped(ctx, r.db).
		Model(&feature.Feature{}).
		Where("id = ?", f.ID).
		Select("*").
		Updates(f)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		return ierr.NewError("feature not found").
			WithReportableDetails(map[string]any{"feature_id": f.ID}).
			Mark(ierr.ErrFeatureNotFound)
	}
	return nil
}

func (r *featureRepository) Delete(ctx context.Context, id string) error {
	res := scoped(ctx, r.db).
		Model(&feature.Feature{}).
		Where("id = ?", id).
		Update("status", types.StatusDeleted)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		return ierr.NewError("feature not found").
			WithReportableDetails(map[string]any{"feature_id": id}).
			Mark(ierr.ErrFeatureNotFound)
	}
	return nil
}
