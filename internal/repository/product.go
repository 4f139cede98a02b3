package repository

import (
	"context"
	"errors"

	"github.com/entbill/entbill/internal/domain/product"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/types"
	"gorm.io/gorm"
)

type productRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductRepository(db *gorm.DB, log *logger.Logger) product.Repository {
	return &productRepository{db: db, log: log}
}

func (r *productRepository) Create(ctx context.Context, p *product.Product) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create product").
			WithReportableDetails(map[string]any{"product_id": p.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, internalID string) (*product.Product, error) {
	var p product.Product
	err := scoped(ctx, r.db).
		Where("status = ?", types.StatusActive).
		First(&p, "internal_id = ?", internalID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("product not found").
				WithReportableDetails(map[string]any{"internal_id": internalID}).
				Mark(ierr.ErrProductNotFound)
		}
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return &p, nil
}

func (r *productRepository) GetByIDAndVersion(ctx context.Context, id string, version int) (*product.Product, error) {
	var p product.Product
	query := scoped(ctx, r.db).
		Where("status = ?", types.StatusActive).
		Where("id = ?", id)
	if version > 0 {
		query = query.Where("version = ?", version)
	} else {
		query = query.Order("version desc")
	}
	err := query.First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("product not found").
				WithReportableDetails(map[string]any{
					"product_id": id,
					"version":    version,
				}).
				Mark(ierr.ErrProductNotFound)
		}
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return &p, nil
}

func (r *productRepository) GetFull(ctx context.Context, internalID string) (*product.FullProduct, error) {
	p, err := r.Get(ctx, internalID)
	if err != nil {
		return nil, err
	}
	return r.loadFull(ctx, p)
}

func (r *productRepository) GetFullByIDAndVersion(ctx context.Context, id string, version int) (*product.FullProduct, error) {
	p, err := r.GetByIDAndVersion(ctx, id, version)
	if err != nil {
		return nil, err
	}
	return r.loadFull(ctx, p)
}

func (r *productRepository) loadFull(ctx context.Context, p *product.Product) (*product.FullProduct, error) {
	full := &product.FullProduct{Product: p}

	err := scoped(ctx, r.db).
		Where("product_internal_id = ? AND status = ?", p.InternalID, types.StatusActive).
		Order("created_at asc").
		Find(&full.Entitlements).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}

	err = scoped(ctx, r.db).
		Where("product_internal_id = ? AND status = ?", p.InternalID, types.StatusActive).
		Order("created_at asc").
		Find(&full.Prices).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}

	var trial product.FreeTrial
	err = scoped(ctx, r.db).
		Where("product_internal_id = ? AND status = ?", p.InternalID, types.StatusActive).
		First(&trial).Error
	if err == nil {
		full.FreeTrial = &trial
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}

	return full, nil
}

func (r *productRepository) ListDefault(ctx context.Context) ([]*product.FullProduct, error) {
	var products []*product.Product
	err := scoped(ctx, r.db).
		Where("is_default = true AND status = ?", types.StatusActive).
		Order("created_at asc").
		Find(&products).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}

	fulls := make([]*product.FullProduct, 0, len(products))
	for _, p := range products {
		full, err := r.loadFull(ctx, p)
		if err != nil {
			return nil, err
		}
		fulls = append(fulls, full)
	}
	return fulls, nil
}

func (r *productRepository) ListByGroup(ctx context.Context, group string) ([]*product.Product, error) {
	var products []*product.Product
	err := scoped(ctx, r.db).
		Where("product_group = ? AND status = ?", group, types.StatusActive).
		Order("created_at asc").
		Find(&products).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return products, nil
}

func (r *productRepository) Update(ctx context.Context, p *product.Product) error {
	res := scoped(ctx, r.db).
		Model(&product.Product{}).
		Where("internal_id = ?", p.InternalID).
		Select("*").
		Updates(p)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		return ierr.NewError("product not found").
			WithReportableDetails(map[string]any{"internal_id": p.InternalID}).
			Mark(ierr.ErrProductNotFound)
	}
	return nil
}

func (r *productRepository) Delete(ctx context.Context, internalID string) error {
	res := scoped(ctx, r.db).
		Model(&product.Product{}).
		Where("internal_id = ?", internalID).
		Update("status", types.StatusDeleted)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		return ierr.NewError("product not found").
			WithReportableDetails(map[string]any{"internal_id": internalID}).
			Mark(ierr.ErrProductNotFound)
	}
	return nil
}

func (r *productRepository) CreateEntitlement(ctx context.Context, e *product.Entitlement) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create entitlement").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *productRepository) CreatePrice(ctx context.Context, p *product.Price) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create price").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *productRepository) UpdatePrice(ctx context.Context, p *product.Price) error {
	res := scoped(ctx, r.db).
		Model(&product.Price{}).
		Where("internal_id = ?", p.InternalID).
		Select("*").
		Updates(p)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		return ierr.NewError("price not found").
			WithReportableDetails(map[string]any{"internal_id": p.InternalID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *productRepository) CreateFreeTrial(ctx context.Context, t *product.FreeTrial) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create free trial").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
