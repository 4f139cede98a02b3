package repository

import (
	"context"
	"errors"
	"time"

	"github.com/entbill/entbill/internal/domain/customerproduct"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/types"
	"gorm.io/gorm"
)

type customerProductRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCustomerProductRepository(db *gorm.DB, log *logger.Logger) customerproduct.Repository {
	return &customerProductRepository{db: db, log: log}
}

func (r *customerProductRepository) Create(ctx context.Context, cp *customerproduct.CustomerProduct) error {
	if err := r.db.WithContext(ctx).Create(cp).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create customer product").
			WithReportableDetails(map[string]any{"customer_product_id": cp.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *customerProductRepository) Get(ctx context.Context, id string) (*customerproduct.CustomerProduct, error) {
	var cp customerproduct.CustomerProduct
	err := scoped(ctx, r.db).First(&cp, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("customer product not found").
				WithReportableDetails(map[string]any{"customer_product_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return &cp, nil
}

func (r *customerProductRepository) ListByCustomer(ctx context.Context, customerID string) ([]*customerproduct.CustomerProduct, error) {
	var cps []*customerproduct.CustomerProduct
	err := scoped(ctx, r.db).
		Where("customer_id = ?", customerID).
		Where("product_status IN ?", types.RelevantCustomerProductStatuses).
		Order("created_at asc").
		Find(&cps).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return cps, nil
}

func (r *customerProductRepository) ListAllByCustomer(ctx context.Context, customerID string) ([]*customerproduct.CustomerProduct, error) {
	var cps []*customerproduct.CustomerProduct
	err := scoped(ctx, r.db).
		Where("customer_id = ?", customerID).
		Order("created_at asc").
		Find(&cps).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return cps, nil
}

// Update persists the row only when the caller holds the current resource
// version, surfacing concurrent updates as conflicts for retry.
func (r *customerProductRepository) Update(ctx context.Context, cp *customerproduct.CustomerProduct) error {
	currentVersion := cp.ResourceVersion
	cp.ResourceVersion++
	cp.UpdatedAt = time.Now().UTC()

	res := scoped(ctx, r.db).
		Model(&customerproduct.CustomerProduct{}).
		Where("id = ? AND resource_version = ?", cp.ID, currentVersion).
		Select("*").
		Updates(cp)
	if res.Error != nil {
		cp.ResourceVersion = currentVersion
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		cp.ResourceVersion = currentVersion
		return ierr.NewError("customer product was modified concurrently").
			WithHint("Reload the customer product and retry the operation").
			WithReportableDetails(map[string]any{
				"customer_product_id": cp.ID,
				"resource_version":    currentVersion,
			}).
			Mark(ierr.ErrVersionConflict)
	}
	return nil
}

func (r *customerProductRepository) Delete(ctx context.Context, id string) error {
	res := scoped(ctx, r.db).Delete(&customerproduct.CustomerProduct{}, "id = ?", id)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *customerProductRepository) CreateEntitlement(ctx context.Context, ce *customerproduct.CustomerEntitlement) error {
	if err := r.db.WithContext(ctx).Create(ce).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create customer entitlement").
			WithReportableDetails(map[string]any{"customer_entitlement_id": ce.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *customerProductRepository) GetEntitlement(ctx context.Context, id string) (*customerproduct.CustomerEntitlement, error) {
	var ce customerproduct.CustomerEntitlement
	err := scoped(ctx, r.db).First(&ce, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("customer entitlement not found").
				WithReportableDetails(map[string]any{"customer_entitlement_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return &ce, nil
}

func (r *customerProductRepository) ListEntitlementsByCustomer(ctx context.Context, customerID string) ([]*customerproduct.CustomerEntitlement, error) {
	var ents []*customerproduct.CustomerEntitlement
	err := scoped(ctx, r.db).
		Where("customer_id = ?", customerID).
		Order("created_at asc").
		Find(&ents).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return ents, nil
}

func (r *customerProductRepository) ListEntitlementsByProduct(ctx context.Context, customerProductID string) ([]*customerproduct.CustomerEntitlement, error) {
	var ents []*customerproduct.CustomerEntitlement
	err := scoped(ctx, r.db).
		Where("customer_product_id = ?", customerProductID).
		Order("created_at asc").
		Find(&ents).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return ents, nil
}

func (r *customerProductRepository) UpdateEntitlement(ctx context.Context, ce *customerproduct.CustomerEntitlement) error {
	ce.UpdatedAt = time.Now().UTC()
	res := scoped(ctx, r.db).
		Model(&customerproduct.CustomerEntitlement{}).
		Where("id = ?", ce.ID).
		Select("*").
		Updates(ce)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		return ierr.NewError("customer entitlement not found").
			WithReportableDetails(map[string]any{"customer_entitlement_id": ce.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *customerProductRepository) DeleteEntitlement(ctx context.Context, id string) error {
	res := scoped(ctx, r.db).Delete(&customerproduct.CustomerEntitlement{}, "id = ?", id)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *customerProductRepository) CreateCustomerPrice(ctx context.Context, cprice *customerproduct.CustomerPrice) error {
	if err := r.db.WithContext(ctx).Create(cprice).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create customer price").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *customerProductRepository) ListCustomerPrices(ctx context.Context, customerProductID string) ([]*customerproduct.CustomerPrice, error) {
	var cprices []*customerproduct.CustomerPrice
	err := scoped(ctx, r.db).
		Where("customer_product_id = ?", customerProductID).
		Order("created_at asc").
		Find(&cprices).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return cprices, nil
}

func (r *customerProductRepository) DeleteCustomerPrice(ctx context.Context, id string) error {
	res := scoped(ctx, r.db).Delete(&customerproduct.CustomerPrice{}, "id = ?", id)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *customerProductRepository) CreateReplaceable(ctx context.Context, rep *customerproduct.Replaceable) error {
	if err := r.db.WithContext(ctx).Create(rep).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create replaceable").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *customerProductRepository) ListReplaceables(ctx context.Context, customerEntitlementID string) ([]*customerproduct.Replaceable, error) {
	var reps []*customerproduct.Replaceable
	err := scoped(ctx, r.db).
		Where("customer_entitlement_id = ?", customerEntitlementID).
		Order("created_at asc").
		Find(&reps).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return reps, nil
}

func (r *customerProductRepository) DeleteReplaceable(ctx context.Context, id string) error {
	res := scoped(ctx, r.db).Delete(&customerproduct.Replaceable{}, "id = ?", id)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	return nil
}
