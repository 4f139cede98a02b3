package repository

import (
	"context"
	"errors"

	"github.com/entbill/entbill/internal/domain/customer"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/types"
	"gorm.io/gorm"
)

type customerRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCustomerRepository(db *gorm.DB, log *logger.Logger) customer.Repository {
	return &customerRepository{db: db, log: log}
}

func (r *customerRepository) Create(ctx context.Context, c *customer.Customer) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create customer").
			WithReportableDetails(map[string]any{"customer_id": c.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *customerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := scoped(ctx, r.db).
		Where("status = ?", types.StatusActive).
		First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("customer not found").
				WithReportableDetails(map[string]any{"customer_id": id}).
				Mark(ierr.ErrCustomerNotFound)
		}
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return &c, nil
}

func (r *customerRepository) GetByExternalID(ctx context.Context, externalID string) (*customer.Customer, error) {
	var c customer.Customer
	err := scoped(ctx, r.db).
		Where("status = ?", types.StatusActive).
		First(&c, "external_id = ?", externalID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewError("customer not found").
				WithReportableDetails(map[string]any{"external_id": externalID}).
				Mark(ierr.ErrCustomerNotFound)
		}
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return &c, nil
}

func (r *customerRepository) Update(ctx context.Context, c *customer.Customer) error {
	res := scoped(ctx, r.db).
		Model(&customer.Customer{}).
		Where("id = ?", c.ID).
		Select("*").
		Updates(c)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		return ierr.NewError("customer not found").
			WithReportableDetails(map[string]any{"customer_id": c.ID}).
			Mark(ierr.ErrCustomerNotFound)
	}
	return nil
}

func (r *customerRepository) Delete(ctx context.Context, id string) error {
	res := scoped(ctx, r.db).
		Model(&customer.Customer{}).
		Where("id = ?", id).
		Update("status", types.StatusDeleted)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		return ierr.NewError("customer not found").
			WithReportableDetails(map[string]any{"customer_id": id}).
			Mark(ierr.ErrCustomerNotFound)
	}
	return nil
}

func (r *customerRepository) ListEntities(ctx context.Context, customerID string) ([]*customer.Entity, error) {
	var entities []*customer.Entity
	err := scoped(ctx, r.db).
		Where("customer_id = ? AND deleted = false", customerID).
		Order("created_at asc").
		Find(&entities).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return entities, nil
}

func (r *customerRepository) ListAllEntities(ctx context.Context, customerID string) ([]*customer.Entity, error) {
	var entities []*customer.Entity
	err := scoped(ctx, r.db).
		Where("customer_id = ?", customerID).
		Order("created_at asc").
		Find(&entities).Error
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return entities, nil
}

func (r *customerRepository) CreateEntity(ctx context.Context, e *customer.Entity) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create entity").
			WithReportableDetails(map[string]any{"entity_id": e.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *customerRepository) UpdateEntity(ctx context.Context, e *customer.Entity) error {
	res := scoped(ctx, r.db).
		Model(&customer.Entity{}).
		Where("id = ?", e.ID).
		Select("*").
		Updates(e)
	if res.Error != nil {
		return ierr.WithError(res.Error).Mark(ierr.ErrDatabase)
	}
	if res.RowsAffected == 0 {
		return ierr.NewError("entity not found").
			WithReportableDetails(map[string]any{"entity_id": e.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
