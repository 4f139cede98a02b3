package repository

import (
	"context"

	"github.com/entbill/entbill/internal/domain/customer"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/feature"
	"github.com/entbill/entbill/internal/domain/product"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/types"
	"gorm.io/gorm"
)

// Repositories bundles the persistent stores handed to the service layer.
type Repositories struct {
	Customer        customer.Repository
	Feature         feature.Repository
	Product         product.Repository
	CustomerProduct customerproduct.Repository
}

func NewRepositories(db *gorm.DB, log *logger.Logger) *Repositories {
	return &Repositories{
		Customer:        NewCustomerRepository(db, log),
		Feature:         NewFeatureRepository(db, log),
		Product:         NewProductRepository(db, log),
		CustomerProduct: NewCustomerProductRepository(db, log),
	}
}

// scoped applies context propagation and tenant/environment filtering to a
// query. Every repository call goes through it.
func scoped(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).
		Where("tenant_id = ?", types.GetTenantID(ctx)).
		Where("environment_id = ?", types.GetEnvironmentID(ctx))
}
