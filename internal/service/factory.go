package service

import (
	"github.com/entbill/entbill/internal/cache"
	"github.com/entbill/entbill/internal/config"
	"github.com/entbill/entbill/internal/domain/customer"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/feature"
	"github.com/entbill/entbill/internal/domain/product"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/processor"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	Cache  cache.Cache

	// Repositories
	CustomerRepo        customer.Repository
	FeatureRepo         feature.Repository
	ProductRepo         product.Repository
	CustomerProductRepo customerproduct.Repository

	// Processor gateway
	Gateway processor.Gateway
}

// NewServiceParams builds the common dependency bundle passed to every
// service constructor.
func NewServiceParams(
	log *logger.Logger,
	cfg *config.Configuration,
	cacheClient cache.Cache,
	customerRepo customer.Repository,
	featureRepo feature.Repository,
	productRepo product.Repository,
	customerProductRepo customerproduct.Repository,
	gateway processor.Gateway,
) ServiceParams {
	return ServiceParams{
		Logger:              log,
		Config:              cfg,
		Cache:               cacheClient,
		CustomerRepo:        customerRepo,
		FeatureRepo:         featureRepo,
		ProductRepo:         productRepo,
		CustomerProductRepo: customerProductRepo,
		Gateway:             gateway,
	}
}
