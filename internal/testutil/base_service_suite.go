package testutil

import (
	"context"
	"time"

	"github.com/entbill/entbill/internal/cache"
	"github.com/entbill/entbill/internal/config"
	"github.com/entbill/entbill/internal/domain/customer"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/feature"
	"github.com/entbill/entbill/internal/domain/product"
	"github.com/entbill/entbill/internal/logger"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	CustomerRepo        customer.Repository
	FeatureRepo         feature.Repository
	ProductRepo         product.Repository
	CustomerProductRepo customerproduct.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	stores  Stores
	gateway *InMemoryGateway
	cache   cache.Cache
	logger  *logger.Logger
	config  *config.Configuration
	now     time.Time

	customerStore        *InMemoryCustomerStore
	featureStore         *InMemoryFeatureStore
	productStore         *InMemoryProductStore
	customerProductStore *InMemoryCustomerProductStore
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	cfg := config.GetDefaultConfig()
	s.config = cfg

	var err error
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.customerStore = NewInMemoryCustomerStore()
	s.featureStore = NewInMemoryFeatureStore()
	s.productStore = NewInMemoryProductStore()
	s.customerProductStore = NewInMemoryCustomerProductStore()
	s.gateway = NewInMemoryGateway()
	s.cache = cache.NewInMemoryCache()

	s.stores = Stores{
		CustomerRepo:        s.customerStore,
		FeatureRepo:         s.featureStore,
		ProductRepo:         s.productStore,
		CustomerProductRepo: s.customerProductStore,
	}
}

func (s *BaseServiceTestSuite) clearStores() {
	s.customerStore.Clear()
	s.featureStore.Clear()
	s.productStore.Clear()
	s.customerProductStore.Clear()
	s.gateway.Clear()
	s.cache.Flush(context.Background())
}

// GetContext returns the test context with tenant and environment set
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetStores returns the repository bundle
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetGateway returns the recording processor gateway
func (s *BaseServiceTestSuite) GetGateway() *InMemoryGateway {
	return s.gateway
}

// GetCache returns the test cache
func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetNow returns the timestamp pinned at test setup
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
