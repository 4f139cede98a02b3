package postgres

import (
	"time"

	"github.com/entbill/entbill/internal/config"
	"github.com/entbill/entbill/internal/domain/customer"
	"github.com/entbill/entbill/internal/domain/customerproduct"
	"github.com/entbill/entbill/internal/domain/feature"
	"github.com/entbill/entbill/internal/domain/product"
	ierr "github.com/entbill/entbill/internal/errors"
	"github.com/entbill/entbill/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewDB opens the postgres connection pool used by all repositories.
func NewDB(cfg *config.Configuration, log *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Postgres.GetDSN()), &gorm.Config{})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to postgres").
			WithReportableDetails(map[string]any{
				"host":   cfg.Postgres.Host,
				"port":   cfg.Postgres.Port,
				"dbname": cfg.Postgres.DBName,
			}).
			Mark(ierr.ErrDatabase)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetimeMinutes) * time.Minute)

	if cfg.Postgres.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
		log.Infow("ran database migrations")
	}

	return db, nil
}

// Migrate creates or updates the schema for all persisted aggregates.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&customer.Customer{},
		&customer.Entity{},
		&feature.Feature{},
		&product.Product{},
		&product.Entitlement{},
		&product.Price{},
		&product.FreeTrial{},
		&customerproduct.CustomerProduct{},
		&customerproduct.CustomerEntitlement{},
		&customerproduct.CustomerPrice{},
		&customerproduct.Replaceable{},
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Schema migration failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
