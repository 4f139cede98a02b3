package main

import (
	"log"

	"github.com/entbill/entbill/internal/config"
	"github.com/entbill/entbill/internal/logger"
	"github.com/entbill/entbill/internal/postgres"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logr, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logr.Infow("connecting to database", "host", cfg.Postgres.Host, "database", cfg.Postgres.DBName)

	db, err := postgres.NewDB(cfg, logr)
	if err != nil {
		logr.Fatalf("Failed to connect to database: %v", err)
	}

	if err := postgres.Migrate(db); err != nil {
		logr.Fatalf("Failed to run migrations: %v", err)
	}

	logr.Infow("migrations applied")
}
