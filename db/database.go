package db

import (
	"database/sql"
	"fmt"

	"soundscape/config"
	"soundscape/logger"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes the primary database connection.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to the database")
	return nil
}

// InitDB creates the ledger tables if they don't exist. Purchases and claims
// are migrated separately through GORM.
func InitDB() error {
	if err := createEntitlementsTable(); err != nil {
		return err
	}
	if err := createExportJobsTable(); err != nil {
		return err
	}
	logger.Info("ledger schema initialized")
	return nil
}

func createEntitlementsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS entitlements (
		id VARCHAR(36) PRIMARY KEY,
		device_id_hash CHAR(64) NOT NULL UNIQUE,
		credits_remaining INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create entitlements table: %w", err)
	}
	return nil
}

func createExportJobsTable() error {
	// idempotency_key is nullable: jobs started without a key must not
	// collide on the unique constraint.
	query := `
	CREATE TABLE IF NOT EXISTS export_jobs (
		id VARCHAR(36) PRIMARY KEY,
		device_id CHAR(64) NOT NULL,
		idempotency_key VARCHAR(191) NULL,
		duration_minutes INT NOT NULL,
		seed VARCHAR(191) NOT NULL,
		credits_cost INT NOT NULL,
		status VARCHAR(16) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP NULL,
		CONSTRAINT uq_device_idempotency UNIQUE (device_id, idempotency_key),
		INDEX idx_jobs_device (device_id)
	);
	`
	if _, err := DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create export_jobs table: %w", err)
	}
	return nil
}
