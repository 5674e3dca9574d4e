// Package database provides persistence for the idx-flow pipeline.
//
// This package includes:
//   - GORM/PostgreSQL connection used by the run tracker and the object store
//   - A raw lib/pq pool used for the instrument directory query
//   - Typed errors shared by repositories
//
// Data Models:
//
//	All data models (PipelineRun, ObjectBlob, Instrument) are defined in the models_pkg package
//	so that storage and tracker can import them without importing each other.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "idx-flow/database/models_pkg"
)

// Database holds the GORM database connection.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Wrap adopts an existing gorm handle.
func Wrap(db *gorm.DB) *Database {
	return &Database{db: db}
}

// InitSchema auto-migrates the pipeline tables.
func (d *Database) InitSchema() error {
	if err := d.db.AutoMigrate(&PipelineRun{}, &ObjectBlob{}, &Instrument{}); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type PipelineRun = models.PipelineRun
type ObjectBlob = models.ObjectBlob
type Instrument = models.Instrument
