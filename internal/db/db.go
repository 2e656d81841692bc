package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parking-display-backend/config"
	"parking-display-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	if cfg.EnableRangeGuard {
		log.Println("Range guard enabled, applying reservation exclusion DDL...")
		if err := applyRangeGuardDDL(db); err != nil {
			log.Printf("Warning: failed to apply range guard DDL: %v. Continuing without it.", err)
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate creates or updates the schema for all models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Space{},
		&model.Reservation{},
		&model.OccupancySnapshot{},
		&model.Override{},
		&model.DownlinkItem{},
		&model.DownlinkCursor{},
		&model.TenantPolicy{},
	)
}

// applyRangeGuardDDL adds a Postgres exclusion constraint so that two ACTIVE
// reservations for the same space can never hold overlapping [start, end)
// ranges, regardless of which process inserts them.
func applyRangeGuardDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS btree_gist;",

		"ALTER TABLE reservations " +
			"ADD CONSTRAINT reservations_no_active_overlap " +
			"EXCLUDE USING GIST (space_id WITH =, tstzrange(start_time, end_time, '[)') WITH &&) " +
			"WHERE (status = 'ACTIVE');",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
