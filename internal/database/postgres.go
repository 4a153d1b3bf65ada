// internal/database/postgres.go
package database

import (
	"fmt"

	"tpv-fleet/internal/config"
	"tpv-fleet/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func NewPostgresDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Terminal{},
		&models.CommandRecord{},
		&models.PurchaseOrder{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
