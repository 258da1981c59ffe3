package database

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"payment-engine/internal/config"
	"payment-engine/internal/logger"
	"payment-engine/internal/models"
)

// Connect opens the transaction database for the configured driver.
// TranslateError maps driver-specific unique violations to gorm.ErrDuplicatedKey,
// which the repository relies on for idempotent creation.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)
		dialector = mysql.Open(dsn)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
		)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("database.Connect: unsupported driver %q", cfg.DBDriver)
	}

	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("database.Connect: %w", err)
	}

	logger.Logger.Info().Str("driver", cfg.DBDriver).Msg("Database connection established")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Transaction{},
		&models.CallbackLog{},
		&models.GatewayCredential{},
	)
	if err != nil {
		return fmt.Errorf("database.Migrate: %w", err)
	}
	logger.Logger.Info().Msg("Database migration completed")
	return nil
}
