package db

import (
	"fmt"
	"runtime"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"github.com/voltbridge/ocpp-gateway/internal/config"
	"github.com/voltbridge/ocpp-gateway/internal/db/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func MakeDB(cfg *config.Config) (db *gorm.DB, err error) {
	database := cfg.Persistence.Database
	switch database.Driver {
	case config.DatabaseDriverSQLite:
		db, err = gorm.Open(sqlite.Open(database.Database+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"), &gorm.Config{})
	case config.DatabaseDriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&%s",
			database.Username, database.Password, database.Host, database.Port, database.Database, database.ExtraParameters)
		db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	case config.DatabaseDriverPostgres:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d %s",
			database.Host, database.Username, database.Password, database.Database, database.Port, database.ExtraParameters)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unknown database driver: %s", database.Driver)
	}
	if err != nil {
		return db, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.HTTP.Tracing.Enabled {
		if err = db.Use(otelgorm.NewPlugin()); err != nil {
			return db, fmt.Errorf("failed to trace database: %w", err)
		}
	}

	err = db.AutoMigrate(
		&models.StationCredential{})
	if err != nil {
		return db, fmt.Errorf("failed to migrate database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return db, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxIdleConns(runtime.GOMAXPROCS(0))
	const connsPerCPU = 10
	sqlDB.SetMaxOpenConns(runtime.GOMAXPROCS(0) * connsPerCPU)
	const maxIdleTime = 10 * time.Minute
	sqlDB.SetConnMaxIdleTime(maxIdleTime)

	return
}
