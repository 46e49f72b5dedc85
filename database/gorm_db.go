package database

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/photodb/models"
)

// OpenGorm wraps an already opened connection in a GORM instance. It is used
// for schema management only; record traffic goes through the query builders.
func OpenGorm(sqlDB *sql.DB, dialect Dialect, log *zap.Logger) (*gorm.DB, error) {
	gormLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch dialect.Driver {
	case DriverSQLite:
		dialector = sqlite.New(sqlite.Config{Conn: sqlDB})
	case DriverPostgres:
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	case DriverMySQL:
		dialector = mysql.New(mysql.Config{Conn: sqlDB})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}
	return db, nil
}

// ResetSchema drops and recreates the picture and extra_data tables.
// Every stored record is lost.
func ResetSchema(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&models.ExtraData{}, &models.Picture{}); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	if err := db.AutoMigrate(&models.Picture{}, &models.ExtraData{}); err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	return nil
}

// EnsureSchema creates the tables when they are missing and leaves existing
// ones untouched.
func EnsureSchema(db *gorm.DB) (bool, error) {
	m := db.Migrator()
	if m.HasTable(&models.Picture{}) && m.HasTable(&models.ExtraData{}) {
		return false, nil
	}
	if err := db.AutoMigrate(&models.Picture{}, &models.ExtraData{}); err != nil {
		return false, fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	return true, nil
}
