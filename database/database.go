package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	mysqldriver "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/camden-git/photodb/config"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect captures the per-driver differences the queries care about.
type Dialect struct {
	Driver    string
	builder   sq.StatementBuilderType
	returning bool
}

// NewDialect returns the dialect for a configured driver name.
func NewDialect(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite:
		return Dialect{Driver: driver, builder: sq.StatementBuilder.PlaceholderFormat(sq.Question), returning: true}, nil
	case DriverPostgres:
		return Dialect{Driver: driver, builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar), returning: true}, nil
	case DriverMySQL:
		return Dialect{Driver: driver, builder: sq.StatementBuilder.PlaceholderFormat(sq.Question)}, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d Dialect) sql() sq.StatementBuilderType {
	return d.builder
}

// dataSource returns the database/sql driver name and DSN for cfg
func dataSource(cfg config.DatabaseConfig) (string, string, error) {
	switch cfg.Driver {
	case DriverSQLite:
		if cfg.DSN != "" {
			return "sqlite3", cfg.DSN, nil
		}
		if cfg.Path == "" {
			return "", "", fmt.Errorf("sqlite database requires a path")
		}
		return "sqlite3", cfg.Path, nil

	case DriverPostgres:
		if cfg.DSN != "" {
			return "pgx", cfg.DSN, nil
		}
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)
		return "pgx", dsn, nil

	case DriverMySQL:
		if cfg.DSN != "" {
			return "mysql", cfg.DSN, nil
		}
		mc := mysqldriver.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		return "mysql", mc.FormatDSN(), nil
	}
	return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Open connects to the configured store and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*sql.DB, Dialect, error) {
	dialect, err := NewDialect(cfg.Driver)
	if err != nil {
		return nil, Dialect{}, err
	}
	driverName, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, Dialect{}, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// one connection: the pipeline is serial and an in-memory database
		// must not be split across connections
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			log.Warn("database: failed to set WAL mode", zap.Error(err))
		}
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, Dialect{}, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database: connected", zap.String("driver", cfg.Driver))
	return db, dialect, nil
}
