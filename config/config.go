package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when -c is not provided.
	DefaultConfigPath = "/usr/local/etc/photodb.yml"

	DefaultJournalPath  = "~/.photodb_records"
	DefaultErrorLogPath = "~/photodb_errors.log"
	DefaultLogLevel     = "info"
)

const (
	defaultDriver          = "sqlite"
	defaultSQLitePath      = "~/.photodb.sqlite"
	defaultPostgresPort    = 5432
	defaultMySQLPort       = 3306
	defaultOpenCageURL     = "https://api.opencagedata.com"
	defaultOpenCageTimeout = 30 * time.Second
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, postgres or mysql
	DSN      string `yaml:"dsn"`    // takes precedence over the discrete fields
	Path     string `yaml:"path"`   // sqlite only
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"` // postgres only
}

type OpenCageConfig struct {
	APIKey  string        `yaml:"apikey"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	ErrorLog string `yaml:"error_log"`
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	OpenCage OpenCageConfig `yaml:"opencage"`
	Journal  JournalConfig  `yaml:"journal"`
	Log      LogConfig      `yaml:"log"`

	// file the values were read from, empty when only defaults and
	// environment were used
	Source string `yaml:"-"`
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) (int, error) {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		return 0, fmt.Errorf("invalid %s '%s'", envVar, valStr)
	}
	return val, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{Driver: defaultDriver},
		OpenCage: OpenCageConfig{BaseURL: defaultOpenCageURL, Timeout: defaultOpenCageTimeout},
		Journal:  JournalConfig{Path: DefaultJournalPath},
		Log:      LogConfig{Level: DefaultLogLevel, ErrorLog: DefaultErrorLogPath},
	}
}

// Load reads the YAML file at path, then applies PHOTODB_* environment
// overrides. A missing file is only tolerated for the default path.
func Load(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(ExpandHome(path))
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
		}
		cfg.Source = path
	case errors.Is(err, fs.ErrNotExist) && path == DefaultConfigPath:
		// environment only
	default:
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	db := &cfg.Database
	db.Driver = getEnvOrDefault("PHOTODB_DB_DRIVER", db.Driver)
	db.DSN = getEnvOrDefault("PHOTODB_DB_DSN", db.DSN)
	db.Path = getEnvOrDefault("PHOTODB_DB_PATH", db.Path)
	db.Host = getEnvOrDefault("PHOTODB_DB_HOST", db.Host)
	db.User = getEnvOrDefault("PHOTODB_DB_USER", db.User)
	db.Password = getEnvOrDefault("PHOTODB_DB_PASSWORD", db.Password)
	db.DBName = getEnvOrDefault("PHOTODB_DB_NAME", db.DBName)
	db.SSLMode = getEnvOrDefault("PHOTODB_DB_SSLMODE", db.SSLMode)
	port, err := getEnvIntOrDefault("PHOTODB_DB_PORT", db.Port)
	if err != nil {
		return err
	}
	db.Port = port

	cfg.OpenCage.APIKey = getEnvOrDefault("PHOTODB_OPENCAGE_KEY", cfg.OpenCage.APIKey)
	cfg.OpenCage.BaseURL = getEnvOrDefault("PHOTODB_OPENCAGE_URL", cfg.OpenCage.BaseURL)
	if v := os.Getenv("PHOTODB_OPENCAGE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PHOTODB_OPENCAGE_TIMEOUT '%s': %w", v, err)
		}
		cfg.OpenCage.Timeout = d
	}

	cfg.Journal.Path = getEnvOrDefault("PHOTODB_JOURNAL", cfg.Journal.Path)
	cfg.Log.Level = getEnvOrDefault("PHOTODB_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.ErrorLog = getEnvOrDefault("PHOTODB_ERROR_LOG", cfg.Log.ErrorLog)
	return nil
}

func applyDefaults(cfg *Config) {
	db := &cfg.Database
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	switch db.Driver {
	case "postgresql", "pg":
		db.Driver = "postgres"
	case "sqlite3":
		db.Driver = "sqlite"
	}

	if db.Port == 0 {
		switch db.Driver {
		case "postgres":
			db.Port = defaultPostgresPort
		case "mysql":
			db.Port = defaultMySQLPort
		}
	}
	if db.Host == "" && db.Driver != "sqlite" {
		db.Host = "localhost"
	}
	if db.Driver == "sqlite" && db.Path == "" && db.DSN == "" {
		db.Path = defaultSQLitePath
	}
	db.Path = ExpandHome(db.Path)

	if cfg.OpenCage.Timeout <= 0 {
		cfg.OpenCage.Timeout = defaultOpenCageTimeout
	}
	if cfg.OpenCage.BaseURL == "" {
		cfg.OpenCage.BaseURL = defaultOpenCageURL
	}
	cfg.Journal.Path = ExpandHome(cfg.Journal.Path)
	cfg.Log.ErrorLog = ExpandHome(cfg.Log.ErrorLog)
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	db := c.Database
	switch db.Driver {
	case "sqlite":
	case "postgres", "mysql":
		if db.DSN == "" && db.DBName == "" {
			return fmt.Errorf("database.dbname or database.dsn is required for %s", db.Driver)
		}
		if db.Port < 1 || db.Port > 65535 {
			return fmt.Errorf("invalid database.port %d, expected 1-65535", db.Port)
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", db.Driver)
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("journal.path must not be empty")
	}
	return nil
}
