// Package config loads the service settings from a YAML file, a .env file
// and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/NiKuma0/secunda-tz/internal/directory/db"
	e "github.com/NiKuma0/secunda-tz/internal/directory/errors"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the service looks for its YAML file when none is given.
const DefaultPath = "internal/directory/config/config.yaml"

// Config mirrors the YAML file. Every key can also be set through the
// environment variable of the same name.
type Config struct {
	HTTPPort int `yaml:"HTTP_PORT"`
	GRPCPort int `yaml:"GRPC_PORT"`

	DBHost            string        `yaml:"DB_HOST"`
	DBPort            int           `yaml:"DB_PORT"`
	DBUser            string        `yaml:"DB_USER"`
	DBPassword        string        `yaml:"DB_PASSWORD"`
	DBName            string        `yaml:"DB_NAME"`
	DBSSLMode         string        `yaml:"DB_SSLMODE"`
	DBMaxOpenConns    int           `yaml:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `yaml:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `yaml:"DB_CONN_MAX_LIFETIME"`
	DBConnectRetries  uint64        `yaml:"DB_CONNECT_RETRIES"`
	DBSlowQuery       time.Duration `yaml:"DB_SLOW_QUERY"`
	// PostgresDSN replaces the DB_* connection fields when set.
	PostgresDSN string `yaml:"POSTGRES_DSN"`

	AutoMigrate     bool          `yaml:"AUTO_MIGRATE"`
	LogLevel        string        `yaml:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `yaml:"SHUTDOWN_TIMEOUT"`
}

// Default returns the settings used when neither the file nor the
// environment says otherwise.
func Default() *Config {
	return &Config{
		HTTPPort:          8080,
		GRPCPort:          9090,
		DBHost:            "localhost",
		DBPort:            5432,
		DBUser:            "postgres",
		DBPassword:        "postgres",
		DBName:            "directory",
		DBSSLMode:         "disable",
		DBMaxOpenConns:    20,
		DBMaxIdleConns:    10,
		DBConnMaxLifetime: 30 * time.Minute,
		DBConnectRetries:  5,
		DBSlowQuery:       200 * time.Millisecond,
		AutoMigrate:       true,
		LogLevel:          "info",
		ShutdownTimeout:   5 * time.Second,
	}
}

// Load reads path on top of the defaults, then applies the environment.
// envFiles are loaded with godotenv first (".env" when none are given);
// missing files are skipped, as is a missing YAML file.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: reading %s: %v", e.ErrInvalidConfig, f, err)
		}
	}

	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", e.ErrInvalidConfig, path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBSSLMode = getEnv("DB_SSLMODE", c.DBSSLMode)
	c.PostgresDSN = getEnv("POSTGRES_DSN", c.PostgresDSN)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	var err error
	for _, v := range []struct {
		key string
		dst *int
	}{
		{"HTTP_PORT", &c.HTTPPort},
		{"GRPC_PORT", &c.GRPCPort},
		{"DB_PORT", &c.DBPort},
		{"DB_MAX_OPEN_CONNS", &c.DBMaxOpenConns},
		{"DB_MAX_IDLE_CONNS", &c.DBMaxIdleConns},
	} {
		if *v.dst, err = getEnvInt(v.key, *v.dst); err != nil {
			return err
		}
	}
	for _, v := range []struct {
		key string
		dst *time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", &c.DBConnMaxLifetime},
		{"DB_SLOW_QUERY", &c.DBSlowQuery},
		{"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout},
	} {
		if *v.dst, err = getEnvDuration(v.key, *v.dst); err != nil {
			return err
		}
	}
	if s := os.Getenv("DB_CONNECT_RETRIES"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: DB_CONNECT_RETRIES=%q", e.ErrInvalidConfig, s)
		}
		c.DBConnectRetries = n
	}
	if s := os.Getenv("AUTO_MIGRATE"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("%w: AUTO_MIGRATE=%q", e.ErrInvalidConfig, s)
		}
		c.AutoMigrate = b
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	for name, port := range map[string]int{"HTTP_PORT": c.HTTPPort, "GRPC_PORT": c.GRPCPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%w: %s must be in 1..65535, got %d", e.ErrInvalidConfig, name, port)
		}
	}
	if c.HTTPPort == c.GRPCPort {
		return fmt.Errorf("%w: HTTP_PORT and GRPC_PORT must differ", e.ErrInvalidConfig)
	}
	if c.PostgresDSN == "" {
		if c.DBHost == "" || c.DBName == "" {
			return fmt.Errorf("%w: DB_HOST and DB_NAME are required without POSTGRES_DSN", e.ErrInvalidConfig)
		}
		if c.DBPort < 1 || c.DBPort > 65535 {
			return fmt.Errorf("%w: DB_PORT must be in 1..65535, got %d", e.ErrInvalidConfig, c.DBPort)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LOG_LEVEL.
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("%w: LOG_LEVEL: %v", e.ErrInvalidConfig, err)
	}
	return lvl, nil
}

// DBConfig converts the settings into repository options.
func (c *Config) DBConfig() *db.Config {
	return &db.Config{
		Host:               c.DBHost,
		Port:               c.DBPort,
		User:               c.DBUser,
		Password:           c.DBPassword,
		DBName:             c.DBName,
		SSLMode:            c.DBSSLMode,
		DSN:                c.PostgresDSN,
		MaxOpenConns:       c.DBMaxOpenConns,
		MaxIdleConns:       c.DBMaxIdleConns,
		ConnMaxLifetime:    c.DBConnMaxLifetime,
		ConnectRetries:     c.DBConnectRetries,
		SlowQueryThreshold: c.DBSlowQuery,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", e.ErrInvalidConfig, key, value)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a duration", e.ErrInvalidConfig, key, value)
	}
	return d, nil
}
