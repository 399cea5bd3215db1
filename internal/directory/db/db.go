package db

import (
	"context"
	"fmt"
	"time"

	"github.com/NiKuma0/secunda-tz/internal/directory/db/models"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// DSN, when set, is used instead of the fields above.
	DSN string

	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnectRetries     uint64
	SlowQueryThreshold time.Duration
}

// ConnString returns the libpq style connection string.
func (c *Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NewRepository connects to Postgres, retrying with exponential backoff, and
// applies the pool limits from cfg. Schema migration is a separate step, see
// Migrate.
func NewRepository(ctx context.Context, cfg *Config, logger *zap.Logger) (*Repository, error) {
	gormCfg := &gorm.Config{
		Logger: NewGormLogger(logger.Named("gorm"), cfg.SlowQueryThreshold),
	}

	var gdb *gorm.DB
	connect := func() error {
		var err error
		gdb, err = gorm.Open(postgres.Open(cfg.ConnString()), gormCfg)
		if err != nil {
			logger.Warn("database not ready", zap.Error(err))
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.ConnectRetries),
		ctx,
	)
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return New(gdb, logger)
}

// New wraps an open gorm handle. Any dialect works for the relational
// queries; the geographic and full-text ones need Postgres with PostGIS.
func New(gdb *gorm.DB, logger *zap.Logger) (*Repository, error) {
	if err := models.Register(gdb); err != nil {
		return nil, fmt.Errorf("failed to register join tables: %w", err)
	}
	return &Repository{db: gdb, logger: logger}, nil
}

// Migrate creates or updates the schema. See migrate.go.
func (r *Repository) Migrate(ctx context.Context) error {
	return Migrate(ctx, r.db, r.logger)
}

// Ping checks that the pool can reach the database.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return translateError(result.Error)
	}
	return nil
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
