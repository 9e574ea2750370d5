package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sahilchouksey/exam-parser/config"
	"github.com/sahilchouksey/exam-parser/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig sizes the sql.DB connection pool behind GORM
type PoolConfig struct {
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxIdle: 10, MaxOpen: 50, MaxLifetime: time.Hour}
}

// Storage is what the app needs from the database at startup and shutdown
type Storage interface {
	Init() error
	Close() error
	HealthCheck(ctx context.Context) error
	GetDB() *gorm.DB
}

// GORMStore is the PostgreSQL-backed Storage
type GORMStore struct {
	db *gorm.DB
}

var _ Storage = (*GORMStore)(nil)

// DSN renders the libpq key/value connection string for env
func DSN(env *config.EnvironmentVariable) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		env.DB_HOST, env.DB_PORT, env.DB_USER_NAME, env.DB_PASSWORD, env.DB_NAME, env.DB_SSL_MODE)
}

func logLevel(goEnv string) logger.LogLevel {
	switch goEnv {
	case "production":
		return logger.Error
	case "test":
		return logger.Silent
	}
	return logger.Warn
}

// StartGORM connects to PostgreSQL and sizes the connection pool
func StartGORM(env *config.EnvironmentVariable) (*GORMStore, error) {
	db, err := gorm.Open(postgres.Open(DSN(env)), &gorm.Config{
		Logger:      logger.Default.LogMode(logLevel(env.GO_ENV)),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to PostgreSQL: %w", err)
	}

	pool := DefaultPoolConfig()
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)

	log.Printf("Database: connected to %s@%s:%s/%s", env.DB_USER_NAME, env.DB_HOST, env.DB_PORT, env.DB_NAME)
	return &GORMStore{db: db}, nil
}

// Models lists every table owned by the service, in migration order
func Models() []interface{} {
	return []interface{}{&model.ExamPaper{}, &model.CronJobLog{}}
}

// Init creates or updates the tables of Models
func (s *GORMStore) Init() error {
	if err := s.db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate failed: %w", err)
	}
	log.Printf("Database: migrated %d models", len(Models()))
	return nil
}

func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	log.Println("Database: closing connection pool")
	return sqlDB.Close()
}

func (s *GORMStore) GetDB() *gorm.DB {
	return s.db
}

// HealthCheck pings the database within ctx
func (s *GORMStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
