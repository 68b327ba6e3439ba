// internal/infrastructure/persistence/postgres/database/database_service.go
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sports-fixtures-bot/internal/infrastructure/config"
	"sports-fixtures-bot/internal/infrastructure/persistence/postgres"
	"sports-fixtures-bot/pkg/logger"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DatabaseService сервис для работы с базой данных.
// Архив телеметрии опционален: при DB_ENABLED=false сервис не создаётся,
// кэш остаётся единственным хранилищем.
type DatabaseService struct {
	config config.DatabaseConfig
	db     *sqlx.DB
	mu     sync.RWMutex
	state  ServiceState
}

// ServiceState состояние сервиса
type ServiceState string

const (
	StateStopped  ServiceState = "stopped"
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateError    ServiceState = "error"
)

// NewDatabaseService создает новый сервис базы данных
func NewDatabaseService(cfg config.DatabaseConfig) *DatabaseService {
	return &DatabaseService{
		config: cfg,
		state:  StateStopped,
	}
}

// Start запускает сервис базы данных
func (ds *DatabaseService) Start() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.state == StateRunning {
		return fmt.Errorf("database service already running")
	}

	logger.Info("🔄 [DB] Подключаемся к Postgres: %s:%d/%s", ds.config.Host, ds.config.Port, ds.config.Name)
	ds.state = StateStarting

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ds.config.Host, ds.config.Port, ds.config.User, ds.config.Password, ds.config.Name, ds.config.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		ds.state = StateError
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(ds.config.MaxOpenConns)
	db.SetMaxIdleConns(ds.config.MaxIdleConns)
	db.SetConnMaxLifetime(ds.config.MaxConnLifetime)
	db.SetConnMaxIdleTime(ds.config.MaxConnIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		ds.state = StateError
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Схема приводится к актуальной до того, как репозитории
	// начнут писать
	if err := postgres.NewMigrator(db).Migrate(); err != nil {
		db.Close()
		ds.state = StateError
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	ds.db = db
	ds.state = StateRunning
	logger.Info("✅ [DB] Подключение к Postgres установлено")

	return nil
}

// Stop останавливает сервис базы данных
func (ds *DatabaseService) Stop() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.db != nil {
		if err := ds.db.Close(); err != nil {
			ds.state = StateError
			return fmt.Errorf("failed to close database: %w", err)
		}
		ds.db = nil
	}
	ds.state = StateStopped
	logger.Info("🛑 [DB] Сервис базы данных остановлен")
	return nil
}

// GetDB возвращает соединение с базой
func (ds *DatabaseService) GetDB() *sqlx.DB {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.db
}

// State возвращает состояние сервиса
func (ds *DatabaseService) State() ServiceState {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.state
}

// HealthCheck проверяет живость соединения
func (ds *DatabaseService) HealthCheck() bool {
	ds.mu.RLock()
	db := ds.db
	state := ds.state
	ds.mu.RUnlock()

	if state != StateRunning || db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	return db.PingContext(ctx) == nil
}
