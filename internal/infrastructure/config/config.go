// /internal/infrastructure/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ============================================
// КОНФИГУРАЦИЯ БАЗЫ ДАННЫХ
// ============================================

// DatabaseConfig - конфигурация базы данных (архив истории префетча)
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	// Включение/отключение БД: кэш остаётся источником истины,
	// архив в Postgres опционален
	Enabled bool

	// Настройки пула соединений
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// При Enabled=false клиент работает только на in-memory хранилище
	Enabled bool

	// Пул соединений
	PoolSize     int
	MinIdleConns int

	// Таймауты
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration

	// Переподключение: экспоненциальный backoff от ReconnectBaseDelay
	// до ReconnectMaxDelay, лог переподключений не чаще ReconnectLogEvery
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	ReconnectLogEvery  time.Duration

	// Предохранитель (fuse): при FuseErrorThreshold ошибок за FuseErrorWindow
	// или FuseReconnectThreshold переподключений за FuseReconnectWindow
	// клиент необратимо переходит на in-memory хранилище
	FuseErrorThreshold     int
	FuseErrorWindow        time.Duration
	FuseReconnectThreshold int
	FuseReconnectWindow    time.Duration

	DefaultTTL time.Duration
}

// PrefetchConfig конфигурация планового префетча спортивных данных
type PrefetchConfig struct {
	Enabled bool

	// Виды спорта, которые обходим за один прогон (последовательно)
	Sports []string

	// Интервал между прогонами; при DailyHour >= 0 вместо интервала
	// используется запуск раз в сутки в DailyHour:DailyMinute UTC
	Interval    time.Duration
	DailyHour   int
	DailyMinute int

	// TTL снапшотов
	TeamsTTL    time.Duration
	FixturesTTL time.Duration

	// TTL advisory-блокировки прогона: должен превышать худшее время прогона
	LockTTL time.Duration

	// Окно дат вперёд и пауза между запросами по датам
	DateWindowDays int
	DatePause      time.Duration
}

// AggregatorConfig конфигурация агрегатора фикстур
type AggregatorConfig struct {
	Enabled bool

	// Glob-шаблоны ключей известных провайдеров; порядок фиксирован,
	// он определяет победителя при дедупликации
	KeyPatterns []string

	// Максимальная длина консолидированного списка фикстур
	MaxFixtures int

	// TTL выходных ключей агрегатора
	OutputTTL time.Duration

	// Интервал между проходами агрегации
	Interval time.Duration
}

// Config - основная структура конфигурации
type Config struct {
	Environment string
	Version     string

	Database   DatabaseConfig
	Redis      RedisConfig
	Prefetch   PrefetchConfig
	Aggregator AggregatorConfig

	// Логирование
	LogPath  string
	LogLevel string
	Debug    bool
}

// LoadConfig загружает конфигурацию из .env и переменных окружения
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		fmt.Printf("⚠️  Config file not found, using environment variables\n")
	}

	cfg := &Config{}

	// ======================
	// ОСНОВНЫЕ НАСТРОЙКИ
	// ======================
	cfg.Environment = getEnv("ENVIRONMENT", "production")
	cfg.Version = getEnv("VERSION", "1.0.0")
	cfg.LogPath = getEnv("LOG_PATH", "logs/bot.log")
	cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")
	cfg.Debug = getEnvBool("DEBUG", false)

	// ======================
	// БАЗА ДАННЫХ
	// ======================
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "")
	cfg.Database.Password = getEnv("DB_PASSWORD", "")
	cfg.Database.Name = getEnv("DB_NAME", "")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 10)
	cfg.Database.MaxConnLifetime = getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	cfg.Database.MaxConnIdleTime = getEnvDuration("DB_MAX_CONN_IDLE_TIME", 10*time.Minute)
	cfg.Database.Enabled = getEnvBool("DB_ENABLED", false)

	// ======================
	// REDIS
	// ======================
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnvInt("REDIS_PORT", 6379)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", 10)
	cfg.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", 5)
	cfg.Redis.DialTimeout = getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second)
	cfg.Redis.PoolTimeout = getEnvDuration("REDIS_POOL_TIMEOUT", 4*time.Second)
	cfg.Redis.ReconnectBaseDelay = getEnvDuration("REDIS_RECONNECT_BASE_DELAY", 100*time.Millisecond)
	cfg.Redis.ReconnectMaxDelay = getEnvDuration("REDIS_RECONNECT_MAX_DELAY", 5*time.Second)
	cfg.Redis.ReconnectLogEvery = getEnvDuration("REDIS_RECONNECT_LOG_EVERY", 30*time.Second)
	cfg.Redis.FuseErrorThreshold = getEnvInt("REDIS_FUSE_ERROR_THRESHOLD", 20)
	cfg.Redis.FuseErrorWindow = getEnvDuration("REDIS_FUSE_ERROR_WINDOW", 60*time.Second)
	cfg.Redis.FuseReconnectThreshold = getEnvInt("REDIS_FUSE_RECONNECT_THRESHOLD", 10)
	cfg.Redis.FuseReconnectWindow = getEnvDuration("REDIS_FUSE_RECONNECT_WINDOW", 120*time.Second)
	cfg.Redis.DefaultTTL = getEnvDuration("REDIS_DEFAULT_TTL", 1*time.Hour)
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", true)

	// ======================
	// ПРЕФЕТЧ
	// ======================
	cfg.Prefetch.Enabled = getEnvBool("PREFETCH_ENABLED", true)
	cfg.Prefetch.Sports = getEnvList("PREFETCH_SPORTS", []string{"soccer", "basketball", "tennis"})
	cfg.Prefetch.Interval = getEnvDuration("PREFETCH_INTERVAL", 15*time.Minute)
	cfg.Prefetch.DailyHour = getEnvInt("PREFETCH_DAILY_HOUR", -1)
	cfg.Prefetch.DailyMinute = getEnvInt("PREFETCH_DAILY_MINUTE", 0)
	cfg.Prefetch.TeamsTTL = getEnvDuration("PREFETCH_TEAMS_TTL", 24*time.Hour)
	cfg.Prefetch.FixturesTTL = getEnvDuration("PREFETCH_FIXTURES_TTL", 30*time.Minute)
	cfg.Prefetch.LockTTL = getEnvDuration("PREFETCH_LOCK_TTL", 5*time.Minute)
	cfg.Prefetch.DateWindowDays = getEnvInt("PREFETCH_DATE_WINDOW_DAYS", 3)
	cfg.Prefetch.DatePause = getEnvDuration("PREFETCH_DATE_PAUSE", 500*time.Millisecond)

	// ======================
	// АГРЕГАТОР
	// ======================
	cfg.Aggregator.Enabled = getEnvBool("AGGREGATOR_ENABLED", true)
	cfg.Aggregator.KeyPatterns = getEnvList("AGGREGATOR_KEY_PATTERNS", []string{
		"prefetch:*:fixtures",
		"provider:*:fixtures",
		"provider:*:live",
		"odds:*:events",
		"live:events",
	})
	cfg.Aggregator.MaxFixtures = getEnvInt("AGGREGATOR_MAX_FIXTURES", 200)
	cfg.Aggregator.OutputTTL = getEnvDuration("AGGREGATOR_OUTPUT_TTL", 30*time.Minute)
	cfg.Aggregator.Interval = getEnvDuration("AGGREGATOR_INTERVAL", 5*time.Minute)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации.
// Ошибки конфигурации фатальны — это единственный класс ошибок,
// который поднимается наружу при старте.
func (c *Config) Validate() error {
	if c.Redis.Enabled {
		if c.Redis.Host == "" {
			return fmt.Errorf("config: REDIS_HOST не задан при включённом Redis")
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			return fmt.Errorf("config: некорректный REDIS_PORT: %d", c.Redis.Port)
		}
		if c.Redis.FuseErrorThreshold <= 0 || c.Redis.FuseReconnectThreshold <= 0 {
			return fmt.Errorf("config: пороги предохранителя должны быть положительными")
		}
		if c.Redis.ReconnectBaseDelay <= 0 || c.Redis.ReconnectMaxDelay < c.Redis.ReconnectBaseDelay {
			return fmt.Errorf("config: некорректные задержки переподключения Redis")
		}
	}

	if c.Database.Enabled {
		if c.Database.User == "" || c.Database.Name == "" {
			return fmt.Errorf("config: DB_USER и DB_NAME обязательны при включённой БД")
		}
	}

	if c.Prefetch.Enabled {
		if len(c.Prefetch.Sports) == 0 {
			return fmt.Errorf("config: PREFETCH_SPORTS пуст")
		}
		if c.Prefetch.LockTTL <= 0 {
			return fmt.Errorf("config: PREFETCH_LOCK_TTL должен быть положительным")
		}
		if c.Prefetch.DailyHour >= 24 {
			return fmt.Errorf("config: некорректный PREFETCH_DAILY_HOUR: %d", c.Prefetch.DailyHour)
		}
		if c.Prefetch.DateWindowDays < 0 {
			return fmt.Errorf("config: PREFETCH_DATE_WINDOW_DAYS не может быть отрицательным")
		}
	}

	if c.Aggregator.Enabled {
		if len(c.Aggregator.KeyPatterns) == 0 {
			return fmt.Errorf("config: AGGREGATOR_KEY_PATTERNS пуст")
		}
		if c.Aggregator.MaxFixtures <= 0 {
			return fmt.Errorf("config: AGGREGATOR_MAX_FIXTURES должен быть положительным")
		}
	}

	return nil
}

// GetDatabaseConfig возвращает конфигурацию базы данных
func (c *Config) GetDatabaseConfig() DatabaseConfig {
	return c.Database
}

// GetRedisConfig возвращает конфигурацию Redis
func (c *Config) GetRedisConfig() RedisConfig {
	return c.Redis
}

// ============================================
// ХЕЛПЕРЫ ЧТЕНИЯ ОКРУЖЕНИЯ
// ============================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
