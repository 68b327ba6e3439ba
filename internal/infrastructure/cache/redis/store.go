// internal/infrastructure/cache/redis/store.go
package redis

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается при отсутствии ключа или поля,
// независимо от того, какой бэкенд обслужил операцию
var ErrNotFound = errors.New("cache: key not found")

// Store - логический набор операций кэша.
// Его реализуют и Redis-клиент, и in-memory хранилище,
// поэтому потребители не зависят от активного бэкенда.
type Store interface {
	// Строковые операции
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX атомарно создаёт ключ с TTL только если его нет.
	// Возвращает true, если ключ создал именно этот вызов.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error

	// Хэши
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// Списки
	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error

	// Сортированные множества
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZIncrBy(ctx context.Context, key string, increment float64, member string) (float64, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZRevRangeByScore(ctx context.Context, key string, max, min float64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Счётчики и срок жизни
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Pub/sub и перечисление ключей
	Publish(ctx context.Context, channel, message string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}
