// internal/coordination/lock.go
package coordination

import (
	"context"
	"time"

	redis "sports-fixtures-bot/internal/infrastructure/cache/redis"
	"sports-fixtures-bot/pkg/logger"
)

// LockCoordinator - advisory-взаимоисключение для плановых задач
// поверх атомарного SetNX с TTL.
//
// Гарантия только вероятностная: TTL должен превышать худшее время
// защищаемой работы, иначе блокировку перехватит второй инстанс.
// Очереди и ожидания нет — не взял блокировку, пропусти цикл.
type LockCoordinator struct {
	store  redis.Store
	prefix string
}

// NewLockCoordinator создает координатор блокировок
func NewLockCoordinator(store redis.Store) *LockCoordinator {
	return &LockCoordinator{
		store:  store,
		prefix: "lock:",
	}
}

// Acquire пытается захватить блокировку.
// Возвращает true только если ключ создал ИМЕННО этот вызов.
func (lc *LockCoordinator) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	heldUntil := time.Now().UTC().Add(ttl).Format(time.RFC3339)

	acquired, err := lc.store.SetNX(ctx, lc.prefix+key, heldUntil, ttl)
	if err != nil {
		return false, err
	}

	if acquired {
		logger.Debug("🔒 [Lock] Блокировка %q захвачена до %s", key, heldUntil)
	} else {
		logger.Debug("⏭ [Lock] Блокировка %q занята, пропускаем цикл", key)
	}
	return acquired, nil
}

// Release снимает блокировку безусловно.
// Токена владельца нет: если TTL уже истёк и ключ перезахвачен другим
// инстансом, этот вызов снимет чужую блокировку. Известный риск.
func (lc *LockCoordinator) Release(ctx context.Context, key string) error {
	if err := lc.store.Delete(ctx, lc.prefix+key); err != nil {
		return err
	}
	logger.Debug("🔓 [Lock] Блокировка %q снята", key)
	return nil
}
