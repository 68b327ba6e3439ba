// internal/infrastructure/cache/redis/client.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"sports-fixtures-bot/internal/infrastructure/config"
	"sports-fixtures-bot/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// ServiceState состояние клиента
type ServiceState string

const (
	StateStopped   ServiceState = "stopped"
	StateStarting  ServiceState = "starting"
	StateRunning   ServiceState = "running"
	StateMemory    ServiceState = "memory"    // работаем без Redis по конфигурации
	StateFuseBlown ServiceState = "fuse_blown" // предохранитель сработал, Redis отключен навсегда
)

// Client - отказоустойчивый клиент кэша поверх Redis.
//
// Ошибки связности не поднимаются наружу: операция обслуживается
// in-memory хранилищем, а ошибка учитывается в скользящем окне
// предохранителя. При превышении порога ошибок или переподключений
// клиент один раз и НЕОБРАТИМО отключает Redis и до конца жизни
// процесса работает из памяти. Обратного пути нет.
type Client struct {
	cfg      config.RedisConfig
	rdb      *redis.Client
	fallback Store

	mu               sync.Mutex
	state            ServiceState
	connected        bool
	errorTimes       []time.Time
	reconnectTimes   []time.Time
	lastReconnectLog time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// NewClient создает клиент кэша.
// Падает сразу только на некорректной конфигурации; сетевые проблемы
// обрабатываются позже, в фоне.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	if cfg.Enabled {
		if cfg.Host == "" {
			return nil, fmt.Errorf("redis: host не задан")
		}
		if cfg.Port <= 0 || cfg.Port > 65535 {
			return nil, fmt.Errorf("redis: некорректный порт %d", cfg.Port)
		}
		if cfg.FuseErrorThreshold <= 0 || cfg.FuseReconnectThreshold <= 0 {
			return nil, fmt.Errorf("redis: пороги предохранителя должны быть положительными")
		}
	}

	return &Client{
		cfg:      cfg,
		fallback: NewMemoryStore(),
		state:    StateStopped,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}, nil
}

// Connect запускает подключение к Redis.
// Возвращает управление сразу: попытки подключения идут в фоновой
// горутине с экспоненциальным backoff без ограничения числа попыток.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled {
		c.state = StateMemory
		logger.Info("💾 [Cache] Redis отключен конфигурацией, работаем из памяти")
		return nil
	}

	if c.state == StateRunning || c.state == StateStarting {
		return fmt.Errorf("redis: клиент уже запущен")
	}

	c.state = StateStarting
	c.rdb = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port),
		Password: c.cfg.Password,
		DB:       c.cfg.DB,

		PoolSize:     c.cfg.PoolSize,
		MinIdleConns: c.cfg.MinIdleConns,

		DialTimeout:  c.cfg.DialTimeout,
		ReadTimeout:  c.cfg.ReadTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
		PoolTimeout:  c.cfg.PoolTimeout,

		// Повторы на уровне go-redis выключены: backoff и учёт ошибок
		// делает сам клиент, иначе окно предохранителя считает криво
		MaxRetries: -1,
	})

	logger.Info("📡 [Cache] Подключаемся к Redis: %s:%d (DB: %d)", c.cfg.Host, c.cfg.Port, c.cfg.DB)

	c.wg.Add(1)
	go c.monitorLoop()

	return nil
}

// Close останавливает фоновый мониторинг и закрывает соединение
func (c *Client) Close() error {
	close(c.stopChan)
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rdb != nil {
		if err := c.rdb.Close(); err != nil {
			return err
		}
		c.rdb = nil
	}
	if c.state != StateFuseBlown && c.state != StateMemory {
		c.state = StateStopped
	}
	return nil
}

// State возвращает текущее состояние клиента
func (c *Client) State() ServiceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FuseBlown сообщает, сработал ли предохранитель
func (c *Client) FuseBlown() bool {
	return c.State() == StateFuseBlown
}

// Stats возвращает статистику клиента
func (c *Client) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := map[string]interface{}{
		"state":            c.state,
		"connected":        c.connected,
		"errors_in_window": len(c.errorTimes),
		"reconnects":       len(c.reconnectTimes),
	}
	if c.rdb != nil {
		poolStats := c.rdb.PoolStats()
		stats["pool_hits"] = poolStats.Hits
		stats["pool_misses"] = poolStats.Misses
		stats["pool_total_conns"] = poolStats.TotalConns
	}
	return stats
}

// monitorLoop держит соединение живым: пингует Redis, считает события
// переподключения и ждёт с экспоненциальным backoff между неудачами
func (c *Client) monitorLoop() {
	defer c.wg.Done()

	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.mu.Lock()
		if c.state == StateFuseBlown {
			c.mu.Unlock()
			return
		}
		rdb := c.rdb
		wasConnected := c.connected
		c.mu.Unlock()

		if rdb == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
		_, err := rdb.Ping(ctx).Result()
		cancel()

		if err == nil {
			c.mu.Lock()
			if !c.connected {
				c.connected = true
				if c.state == StateStarting {
					logger.Info("✅ [Cache] Подключение к Redis установлено")
				} else {
					logger.Info("✅ [Cache] Соединение с Redis восстановлено")
				}
				c.state = StateRunning
			}
			c.mu.Unlock()

			attempt = 0
			select {
			case <-c.stopChan:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if wasConnected {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
		}
		c.noteReconnect(err)

		delay := backoffDelay(attempt, c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay)
		// Джиттер до половины задержки, чтобы инстансы не долбили хором
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		attempt++

		select {
		case <-c.stopChan:
			return
		case <-time.After(delay):
		}
	}
}

// backoffDelay считает задержку переподключения: base * 2^attempt,
// не больше max. Чистая функция, без джиттера.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if max <= 0 {
		max = 5 * time.Second
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// isConnError отделяет ошибки связности от прикладных:
// только связность учитывается предохранителем и маскируется fallback-ом
func isConnError(err error) bool {
	if err == nil || err == redis.Nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"no route to host",
		"client is closed",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// noteError учитывает ошибку операции в окне предохранителя
func (c *Client) noteError() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.errorTimes = pruneWindow(append(c.errorTimes, now), now, c.cfg.FuseErrorWindow)
	if len(c.errorTimes) >= c.cfg.FuseErrorThreshold {
		c.blowFuseLocked(fmt.Sprintf("%d ошибок за %v", len(c.errorTimes), c.cfg.FuseErrorWindow))
	}
}

// noteReconnect учитывает событие переподключения
func (c *Client) noteReconnect(err error) {
	c.mu.Lock()

	now := c.now()
	c.reconnectTimes = pruneWindow(append(c.reconnectTimes, now), now, c.cfg.FuseReconnectWindow)

	// Лог переподключений троттлится, иначе при лежащем Redis
	// журнал превращается в шторм
	if now.Sub(c.lastReconnectLog) >= c.cfg.ReconnectLogEvery {
		c.lastReconnectLog = now
		logger.Warn("⚠️ [Cache] Redis недоступен, переподключаемся: %v (попыток в окне: %d)",
			err, len(c.reconnectTimes))
	}

	if len(c.reconnectTimes) >= c.cfg.FuseReconnectThreshold {
		c.blowFuseLocked(fmt.Sprintf("%d переподключений за %v", len(c.reconnectTimes), c.cfg.FuseReconnectWindow))
	}
	c.mu.Unlock()
}

// pruneWindow отбрасывает события старше окна
func pruneWindow(events []time.Time, now time.Time, window time.Duration) []time.Time {
	if window <= 0 {
		return events
	}
	cutoff := now.Add(-window)
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// blowFuseLocked необратимо переводит клиент на in-memory хранилище.
// Вызывается под c.mu. Автоматического возврата к Redis нет.
func (c *Client) blowFuseLocked(reason string) {
	if c.state == StateFuseBlown {
		return
	}

	c.state = StateFuseBlown
	c.connected = false
	logger.Error("🧨 [Cache] Сработал предохранитель (%s) — отключаем Redis, до конца процесса работаем из памяти", reason)

	if c.rdb != nil {
		// Закрываем в фоне: blowFuse может быть вызван из пути операции
		rdb := c.rdb
		c.rdb = nil
		go rdb.Close()
	}
}

// redisHandle возвращает живой go-redis клиент или nil
func (c *Client) redisHandle() *redis.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cfg.Enabled || c.state == StateFuseBlown {
		return nil
	}
	return c.rdb
}

// failover учитывает ошибку связности и сообщает, уходить ли в fallback
func (c *Client) failover(err error) bool {
	if !isConnError(err) {
		return false
	}
	c.noteError()
	return true
}

// ============================================
// ОПЕРАЦИИ
// ============================================

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.Get(ctx, key)
	}

	value, err := rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if c.failover(err) {
		return c.fallback.Get(ctx, key)
	}
	return value, err
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.Set(ctx, key, value)
	}

	err := rdb.Set(ctx, key, value, 0).Err()
	if c.failover(err) {
		return c.fallback.Set(ctx, key, value)
	}
	return err
}

func (c *Client) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.cfg.DefaultTTL
	}

	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.SetWithTTL(ctx, key, value, ttl)
	}

	err := rdb.Set(ctx, key, value, ttl).Err()
	if c.failover(err) {
		return c.fallback.SetWithTTL(ctx, key, value, ttl)
	}
	return err
}

func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.SetNX(ctx, key, value, ttl)
	}

	ok, err := rdb.SetNX(ctx, key, value, ttl).Result()
	if c.failover(err) {
		return c.fallback.SetNX(ctx, key, value, ttl)
	}
	return ok, err
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.Delete(ctx, keys...)
	}

	err := rdb.Del(ctx, keys...).Err()
	if c.failover(err) {
		return c.fallback.Delete(ctx, keys...)
	}
	return err
}

func (c *Client) HSet(ctx context.Context, key, field, value string) error {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.HSet(ctx, key, field, value)
	}

	err := rdb.HSet(ctx, key, field, value).Err()
	if c.failover(err) {
		return c.fallback.HSet(ctx, key, field, value)
	}
	return err
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.HGet(ctx, key, field)
	}

	value, err := rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if c.failover(err) {
		return c.fallback.HGet(ctx, key, field)
	}
	return value, err
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.HGetAll(ctx, key)
	}

	values, err := rdb.HGetAll(ctx, key).Result()
	if c.failover(err) {
		return c.fallback.HGetAll(ctx, key)
	}
	return values, err
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.HDel(ctx, key, fields...)
	}

	err := rdb.HDel(ctx, key, fields...).Err()
	if c.failover(err) {
		return c.fallback.HDel(ctx, key, fields...)
	}
	return err
}

func (c *Client) LPush(ctx context.Context, key string, values ...string) error {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.LPush(ctx, key, values...)
	}

	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	err := rdb.LPush(ctx, key, args...).Err()
	if c.failover(err) {
		return c.fallback.LPush(ctx, key, values...)
	}
	return err
}

func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.LRange(ctx, key, start, stop)
	}

	values, err := rdb.LRange(ctx, key, start, stop).Result()
	if c.failover(err) {
		return c.fallback.LRange(ctx, key, start, stop)
	}
	return values, err
}

func (c *Client) LTrim(ctx context.Context, key string, start, stop int64) error {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.LTrim(ctx, key, start, stop)
	}

	err := rdb.LTrim(ctx, key, start, stop).Err()
	if c.failover(err) {
		return c.fallback.LTrim(ctx, key, start, stop)
	}
	return err
}

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.ZAdd(ctx, key, score, member)
	}

	err := rdb.ZAdd(ctx, key, &redis.Z{Score: score, Member: member}).Err()
	if c.failover(err) {
		return c.fallback.ZAdd(ctx, key, score, member)
	}
	return err
}

func (c *Client) ZIncrBy(ctx context.Context, key string, increment float64, member string) (float64, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.ZIncrBy(ctx, key, increment, member)
	}

	value, err := rdb.ZIncrBy(ctx, key, increment, member).Result()
	if c.failover(err) {
		return c.fallback.ZIncrBy(ctx, key, increment, member)
	}
	return value, err
}

func (c *Client) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.ZRangeByScore(ctx, key, min, max)
	}

	values, err := rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatFloat(min, 'f', -1, 64),
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}).Result()
	if c.failover(err) {
		return c.fallback.ZRangeByScore(ctx, key, min, max)
	}
	return values, err
}

func (c *Client) ZRevRangeByScore(ctx context.Context, key string, max, min float64) ([]string, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.ZRevRangeByScore(ctx, key, max, min)
	}

	values, err := rdb.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatFloat(min, 'f', -1, 64),
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}).Result()
	if c.failover(err) {
		return c.fallback.ZRevRangeByScore(ctx, key, max, min)
	}
	return values, err
}

func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.ZCard(ctx, key)
	}

	count, err := rdb.ZCard(ctx, key).Result()
	if c.failover(err) {
		return c.fallback.ZCard(ctx, key)
	}
	return count, err
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.Incr(ctx, key)
	}

	value, err := rdb.Incr(ctx, key).Result()
	if c.failover(err) {
		return c.fallback.Incr(ctx, key)
	}
	return value, err
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.Expire(ctx, key, ttl)
	}

	ok, err := rdb.Expire(ctx, key, ttl).Result()
	if c.failover(err) {
		return c.fallback.Expire(ctx, key, ttl)
	}
	return ok, err
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.TTL(ctx, key)
	}

	d, err := rdb.TTL(ctx, key).Result()
	if c.failover(err) {
		return c.fallback.TTL(ctx, key)
	}
	if err != nil {
		return 0, err
	}
	return normalizeTTL(d)
}

// normalizeTTL приводит ответ Redis TTL к контракту Store.
// go-redis оставляет сигнальные ответы "-2" (нет ключа) и "-1" (нет
// срока) сырыми наносекундами, не домножая их на секунды.
func normalizeTTL(d time.Duration) (time.Duration, error) {
	switch d {
	case -2:
		return 0, ErrNotFound
	case -1:
		return -1, nil
	}
	return d, nil
}

func (c *Client) Publish(ctx context.Context, channel, message string) error {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.Publish(ctx, channel, message)
	}

	err := rdb.Publish(ctx, channel, message).Err()
	if c.failover(err) {
		return c.fallback.Publish(ctx, channel, message)
	}
	return err
}

func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	rdb := c.redisHandle()
	if rdb == nil {
		return c.fallback.Keys(ctx, pattern)
	}

	keys, err := rdb.Keys(ctx, pattern).Result()
	if c.failover(err) {
		return c.fallback.Keys(ctx, pattern)
	}
	if err != nil {
		return nil, err
	}
	// KEYS не гарантирует порядок, а дедупликации агрегатора он нужен
	sort.Strings(keys)
	return keys, nil
}
