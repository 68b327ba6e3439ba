// internal/infrastructure/cache/redis/memory.go
package redis

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore - процесс-локальная реализация Store.
// Используется как запасное хранилище после срабатывания предохранителя
// и как основное при REDIS_ENABLED=false (в том числе в тестах).
// Срок жизни ключей проверяется лениво при обращении, фонового
// вычищения нет.
type MemoryStore struct {
	mu      sync.RWMutex
	strings map[string]string
	hashes  map[string]map[string]string
	lists   map[string][]string
	zsets   map[string]map[string]float64
	expires map[string]time.Time

	published int64

	now func() time.Time
}

// NewMemoryStore создает пустое in-memory хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][]string),
		zsets:   make(map[string]map[string]float64),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// purgeLocked удаляет ключ, если его срок жизни истёк.
// Вызывается под полной блокировкой.
func (m *MemoryStore) purgeLocked(key string) {
	deadline, ok := m.expires[key]
	if !ok || m.now().Before(deadline) {
		return
	}
	delete(m.strings, key)
	delete(m.hashes, key)
	delete(m.lists, key)
	delete(m.zsets, key)
	delete(m.expires, key)
}

// existsLocked проверяет наличие живого ключа в любом из пространств
func (m *MemoryStore) existsLocked(key string) bool {
	if _, ok := m.strings[key]; ok {
		return true
	}
	if _, ok := m.hashes[key]; ok {
		return true
	}
	if _, ok := m.lists[key]; ok {
		return true
	}
	if _, ok := m.zsets[key]; ok {
		return true
	}
	return false
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	value, ok := m.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.strings[key] = value
	delete(m.expires, key)
	return nil
}

func (m *MemoryStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.strings[key] = value
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	} else {
		delete(m.expires, key)
	}
	return nil
}

func (m *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	if m.existsLocked(key) {
		return false, nil
	}

	m.strings[key] = value
	if ttl > 0 {
		m.expires[key] = m.now().Add(ttl)
	}
	return true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.strings, key)
		delete(m.hashes, key)
		delete(m.lists, key)
		delete(m.zsets, key)
		delete(m.expires, key)
	}
	return nil
}

func (m *MemoryStore) HSet(ctx context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	hash, ok := m.hashes[key]
	if !ok {
		hash = make(map[string]string)
		m.hashes[key] = hash
	}
	hash[field] = value
	return nil
}

func (m *MemoryStore) HGet(ctx context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	hash, ok := m.hashes[key]
	if !ok {
		return "", ErrNotFound
	}
	value, ok := hash[field]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	result := make(map[string]string, len(m.hashes[key]))
	for field, value := range m.hashes[key] {
		result[field] = value
	}
	return result, nil
}

func (m *MemoryStore) HDel(ctx context.Context, key string, fields ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	hash, ok := m.hashes[key]
	if !ok {
		return nil
	}
	for _, field := range fields {
		delete(hash, field)
	}
	if len(hash) == 0 {
		delete(m.hashes, key)
	}
	return nil
}

func (m *MemoryStore) LPush(ctx context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	list := m.lists[key]
	// Семантика Redis LPUSH: каждый следующий аргумент встаёт в голову
	for _, value := range values {
		list = append([]string{value}, list...)
	}
	m.lists[key] = list
	return nil
}

func (m *MemoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	list := m.lists[key]
	length := int64(len(list))

	if start < 0 {
		start = length + start
	}
	if stop < 0 {
		stop = length + stop
	}
	if start < 0 {
		start = 0
	}
	if start >= length || stop < start {
		return []string{}, nil
	}
	if stop >= length {
		stop = length - 1
	}

	result := make([]string, stop-start+1)
	copy(result, list[start:stop+1])
	return result, nil
}

func (m *MemoryStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	list := m.lists[key]
	length := int64(len(list))

	if start < 0 {
		start = length + start
	}
	if stop < 0 {
		stop = length + stop
	}
	if start < 0 {
		start = 0
	}
	if start >= length || stop < start {
		delete(m.lists, key)
		return nil
	}
	if stop >= length {
		stop = length - 1
	}

	trimmed := make([]string, stop-start+1)
	copy(trimmed, list[start:stop+1])
	m.lists[key] = trimmed
	return nil
}

func (m *MemoryStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	zset, ok := m.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		m.zsets[key] = zset
	}
	zset[member] = score
	return nil
}

func (m *MemoryStore) ZIncrBy(ctx context.Context, key string, increment float64, member string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	zset, ok := m.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		m.zsets[key] = zset
	}
	zset[member] += increment
	return zset[member], nil
}

// zMember пара член/оценка для сортировки диапазонов
type zMember struct {
	member string
	score  float64
}

func (m *MemoryStore) zRange(key string, min, max float64, descending bool) []string {
	members := make([]zMember, 0, len(m.zsets[key]))
	for member, score := range m.zsets[key] {
		if score >= min && score <= max {
			members = append(members, zMember{member: member, score: score})
		}
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].score != members[j].score {
			if descending {
				return members[i].score > members[j].score
			}
			return members[i].score < members[j].score
		}
		return members[i].member < members[j].member
	})

	result := make([]string, len(members))
	for i, zm := range members {
		result[i] = zm.member
	}
	return result
}

func (m *MemoryStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	return m.zRange(key, min, max, false), nil
}

func (m *MemoryStore) ZRevRangeByScore(ctx context.Context, key string, max, min float64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	return m.zRange(key, min, max, true), nil
}

func (m *MemoryStore) ZCard(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	return int64(len(m.zsets[key])), nil
}

func (m *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	current := int64(0)
	if raw, ok := m.strings[key]; ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	}

	current++
	m.strings[key] = strconv.FormatInt(current, 10)
	return current, nil
}

func (m *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	if !m.existsLocked(key) {
		return false, nil
	}
	m.expires[key] = m.now().Add(ttl)
	return true, nil
}

func (m *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeLocked(key)
	if !m.existsLocked(key) {
		return 0, ErrNotFound
	}
	deadline, ok := m.expires[key]
	if !ok {
		// Ключ без срока жизни
		return -1, nil
	}
	return deadline.Sub(m.now()), nil
}

// Publish в in-memory режиме только считает сообщения:
// межпроцессных подписчиков всё равно нет
func (m *MemoryStore) Publish(ctx context.Context, channel, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.published++
	return nil
}

// PublishedCount возвращает количество опубликованных сообщений
func (m *MemoryStore) PublishedCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.published
}

func (m *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	collect := func(key string) {
		m.purgeLocked(key)
		if !m.existsLocked(key) {
			return
		}
		if matched, err := path.Match(pattern, key); err == nil && matched {
			seen[key] = struct{}{}
		}
	}

	for key := range m.strings {
		collect(key)
	}
	for key := range m.hashes {
		collect(key)
	}
	for key := range m.lists {
		collect(key)
	}
	for key := range m.zsets {
		collect(key)
	}

	result := make([]string, 0, len(seen))
	for key := range seen {
		result = append(result, key)
	}
	// Детерминированный порядок перечисления нужен дедупликации агрегатора
	sort.Strings(result)
	return result, nil
}
