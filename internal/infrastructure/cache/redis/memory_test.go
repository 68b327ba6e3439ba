// internal/infrastructure/cache/redis/memory_test.go
package redis

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if _, err := m.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}

	if err := m.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	value, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if value != "v" {
		t.Fatalf("ожидали %q, получили %q", "v", value)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if err := m.SetWithTTL(ctx, "k", "v", time.Minute); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("ключ должен быть жив: %v", err)
	}

	ttl, err := m.TTL(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if ttl != time.Minute {
		t.Fatalf("ожидали TTL %v, получили %v", time.Minute, ttl)
	}

	// Сдвигаем часы за дедлайн: ленивое вычищение должно сработать
	now = now.Add(2 * time.Minute)
	if _, err := m.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("ключ должен истечь, получили %v", err)
	}
}

func TestMemoryStoreSetNX(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	ok, err := m.SetNX(ctx, "lock", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("первый SetNX должен пройти: ok=%v err=%v", ok, err)
	}

	ok, err = m.SetNX(ctx, "lock", "b", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("второй SetNX на живом ключе обязан вернуть false")
	}

	// После истечения TTL ключ можно создать заново
	now := time.Now().Add(2 * time.Minute)
	m.now = func() time.Time { return now }
	ok, err = m.SetNX(ctx, "lock", "c", time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX после истечения TTL должен пройти: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreListOps(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	// LPUSH a, b, c -> голова списка c
	if err := m.LPush(ctx, "list", "a", "b", "c"); err != nil {
		t.Fatal(err)
	}

	values, err := m.LRange(ctx, "list", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c", "b", "a"}
	if len(values) != len(want) {
		t.Fatalf("ожидали %v, получили %v", want, values)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("ожидали %v, получили %v", want, values)
		}
	}

	if err := m.LTrim(ctx, "list", 0, 1); err != nil {
		t.Fatal(err)
	}
	values, _ = m.LRange(ctx, "list", 0, -1)
	if len(values) != 2 || values[0] != "c" || values[1] != "b" {
		t.Fatalf("после LTrim ожидали [c b], получили %v", values)
	}
}

func TestMemoryStoreZSetOps(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	m.ZAdd(ctx, "board", 3, "soccer")
	m.ZAdd(ctx, "board", 1, "tennis")
	m.ZAdd(ctx, "board", 7, "basketball")

	count, err := m.ZCard(ctx, "board")
	if err != nil || count != 3 {
		t.Fatalf("ZCard: count=%d err=%v", count, err)
	}

	desc, err := m.ZRevRangeByScore(ctx, "board", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(desc) != 3 || desc[0] != "basketball" || desc[2] != "tennis" {
		t.Fatalf("ожидали убывающий порядок, получили %v", desc)
	}

	score, err := m.ZIncrBy(ctx, "board", 10, "tennis")
	if err != nil || score != 11 {
		t.Fatalf("ZIncrBy: score=%v err=%v", score, err)
	}
}

func TestMemoryStoreIncr(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := m.Incr(ctx, "counter")
		if err != nil || got != want {
			t.Fatalf("Incr: got=%d want=%d err=%v", got, want, err)
		}
	}

	m.Set(ctx, "text", "not-a-number")
	if _, err := m.Incr(ctx, "text"); err == nil {
		t.Fatal("Incr по нечисловому значению должен вернуть ошибку")
	}
}

func TestMemoryStoreKeysGlob(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	m.Set(ctx, "prefetch:soccer:fixtures", "[]")
	m.Set(ctx, "prefetch:tennis:fixtures", "[]")
	m.Set(ctx, "prefetch:soccer:teams", "[]")
	m.HSet(ctx, "provider:betfair:fixtures", "f", "v")

	keys, err := m.Keys(ctx, "prefetch:*:fixtures")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("ожидали 2 ключа, получили %v", keys)
	}
	// Порядок перечисления детерминированный
	if keys[0] != "prefetch:soccer:fixtures" || keys[1] != "prefetch:tennis:fixtures" {
		t.Fatalf("неверный порядок: %v", keys)
	}

	keys, _ = m.Keys(ctx, "provider:*")
	if len(keys) != 1 || keys[0] != "provider:betfair:fixtures" {
		t.Fatalf("шаблон должен видеть хэш-ключи: %v", keys)
	}
}

func TestMemoryStoreHashOps(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	m.HSet(ctx, "h", "a", "1")
	m.HSet(ctx, "h", "b", "2")

	value, err := m.HGet(ctx, "h", "a")
	if err != nil || value != "1" {
		t.Fatalf("HGet: value=%q err=%v", value, err)
	}

	all, err := m.HGetAll(ctx, "h")
	if err != nil || len(all) != 2 {
		t.Fatalf("HGetAll: %v err=%v", all, err)
	}

	if err := m.HDel(ctx, "h", "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.HGet(ctx, "h", "a"); err != ErrNotFound {
		t.Fatalf("поле должно быть удалено, получили %v", err)
	}
}

func TestMemoryStoreExpireOnMissingKey(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	ok, err := m.Expire(ctx, "missing", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("Expire по отсутствующему ключу должен вернуть false")
	}
}
