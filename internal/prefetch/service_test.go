// internal/prefetch/service_test.go
package prefetch

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"sports-fixtures-bot/internal/coordination"
	"sports-fixtures-bot/internal/core/domain/fixtures"
	"sports-fixtures-bot/internal/fetcher"
	redis "sports-fixtures-bot/internal/infrastructure/cache/redis"
	"sports-fixtures-bot/internal/infrastructure/config"
)

func testPrefetchConfig() config.PrefetchConfig {
	return config.PrefetchConfig{
		Enabled:        true,
		Sports:         []string{"soccer", "basketball"},
		Interval:       15 * time.Minute,
		DailyHour:      -1,
		TeamsTTL:       24 * time.Hour,
		FixturesTTL:    30 * time.Minute,
		LockTTL:        5 * time.Minute,
		DateWindowDays: 1,
		DatePause:      time.Millisecond,
	}
}

func newTestService(store redis.Store, provider fetcher.ProviderFetcher, cfg config.PrefetchConfig) *Service {
	svc := NewService(cfg, store, coordination.NewLockCoordinator(store), provider, nil, nil)
	svc.pause = func(time.Duration) {}
	return svc
}

func futureStart() string {
	return time.Now().UTC().Add(6 * time.Hour).Format(time.RFC3339)
}

func TestRunOnceStoresSnapshotsAndHealth(t *testing.T) {
	store := redis.NewMemoryStore()
	ctx := context.Background()

	provider := fetcher.NewStaticFetcher()
	provider.Teams["soccer"] = []json.RawMessage{
		json.RawMessage(`{"name":"Arsenal"}`),
		json.RawMessage(`{"name":"Chelsea"}`),
	}
	provider.Fixtures["soccer"] = []json.RawMessage{
		json.RawMessage(`{"home_team":"Arsenal","away_team":"Chelsea","start_time":"` + futureStart() + `"}`),
	}

	cfg := testPrefetchConfig()
	cfg.Sports = []string{"soccer"}
	svc := newTestService(store, provider, cfg)

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	// Снапшот событий нормализован в каноническую форму
	raw, err := store.Get(ctx, "prefetch:soccer:fixtures")
	if err != nil {
		t.Fatal(err)
	}
	var normalized []fixtures.NormalizedFixture
	if err := json.Unmarshal([]byte(raw), &normalized); err != nil {
		t.Fatal(err)
	}
	if len(normalized) != 1 || normalized[0].HomeTeam != "Arsenal" || normalized[0].Type != fixtures.TypeUpcoming {
		t.Fatalf("неверная нормализация: %+v", normalized)
	}
	if normalized[0].Provider != "static" || normalized[0].Sport != "soccer" {
		t.Fatalf("контекст провайдера потерян: %+v", normalized)
	}

	// TTL снапшота проставлен
	ttl, err := store.TTL(ctx, "prefetch:soccer:fixtures")
	if err != nil || ttl <= 0 {
		t.Fatalf("TTL снапшота: %v err=%v", ttl, err)
	}

	// Телеметрия заполнена полностью
	healthRaw, err := store.Get(ctx, "prefetch:health:soccer")
	if err != nil {
		t.Fatal(err)
	}
	var record fixtures.PrefetchHealthRecord
	if err := json.Unmarshal([]byte(healthRaw), &record); err != nil {
		t.Fatal(err)
	}
	if record.FixturesCount != 1 || record.TeamsCount != 2 || record.HTTPStatus != 200 || record.ErrorReason != "" {
		t.Fatalf("телеметрия: %+v", record)
	}

	// Индекс здоровья обновлён
	if _, err := store.HGet(ctx, "prefetch:health", "soccer"); err != nil {
		t.Fatalf("индекс здоровья не записан: %v", err)
	}

	// Блокировка снята — следующий прогон возможен сразу
	if err := svc.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
}

// Сбой одного вида спорта не прерывает остальные
func TestFailingSportDoesNotAbortBatch(t *testing.T) {
	store := redis.NewMemoryStore()
	ctx := context.Background()

	provider := fetcher.NewStaticFetcher()
	provider.Err["soccer"] = "provider timeout"
	provider.ErrStatus = 504
	provider.Fixtures["basketball"] = []json.RawMessage{
		json.RawMessage(`{"home_team":"Lakers","away_team":"Bulls","status":"live"}`),
	}

	svc := newTestService(store, provider, testPrefetchConfig())
	if err := svc.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	// Упавший спорт: запись полная, счётчики нулевые, причина зафиксирована
	healthRaw, err := store.Get(ctx, "prefetch:health:soccer")
	if err != nil {
		t.Fatal(err)
	}
	var failed fixtures.PrefetchHealthRecord
	json.Unmarshal([]byte(healthRaw), &failed)
	if failed.ErrorReason != "provider timeout" || failed.HTTPStatus != 504 {
		t.Fatalf("телеметрия сбоя: %+v", failed)
	}
	if failed.FixturesCount != 0 || failed.TeamsCount != 0 {
		t.Fatalf("счётчики при сбое должны быть нулевыми: %+v", failed)
	}
	if failed.LastUpdated.IsZero() {
		t.Fatal("LastUpdated обязан присутствовать даже при сбое")
	}

	// Второй спорт обработан несмотря на сбой первого
	if _, err := store.Get(ctx, "prefetch:basketball:fixtures"); err != nil {
		t.Fatalf("basketball должен быть обработан: %v", err)
	}
}

// Занятая блокировка — штатный пропуск цикла, не ошибка
func TestLockedRunSkips(t *testing.T) {
	store := redis.NewMemoryStore()
	ctx := context.Background()

	locks := coordination.NewLockCoordinator(store)
	if ok, _ := locks.Acquire(ctx, runLockKey, time.Minute); !ok {
		t.Fatal("не удалось предзахватить блокировку")
	}

	provider := fetcher.NewStaticFetcher()
	provider.Fixtures["soccer"] = []json.RawMessage{
		json.RawMessage(`{"home_team":"A","away_team":"B"}`),
	}

	cfg := testPrefetchConfig()
	cfg.Sports = []string{"soccer"}
	svc := newTestService(store, provider, cfg)

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	// Прогон пропущен целиком
	if _, err := store.Get(ctx, "prefetch:soccer:fixtures"); err != redis.ErrNotFound {
		t.Fatalf("при занятой блокировке снапшоты писаться не должны: %v", err)
	}
}

// Успешный пустой ответ провайдера перезаписывает старый снапшот,
// сбой — оставляет его до TTL
func TestEmptySuccessOverwritesStaleSnapshot(t *testing.T) {
	store := redis.NewMemoryStore()
	ctx := context.Background()

	stale := `[{"provider":"static","sport":"soccer","homeTeam":"Old","awayTeam":"Stale"}]`
	if err := store.Set(ctx, "prefetch:soccer:fixtures", stale); err != nil {
		t.Fatal(err)
	}

	provider := fetcher.NewStaticFetcher()
	provider.Fixtures["soccer"] = []json.RawMessage{}

	cfg := testPrefetchConfig()
	cfg.Sports = []string{"soccer"}
	svc := newTestService(store, provider, cfg)

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	raw, err := store.Get(ctx, "prefetch:soccer:fixtures")
	if err != nil {
		t.Fatal(err)
	}
	var normalized []fixtures.NormalizedFixture
	if err := json.Unmarshal([]byte(raw), &normalized); err != nil {
		t.Fatal(err)
	}
	if len(normalized) != 0 {
		t.Fatalf("пустой успешный ответ должен вытеснить старый снапшот: %s", raw)
	}

	var record fixtures.PrefetchHealthRecord
	healthRaw, err := store.Get(ctx, "prefetch:health:soccer")
	if err != nil {
		t.Fatal(err)
	}
	json.Unmarshal([]byte(healthRaw), &record)
	if record.FixturesCount != 0 || record.ErrorReason != "" {
		t.Fatalf("телеметрия пустого успеха: %+v", record)
	}

	// Теперь провайдер падает: снапшот не трогаем
	if err := store.Set(ctx, "prefetch:soccer:fixtures", stale); err != nil {
		t.Fatal(err)
	}
	provider.Err["soccer"] = "provider down"

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	raw, err = store.Get(ctx, "prefetch:soccer:fixtures")
	if err != nil || raw != stale {
		t.Fatalf("при сбое старый снапшот должен сохраниться: %q err=%v", raw, err)
	}
}

// Пауза между датами вызывается при окне больше одного дня
func TestDateWindowPauses(t *testing.T) {
	store := redis.NewMemoryStore()
	ctx := context.Background()

	provider := fetcher.NewStaticFetcher()
	provider.Fixtures["soccer"] = []json.RawMessage{}

	cfg := testPrefetchConfig()
	cfg.Sports = []string{"soccer"}
	cfg.DateWindowDays = 3

	svc := newTestService(store, provider, cfg)
	var pauses int64
	svc.pause = func(time.Duration) { atomic.AddInt64(&pauses, 1) }

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	if pauses != 2 {
		t.Fatalf("для окна в 3 дня ожидали 2 паузы, получили %d", pauses)
	}
}

// Расписание строится из конфигурации
func TestScheduleSpec(t *testing.T) {
	store := redis.NewMemoryStore()

	cfg := testPrefetchConfig()
	svc := newTestService(store, fetcher.NewStaticFetcher(), cfg)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := svc.ScheduleSpec().NextRun(now)
	if next != now.Add(cfg.Interval) {
		t.Errorf("интервальное расписание: %v", next)
	}

	cfg.DailyHour = 6
	svc = newTestService(store, fetcher.NewStaticFetcher(), cfg)
	next = svc.ScheduleSpec().NextRun(now)
	if next.Hour() != 6 || !next.After(now) {
		t.Errorf("суточное расписание: %v", next)
	}
}
