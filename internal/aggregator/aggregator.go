// internal/aggregator/aggregator.go
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sports-fixtures-bot/internal/core/domain/fixtures"
	redis "sports-fixtures-bot/internal/infrastructure/cache/redis"
	"sports-fixtures-bot/internal/infrastructure/config"
	"sports-fixtures-bot/pkg/logger"
)

// Выходные ключи агрегатора. Пишутся независимо и best-effort:
// провал одного шага не мешает остальным.
const (
	KeyTotalLive     = "sports:aggregate:total_live"
	KeyTotalUpcoming = "sports:aggregate:total_upcoming"
	KeyFixturesList  = "sports:aggregate:fixtures"
	KeyProviders     = "sports:aggregate:providers"
	KeyRuns          = "sports:aggregate:runs"
	KeyLiveBySport   = "sports:aggregate:live_by_sport"
	KeyUpBySport     = "sports:aggregate:upcoming_by_sport"

	// Канал уведомления потребителей об обновлении сводки
	ChannelUpdated = "sports:events:updated"
)

// sportCounterKey ключ пары счётчиков по виду спорта
func sportCounterKey(sport, kind string) string {
	return fmt.Sprintf("sports:aggregate:sport:%s:%s", sport, kind)
}

// Aggregator - консолидация разнородных провайдерских снапшотов
// в один дедуплицированный список фикстур со сводными счётчиками.
//
// Блокировок нет: агрегатор только читает чужие ключи и перезаписывает
// свои, параллельные прогоны безопасны (последняя запись побеждает).
type Aggregator struct {
	cache       redis.Store
	patterns    []string
	maxFixtures int
	outputTTL   time.Duration

	now func() time.Time
}

// New создает агрегатор фикстур
func New(cache redis.Store, cfg config.AggregatorConfig) *Aggregator {
	return &Aggregator{
		cache:       cache,
		patterns:    cfg.KeyPatterns,
		maxFixtures: cfg.MaxFixtures,
		outputTTL:   cfg.OutputTTL,
		now:         time.Now,
	}
}

// Run выполняет один полный проход агрегации.
// Сводка пересчитывается с нуля и возвращается вызывающему всегда,
// независимо от исхода записи в кэш.
func (a *Aggregator) Run(ctx context.Context) (*fixtures.AggregateSnapshot, error) {
	started := a.now()

	keys := a.discoverKeys(ctx)
	consolidated := a.collectFixtures(ctx, keys)

	snapshot := buildSnapshot(consolidated)
	snapshot.WriteResults = a.persist(ctx, snapshot)

	failed := 0
	for _, wr := range snapshot.WriteResults {
		if wr.Err != nil {
			failed++
		}
	}

	logger.Info("📊 [Aggregator] Проход завершён за %v: %d ключей, %d фикстур (live: %d, upcoming: %d), ошибок записи: %d",
		time.Since(started).Round(time.Millisecond), len(keys), len(snapshot.Fixtures),
		snapshot.TotalLiveMatches, snapshot.TotalUpcomingFixtures, failed)

	return snapshot, ctx.Err()
}

// discoverKeys разворачивает шаблоны в список ключей.
// Порядок фиксирован: шаблоны в порядке конфигурации, внутри шаблона —
// порядок перечисления кэша. Он определяет победителя дедупликации.
func (a *Aggregator) discoverKeys(ctx context.Context) []string {
	var keys []string
	seen := make(map[string]struct{})

	for _, pattern := range a.patterns {
		var expanded []string
		if strings.ContainsAny(pattern, "*?[") {
			found, err := a.cache.Keys(ctx, pattern)
			if err != nil {
				logger.Warn("⚠️ [Aggregator] Не удалось перечислить ключи по шаблону %q: %v", pattern, err)
				continue
			}
			expanded = found
		} else {
			// Литеральный ключ включается как есть
			expanded = []string{pattern}
		}

		for _, key := range expanded {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

// collectFixtures читает и нормализует события из всех найденных ключей.
// Кривой JSON и события без команд пропускаются, обход продолжается.
func (a *Aggregator) collectFixtures(ctx context.Context, keys []string) []fixtures.NormalizedFixture {
	now := a.now()
	dedup := make(map[string]struct{})
	var result []fixtures.NormalizedFixture

	for _, key := range keys {
		value, err := a.cache.Get(ctx, key)
		if err != nil {
			if err != redis.ErrNotFound {
				logger.Debug("⏭ [Aggregator] Ключ %q не прочитан: %v", key, err)
			}
			continue
		}

		var decoded interface{}
		if uerr := json.Unmarshal([]byte(value), &decoded); uerr != nil {
			logger.Debug("⏭ [Aggregator] Ключ %q содержит не-JSON, пропускаем: %v", key, uerr)
			continue
		}

		events := locateEvents(decoded)
		if events == nil {
			continue
		}

		keyProvider := providerFromKey(key)
		keySport := sportFromKey(key)

		for _, event := range events {
			fixture, ok := extractFixture(event, keyProvider, keySport, now)
			if !ok {
				continue
			}

			dedupKey := fixture.DedupKey()
			if _, dup := dedup[dedupKey]; dup {
				// Дубликаты отбрасываются молча, побеждает первый по порядку обхода
				continue
			}
			dedup[dedupKey] = struct{}{}
			result = append(result, fixture)
		}
	}

	return result
}

// buildSnapshot считает сводку строго по дедуплицированному набору
func buildSnapshot(consolidated []fixtures.NormalizedFixture) *fixtures.AggregateSnapshot {
	snapshot := &fixtures.AggregateSnapshot{
		BySport:    make(map[string]fixtures.SportCounts),
		ByProvider: make(map[string]fixtures.SportCounts),
		Fixtures:   consolidated,
	}

	for _, f := range consolidated {
		sport := f.Sport
		if sport == "" {
			sport = "unknown"
		}
		provider := f.Provider
		if provider == "" {
			provider = "unknown"
		}

		bySport := snapshot.BySport[sport]
		byProvider := snapshot.ByProvider[provider]

		if f.Type == fixtures.TypeLive {
			snapshot.TotalLiveMatches++
			bySport.Live++
			byProvider.Live++
		} else {
			snapshot.TotalUpcomingFixtures++
			bySport.Upcoming++
			byProvider.Upcoming++
		}

		snapshot.BySport[sport] = bySport
		snapshot.ByProvider[provider] = byProvider
	}

	return snapshot
}

// persist пишет выходные ключи независимо друг от друга.
// Каждый шаг возвращает свой результат; ошибки логируются и копятся,
// но агрегацию не валят.
func (a *Aggregator) persist(ctx context.Context, snapshot *fixtures.AggregateSnapshot) []fixtures.WriteResult {
	var results []fixtures.WriteResult

	step := func(name string, fn func() error) {
		err := fn()
		if err != nil {
			logger.Warn("⚠️ [Aggregator] Шаг записи %q не удался: %v", name, err)
		}
		results = append(results, fixtures.WriteResult{Step: name, Err: err})
	}

	step("total_live", func() error {
		return a.cache.SetWithTTL(ctx, KeyTotalLive, strconv.Itoa(snapshot.TotalLiveMatches), a.outputTTL)
	})
	step("total_upcoming", func() error {
		return a.cache.SetWithTTL(ctx, KeyTotalUpcoming, strconv.Itoa(snapshot.TotalUpcomingFixtures), a.outputTTL)
	})

	for sport, counts := range snapshot.BySport {
		sport, counts := sport, counts
		step("sport:"+sport, func() error {
			if err := a.cache.SetWithTTL(ctx, sportCounterKey(sport, "live"), strconv.Itoa(counts.Live), a.outputTTL); err != nil {
				return err
			}
			if err := a.cache.SetWithTTL(ctx, sportCounterKey(sport, "upcoming"), strconv.Itoa(counts.Upcoming), a.outputTTL); err != nil {
				return err
			}
			// Zset-лидерборды позволяют потребителям запрашивать топ видов спорта
			if err := a.cache.ZAdd(ctx, KeyLiveBySport, float64(counts.Live), sport); err != nil {
				return err
			}
			return a.cache.ZAdd(ctx, KeyUpBySport, float64(counts.Upcoming), sport)
		})
	}

	step("fixtures_list", func() error {
		if err := a.cache.Delete(ctx, KeyFixturesList); err != nil {
			return err
		}
		// LPUSH в обратном порядке, чтобы голова списка совпадала
		// с порядком обхода
		for i := len(snapshot.Fixtures) - 1; i >= 0; i-- {
			data, err := json.Marshal(snapshot.Fixtures[i])
			if err != nil {
				return err
			}
			if err := a.cache.LPush(ctx, KeyFixturesList, string(data)); err != nil {
				return err
			}
		}
		if err := a.cache.LTrim(ctx, KeyFixturesList, 0, int64(a.maxFixtures-1)); err != nil {
			return err
		}
		_, err := a.cache.Expire(ctx, KeyFixturesList, a.outputTTL)
		return err
	})

	step("providers", func() error {
		data, err := json.Marshal(snapshot.ByProvider)
		if err != nil {
			return err
		}
		return a.cache.SetWithTTL(ctx, KeyProviders, string(data), a.outputTTL)
	})

	step("runs", func() error {
		_, err := a.cache.Incr(ctx, KeyRuns)
		return err
	})

	step("notify", func() error {
		return a.cache.Publish(ctx, ChannelUpdated, strconv.FormatInt(a.now().Unix(), 10))
	})

	return results
}

// providerFromKey выводит имя провайдера из ключа снапшота:
// "provider:betfair:fixtures" -> "betfair", "prefetch:..." -> "prefetch".
// Общие ключи вроде "live:events" провайдера не называют: их события
// без собственного поля provider попадают в "unknown".
func providerFromKey(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) >= 2 && (parts[0] == "provider" || parts[0] == "odds") {
		return parts[1]
	}
	if parts[0] == "prefetch" {
		return parts[0]
	}
	return ""
}

// sportFromKey выводит вид спорта из ключей префетча:
// "prefetch:soccer:fixtures" -> "soccer"
func sportFromKey(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) >= 3 && parts[0] == "prefetch" {
		return parts[1]
	}
	return ""
}
