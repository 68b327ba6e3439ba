// internal/prefetch/service.go
package prefetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sports-fixtures-bot/internal/aggregator"
	"sports-fixtures-bot/internal/coordination"
	"sports-fixtures-bot/internal/core/domain/fixtures"
	"sports-fixtures-bot/internal/events"
	"sports-fixtures-bot/internal/fetcher"
	redis "sports-fixtures-bot/internal/infrastructure/cache/redis"
	"sports-fixtures-bot/internal/infrastructure/config"
	"sports-fixtures-bot/internal/scheduler"
	"sports-fixtures-bot/pkg/logger"

	"github.com/google/uuid"
)

// Имя блокировки прогона: два инстанса не должны дёргать провайдера хором
const runLockKey = "prefetch:run"

// Ключи снапшотов
func teamsKey(sport string) string    { return "prefetch:" + sport + ":teams" }
func fixturesKey(sport string) string { return "prefetch:" + sport + ":fixtures" }
func healthKey(sport string) string   { return "prefetch:health:" + sport }

// Хэш "вид спорта -> время последнего обновления" для быстрых health-чеков
const healthIndexKey = "prefetch:health"

// HealthArchive - опциональный архив телеметрии в Postgres.
// nil означает "архив выключен".
type HealthArchive interface {
	SaveHealthSnapshot(ctx context.Context, record fixtures.PrefetchHealthRecord) error
}

// Service - плановый префетч спортивных данных.
// Один прогон: блокировка -> последовательный обход видов спорта
// (команды, события по окну дат) -> нормализация -> снапшоты с TTL ->
// телеметрия -> снятие блокировки. Ошибка одного вида спорта никогда
// не прерывает остальные.
type Service struct {
	cfg      config.PrefetchConfig
	cache    redis.Store
	locks    *coordination.LockCoordinator
	provider fetcher.ProviderFetcher
	bus      *events.EventBus
	archive  HealthArchive

	// Подменяются в тестах
	now   func() time.Time
	pause func(time.Duration)
}

// NewService создает сервис префетча
func NewService(
	cfg config.PrefetchConfig,
	cache redis.Store,
	locks *coordination.LockCoordinator,
	provider fetcher.ProviderFetcher,
	bus *events.EventBus,
	archive HealthArchive,
) *Service {
	return &Service{
		cfg:      cfg,
		cache:    cache,
		locks:    locks,
		provider: provider,
		bus:      bus,
		archive:  archive,
		now:      time.Now,
		pause:    time.Sleep,
	}
}

// ScheduleSpec возвращает расписание прогонов из конфигурации
func (s *Service) ScheduleSpec() scheduler.Schedule {
	if s.cfg.DailyHour >= 0 {
		return scheduler.DailyAt(s.cfg.DailyHour, s.cfg.DailyMinute)
	}
	return scheduler.Every(s.cfg.Interval)
}

// RunOnce выполняет один прогон префетча.
// Занятая блокировка — не ошибка, а штатный пропуск цикла.
func (s *Service) RunOnce(ctx context.Context) error {
	acquired, err := s.locks.Acquire(ctx, runLockKey, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("prefetch: не удалось проверить блокировку: %w", err)
	}
	if !acquired {
		logger.Debug("⏭ [Prefetch] Прогон уже идёт в другом инстансе, пропускаем цикл")
		return nil
	}
	defer func() {
		if rerr := s.locks.Release(ctx, runLockKey); rerr != nil {
			logger.Warn("⚠️ [Prefetch] Не удалось снять блокировку: %v", rerr)
		}
	}()

	runID := uuid.New().String()[:8]
	logger.Info("🔄 [Prefetch] Прогон %s: %d видов спорта", runID, len(s.cfg.Sports))

	for _, sport := range s.cfg.Sports {
		s.prefetchSport(ctx, runID, sport)
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:   events.PrefetchCompleted,
			Source: "prefetch",
			Payload: map[string]interface{}{
				"run_id": runID,
				"sports": len(s.cfg.Sports),
			},
		})
	}

	return nil
}

// prefetchSport обрабатывает один вид спорта.
// Все ошибки ловятся здесь и оседают в телеметрии: наружу не выходит ничего.
func (s *Service) prefetchSport(ctx context.Context, runID, sport string) {
	record := fixtures.PrefetchHealthRecord{
		Sport:       sport,
		LastUpdated: s.now().UTC(),
	}

	// Команды
	teamsResult := s.provider.FetchTeams(ctx, sport)
	record.HTTPStatus = teamsResult.HTTPStatus
	record.PathUsed = teamsResult.PathUsed
	if teamsResult.Failed() {
		record.ErrorReason = teamsResult.ErrorReason
	} else if len(teamsResult.Items) > 0 {
		if err := s.storeTeams(ctx, sport, teamsResult.Items); err != nil {
			record.ErrorReason = "teams store: " + err.Error()
		} else {
			record.TeamsCount = len(teamsResult.Items)
		}
	}

	// События по окну дат вперёд, с паузой между датами,
	// чтобы не душить провайдера частотой запросов
	var rawEvents []json.RawMessage
	fetchFailed := false
	days := s.cfg.DateWindowDays
	if days < 1 {
		days = 1
	}
	for i := 0; i < days; i++ {
		if i > 0 {
			s.pause(s.cfg.DatePause)
		}
		day := s.now().UTC().AddDate(0, 0, i)
		result := s.provider.FetchFixtures(ctx, sport, day, day.AddDate(0, 0, 1))

		record.HTTPStatus = result.HTTPStatus
		if result.PathUsed != "" {
			record.PathUsed = result.PathUsed
		}
		if result.Failed() {
			record.ErrorReason = result.ErrorReason
			fetchFailed = true
			break
		}
		rawEvents = append(rawEvents, result.Items...)
	}

	// Снапшот перезаписывается на любом успешном ответе, в том числе
	// пустом: провайдер без событий — это новость, а не повод хранить
	// старый список. При сбое старый снапшот остаётся до своего TTL.
	if !fetchFailed {
		normalized := aggregator.NormalizeEvents(rawEvents, s.provider.Name(), sport, s.now().UTC())
		if err := s.storeFixtures(ctx, sport, normalized); err != nil {
			record.ErrorReason = "fixtures store: " + err.Error()
		} else {
			record.FixturesCount = len(normalized)
		}
	}

	s.writeHealth(ctx, record)
	logger.Prefetch(sport, record.FixturesCount, record.TeamsCount, record.ErrorReason)

	// Лёгкое уведомление потребителей об обновлении снапшота
	if err := s.cache.Publish(ctx, aggregator.ChannelUpdated, sport); err != nil {
		logger.Warn("⚠️ [Prefetch] Прогон %s: уведомление по %s не отправлено: %v", runID, sport, err)
	}
}

// storeTeams сохраняет сырой снапшот команд с TTL.
// Снапшот не обновился — TTL сам выведет его из оборота.
func (s *Service) storeTeams(ctx context.Context, sport string, items []json.RawMessage) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return s.cache.SetWithTTL(ctx, teamsKey(sport), string(data), s.cfg.TeamsTTL)
}

// storeFixtures сохраняет нормализованный снапшот событий с TTL
func (s *Service) storeFixtures(ctx context.Context, sport string, normalized []fixtures.NormalizedFixture) error {
	data, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	return s.cache.SetWithTTL(ctx, fixturesKey(sport), string(data), s.cfg.FixturesTTL)
}

// writeHealth перезаписывает телеметрию целиком.
// Запись атомарна по виду спорта и не зависит от соседей.
func (s *Service) writeHealth(ctx context.Context, record fixtures.PrefetchHealthRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		logger.Warn("⚠️ [Prefetch] Телеметрия по %s не сериализовалась: %v", record.Sport, err)
		return
	}
	if err := s.cache.Set(ctx, healthKey(record.Sport), string(data)); err != nil {
		logger.Warn("⚠️ [Prefetch] Телеметрия по %s не записана: %v", record.Sport, err)
	}
	if err := s.cache.HSet(ctx, healthIndexKey, record.Sport, record.LastUpdated.Format(time.RFC3339)); err != nil {
		logger.Warn("⚠️ [Prefetch] Индекс телеметрии по %s не обновлён: %v", record.Sport, err)
	}

	if s.archive != nil {
		if err := s.archive.SaveHealthSnapshot(ctx, record); err != nil {
			logger.Warn("⚠️ [Prefetch] Архив телеметрии по %s не записан: %v", record.Sport, err)
		}
	}
}
