package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sports-fixtures-bot/internal/aggregator"
	"sports-fixtures-bot/internal/coordination"
	"sports-fixtures-bot/internal/events"
	"sports-fixtures-bot/internal/fetcher"
	redis "sports-fixtures-bot/internal/infrastructure/cache/redis"
	"sports-fixtures-bot/internal/infrastructure/config"
	"sports-fixtures-bot/internal/infrastructure/persistence/postgres/database"
	"sports-fixtures-bot/internal/infrastructure/persistence/postgres/repository/health"
	"sports-fixtures-bot/internal/prefetch"
	"sports-fixtures-bot/internal/scheduler"
	"sports-fixtures-bot/pkg/logger"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalf("Не удалось загрузить конфигурацию: %v", err)
	}

	if err := logger.InitGlobal(cfg.LogPath, cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}

	printHeader("АГРЕГАТОР СПОРТИВНЫХ СОБЫТИЙ")
	fmt.Printf("🔧 Конфигурация:\n")
	fmt.Printf("   Redis: %s\n", map[bool]string{true: fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port), false: "отключен (память)"}[cfg.Redis.Enabled])
	fmt.Printf("   Архив в Postgres: %v\n", cfg.Database.Enabled)
	fmt.Printf("   Виды спорта: %s\n", strings.Join(cfg.Prefetch.Sports, ", "))
	fmt.Printf("   Интервал префетча: %v\n", cfg.Prefetch.Interval)
	fmt.Printf("   Интервал агрегации: %v\n", cfg.Aggregator.Interval)
	fmt.Println()

	// Отказоустойчивый клиент кэша
	cacheClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Некорректная конфигурация кэша: %v", err)
	}
	if err := cacheClient.Connect(); err != nil {
		log.Fatalf("Не удалось запустить клиент кэша: %v", err)
	}

	// Внутрипроцессная шина событий
	bus := events.NewEventBus(256)
	bus.Start()
	bus.Subscribe(events.PrefetchCompleted, func(e events.Event) {
		logger.Debug("📬 [Main] Префетч завершён: %v", e.Payload)
	})

	// Координатор блокировок поверх кэша
	locks := coordination.NewLockCoordinator(cacheClient)

	// Опциональный архив телеметрии
	var archive prefetch.HealthArchive
	var healthRepo *health.HealthRepositoryImpl
	var dbService *database.DatabaseService
	if cfg.Database.Enabled {
		dbService = database.NewDatabaseService(cfg.Database)
		if err := dbService.Start(); err != nil {
			log.Fatalf("Не удалось подключиться к базе данных: %v", err)
		}
		healthRepo = health.NewHealthRepository(dbService.GetDB())
		archive = healthRepo
	}

	// Провайдер спортивных данных.
	// Сетевые фетчеры живут в отдельных сервисах; по умолчанию
	// используется статический провайдер для демо и тестов.
	provider := fetcher.NewStaticFetcher()

	prefetchService := prefetch.NewService(cfg.Prefetch, cacheClient, locks, provider, bus, archive)
	fixtureAggregator := aggregator.New(cacheClient, cfg.Aggregator)

	// Плановые задачи
	sched := scheduler.New()

	if cfg.Prefetch.Enabled {
		sched.Register(&scheduler.Job{
			Name:        "prefetch",
			Description: "Префетч команд и событий по всем видам спорта",
			Schedule:    prefetchService.ScheduleSpec(),
			RunAtStart:  true,
			Timeout:     cfg.Prefetch.LockTTL,
			Handler:     prefetchService.RunOnce,
		})
	}

	if cfg.Aggregator.Enabled {
		sched.Register(&scheduler.Job{
			Name:        "aggregate",
			Description: "Консолидация провайдерских снапшотов в сводку",
			Schedule:    scheduler.Every(cfg.Aggregator.Interval),
			RunAtStart:  true,
			Handler: func(ctx context.Context) error {
				snapshot, err := fixtureAggregator.Run(ctx)
				if err != nil {
					return err
				}
				if healthRepo != nil {
					if aerr := healthRepo.SaveAggregateTotals(ctx, snapshot); aerr != nil {
						logger.Warn("⚠️ [Main] Сводка не заархивирована: %v", aerr)
					}
				}
				return nil
			},
		})
	}

	sched.Start()

	// Ожидаем сигнал завершения
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("🛑 [Main] Получен сигнал завершения, останавливаемся...")

	sched.Stop()
	bus.Stop()
	if err := cacheClient.Close(); err != nil {
		logger.Warn("⚠️ [Main] Ошибка при закрытии кэша: %v", err)
	}
	if dbService != nil {
		if err := dbService.Stop(); err != nil {
			logger.Warn("⚠️ [Main] Ошибка при остановке БД: %v", err)
		}
	}

	logger.Info("👋 [Main] Работа завершена")
}

func printHeader(title string) {
	line := strings.Repeat("═", len([]rune(title))+4)
	fmt.Println(line)
	fmt.Printf("║ %s ║\n", title)
	fmt.Println(line)
}
