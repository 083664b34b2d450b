// Точка входа ri-transfer — сервиса обмена файлами.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// готовит директорию контента, создаёт сервисный слой и API handlers,
// запускает фоновые задачи (очистка папок, topologymetrics),
// HTTP-сервер и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/AydinTheFirst/ri-transfer/internal/api/handlers"
	"github.com/AydinTheFirst/ri-transfer/internal/api/middleware"
	"github.com/AydinTheFirst/ri-transfer/internal/config"
	"github.com/AydinTheFirst/ri-transfer/internal/database"
	"github.com/AydinTheFirst/ri-transfer/internal/events"
	"github.com/AydinTheFirst/ri-transfer/internal/repository"
	"github.com/AydinTheFirst/ri-transfer/internal/server"
	"github.com/AydinTheFirst/ri-transfer/internal/service"
	"github.com/AydinTheFirst/ri-transfer/internal/storage/contentstore"
)

func main() {
	// 1. Загрузка конфигурации (.env + переменные окружения)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("ri-transfer запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("RT_DEPHEALTH_GROUP") == "" {
		logger.Warn("RT_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Директория контента
	store, err := contentstore.NewLocal(cfg.ContentDir)
	if err != nil {
		logger.Error("Ошибка инициализации директории контента",
			slog.String("dir", cfg.ContentDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if removed, err := store.CleanupStaging(); err != nil {
		logger.Warn("Ошибка очистки временных файлов", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("Удалены временные файлы прерванных загрузок", slog.Int("count", removed))
	}

	// 6. Repositories
	txRunner := repository.NewTxRunner(pool)
	folderRepo := repository.NewFolderRepository(pool)
	fileRepo := repository.NewFileRepository(pool)

	// 7. События
	var publisher events.Publisher = events.Noop{}
	if cfg.AMQPURL != "" {
		amqpPub, amqpErr := events.NewAMQP(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if amqpErr != nil {
			logger.Warn("AMQP недоступен, события не публикуются",
				slog.String("error", amqpErr.Error()),
			)
		} else {
			publisher = amqpPub
			logger.Info("AMQP публикатор подключён", slog.String("queue", cfg.AMQPQueue))
		}
	}
	defer publisher.Close()

	// 8. Services
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	uploadSvc := service.NewUploadService(txRunner, store, publisher, cfg.FolderTTL, cfg.MaxFiles, logger)
	fileSvc := service.NewFileService(fileRepo, logger)
	folderSvc := service.NewFolderService(folderRepo, fileRepo, store, cache, logger)

	// 9. Фоновая очистка истёкших папок
	if cfg.SweepEnabled {
		sweeper := service.NewSweeperService(txRunner, folderRepo, store, cache,
			cfg.SweepInterval, cfg.SweepBatchSize, logger)
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL)
	var deps handlers.DependencyReporter
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"ri-transfer",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		deps = dephealthSvc
		defer dephealthSvc.Stop()
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 11. Handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), store, deps)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		uploadSvc,
		fileSvc,
		folderSvc,
		cfg.MaxUploadSize,
		logger,
	)

	// 12. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler,
		chimw.RequestID,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		chimw.Recoverer,
	)

	// 13. Запуск (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		cancel()
		os.Exit(1) //nolint:gocritic // отложенные вызовы не критичны при аварийном завершении
	}

	logger.Info("ri-transfer остановлен")
}
