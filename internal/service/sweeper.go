// sweeper.go — фоновое удаление папок с истёкшим сроком жизни.
//
// Sweeper не участвует в загрузке: он периодически выбирает истёкшие
// папки пачками, удаляет запись папки (файлы — каскадно) в транзакции,
// затем артефакты и запись кэша.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AydinTheFirst/ri-transfer/internal/repository"
	"github.com/AydinTheFirst/ri-transfer/internal/storage/contentstore"
)

// Prometheus-метрики sweeper.
var (
	sweeperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_sweeper_runs_total",
		Help: "Общее количество запусков sweeper",
	})

	sweeperFoldersDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_sweeper_folders_deleted_total",
		Help: "Общее количество папок, удалённых sweeper",
	})

	sweeperDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rt_sweeper_duration_seconds",
		Help:    "Длительность выполнения sweeper в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult — результат одного запуска.
type SweepResult struct {
	// FoldersDeleted — количество удалённых папок
	FoldersDeleted int
	// ArtifactsDeleted — количество удалённых артефактов
	ArtifactsDeleted int
	// Errors — количество ошибок
	Errors   int
	Duration time.Duration
}

// SweeperService — периодическое удаление истёкших папок.
type SweeperService struct {
	tx        Transactor
	folders   repository.FolderRepository
	store     contentstore.Store
	cache     *CacheService
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	now func() time.Time

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeperService создаёт sweeper. cache может быть nil.
func NewSweeperService(
	tx Transactor,
	folders repository.FolderRepository,
	store contentstore.Store,
	cache *CacheService,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *SweeperService {
	return &SweeperService{
		tx:        tx,
		folders:   folders,
		store:     store,
		cache:     cache,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "sweeper")),
		now:       time.Now,
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (s *SweeperService) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(sweepCtx)

	s.logger.Info("Sweeper запущен",
		slog.String("interval", s.interval.String()),
		slog.Int("batch_size", s.batchSize),
	)
}

// Stop останавливает фоновый процесс и дожидается текущего прохода.
func (s *SweeperService) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.logger.Info("Sweeper остановлен")
}

func (s *SweeperService) run(ctx context.Context) {
	defer close(s.done)

	// Первый запуск — сразу после старта
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce удаляет истёкшие папки пачками по batchSize,
// пока очередная пачка не окажется неполной.
func (s *SweeperService) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}
	now := s.now().UTC()

	for ctx.Err() == nil {
		expired, err := s.folders.ListExpired(ctx, now, s.batchSize)
		if err != nil {
			s.logger.Error("Ошибка выборки истёкших папок", slog.String("error", err.Error()))
			result.Errors++
			break
		}

		deletedInBatch := 0
		for _, folder := range expired {
			artifacts, err := s.deleteFolder(ctx, folder.ID)
			if err != nil {
				result.Errors++
				continue
			}
			deletedInBatch++
			result.ArtifactsDeleted += artifacts
		}
		result.FoldersDeleted += deletedInBatch

		// Пачка неполная или целиком неудачная — повтор до следующего тика
		if len(expired) < s.batchSize || deletedInBatch == 0 {
			break
		}
	}

	result.Duration = time.Since(start)

	sweeperRunsTotal.Inc()
	sweeperFoldersDeletedTotal.Add(float64(result.FoldersDeleted))
	sweeperDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Sweeper завершён",
		slog.Int("folders_deleted", result.FoldersDeleted),
		slog.Int("artifacts_deleted", result.ArtifactsDeleted),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// deleteFolder удаляет папку и её артефакты. Возвращает количество
// удалённых артефактов.
func (s *SweeperService) deleteFolder(ctx context.Context, folderID string) (int, error) {
	var names []string
	err := s.tx.WithRepositories(ctx, func(repos *repository.Repositories) error {
		files, err := repos.Files.ListByFolder(ctx, folderID)
		if err != nil {
			return err
		}
		names = names[:0]
		for _, f := range files {
			names = append(names, f.Name)
		}
		return repos.Folders.Delete(ctx, folderID)
	})
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("Ошибка удаления папки",
			slog.String("folder_id", folderID),
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	if s.cache != nil {
		s.cache.Delete(folderID)
	}

	// Записи уже удалены; недоудалённый артефакт не виден через API
	removed := 0
	for _, name := range names {
		if err := s.store.Remove(name); err != nil {
			s.logger.Warn("Не удалось удалить артефакт",
				slog.String("folder_id", folderID),
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	s.logger.Debug("Папка удалена",
		slog.String("folder_id", folderID),
		slog.Int("artifacts", removed),
	)
	return removed, nil
}
