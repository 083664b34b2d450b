// Пакет service — бизнес-логика ri-transfer.
// upload.go — транзакционная загрузка набора файлов в новую папку.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AydinTheFirst/ri-transfer/internal/domain/model"
	"github.com/AydinTheFirst/ri-transfer/internal/events"
	"github.com/AydinTheFirst/ri-transfer/internal/repository"
	"github.com/AydinTheFirst/ri-transfer/internal/storage/contentstore"
)

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rt_uploads_total",
		Help: "Общее количество запросов загрузки (по статусу).",
	}, []string{"status"})

	uploadFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_upload_files_total",
		Help: "Общее количество сохранённых файлов.",
	})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rt_upload_bytes_total",
		Help: "Общее количество сохранённых байт.",
	})

	uploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rt_upload_duration_seconds",
		Help:    "Длительность транзакции загрузки (без чтения тела запроса).",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

const (
	// defaultContentType — MIME-тип, если он не заявлен и не распознан.
	defaultContentType = "application/octet-stream"
	// Ограничения колонок files.original_name и files.type (в символах).
	maxOriginalNameLen = 1024
	maxContentTypeLen  = 255
)

// FilePart — файл из multipart-запроса, полностью прочитанный в память.
type FilePart struct {
	// Filename — имя файла, переданное клиентом
	Filename string
	// ContentType — заявленный MIME-тип (может быть пустым)
	ContentType string
	// Size — заявленный размер в байтах
	Size int64
	// Data — содержимое файла
	Data []byte
}

// Transactor выполняет fn в одной транзакции БД.
// Реализуется repository.TxRunner.
type Transactor interface {
	WithRepositories(ctx context.Context, fn func(repos *repository.Repositories) error) error
}

// UploadService — создание папки с файлами.
//
// Гарантия: запись File видна в БД только вместе с артефактом,
// а от отменённой загрузки не остаётся ни записей, ни артефактов.
type UploadService struct {
	tx        Transactor
	store     contentstore.Store
	publisher events.Publisher
	ttl       time.Duration
	maxFiles  int
	logger    *slog.Logger

	// now и newID подменяются в тестах
	now   func() time.Time
	newID func() string
}

// NewUploadService создаёт сервис загрузки.
// ttl — срок жизни папки, maxFiles — лимит файлов в запросе (0 — без лимита).
func NewUploadService(
	tx Transactor,
	store contentstore.Store,
	publisher events.Publisher,
	ttl time.Duration,
	maxFiles int,
	logger *slog.Logger,
) *UploadService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &UploadService{
		tx:        tx,
		store:     store,
		publisher: publisher,
		ttl:       ttl,
		maxFiles:  maxFiles,
		logger:    logger.With(slog.String("component", "upload_service")),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Upload сохраняет набор файлов в новую папку и возвращает её.
//
// Порядок:
//  1. Валидация (пустой набор → ErrNoFilesProvided, без побочных эффектов)
//  2. Имена хранения с разрешением коллизий
//  3. Stage всех артефактов (не видны под итоговыми именами)
//  4. Транзакция: папка → файлы в порядке отправки → запечатывание →
//     Commit артефактов
//  5. При любой ошибке зафиксированные артефакты удаляются,
//     неиспользованные временные — отбрасываются
func (s *UploadService) Upload(ctx context.Context, parts []FilePart) (*model.Folder, error) {
	if err := s.validate(parts); err != nil {
		uploadsTotal.WithLabelValues("validation_error").Inc()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		uploadsTotal.WithLabelValues("canceled").Inc()
		return nil, err
	}

	start := time.Now()
	createdAt := s.now().UTC().Truncate(time.Microsecond)
	folder := &model.Folder{
		ID:        s.newID(),
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(s.ttl),
	}
	logger := s.logger.With(slog.String("folder_id", folder.ID))

	// 2. Имена хранения
	alloc := newNameAllocator(folder.ID, s.store.Exists)
	names := make([]string, len(parts))
	for i, p := range parts {
		name, err := alloc.next(p.Filename)
		if err != nil {
			uploadsTotal.WithLabelValues("io_error").Inc()
			return nil, &IOError{Op: "exists", Name: p.Filename, Err: err}
		}
		names[i] = name
	}

	// 3. Stage
	staged := make([]contentstore.Staged, 0, len(parts))
	defer func() {
		for _, st := range staged {
			if err := st.Discard(); err != nil {
				logger.Warn("Не удалось удалить временный артефакт",
					slog.String("name", st.Name()),
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	for i, p := range parts {
		st, err := s.store.Stage(names[i], p.Data)
		if err != nil {
			uploadsTotal.WithLabelValues("io_error").Inc()
			logger.Error("Ошибка записи артефакта",
				slog.String("name", names[i]),
				slog.String("error", err.Error()),
			)
			return nil, &IOError{Op: "stage", Name: names[i], Err: err}
		}
		staged = append(staged, st)
	}

	files := make([]*model.File, len(parts))
	for i, p := range parts {
		files[i] = &model.File{
			ID:           s.newID(),
			FolderID:     folder.ID,
			Name:         names[i],
			OriginalName: p.Filename,
			Size:         p.Size,
			Type:         detectContentType(p.ContentType, p.Data),
			Checksum:     staged[i].Checksum(),
			Position:     i,
			CreatedAt:    createdAt,
		}
	}

	// 4. Транзакция
	sealedAt := s.now().UTC().Truncate(time.Microsecond)
	var committed []contentstore.Staged
	err := s.tx.WithRepositories(ctx, func(repos *repository.Repositories) error {
		committed = committed[:0]

		if err := repos.Folders.Create(ctx, folder); err != nil {
			return &PersistenceError{Op: "create folder", Err: err}
		}
		for _, f := range files {
			if err := repos.Files.Create(ctx, f); err != nil {
				return &PersistenceError{Op: "create file", Err: err}
			}
		}
		if err := repos.Folders.Seal(ctx, folder.ID, len(files), sealedAt); err != nil {
			return &PersistenceError{Op: "seal folder", Err: err}
		}

		// Артефакты становятся видимыми последними, до фиксации транзакции
		for _, st := range staged {
			if err := st.Commit(); err != nil {
				return &IOError{Op: "commit", Name: st.Name(), Err: err}
			}
			committed = append(committed, st)
		}
		return nil
	})
	if err != nil {
		// 5. Компенсация
		s.removeCommitted(logger, committed)

		var ioErr *IOError
		var pErr *PersistenceError
		switch {
		case errors.As(err, &ioErr):
			uploadsTotal.WithLabelValues("io_error").Inc()
		case errors.As(err, &pErr):
			uploadsTotal.WithLabelValues("persistence_error").Inc()
		default:
			// Ошибка начала или фиксации транзакции
			err = &PersistenceError{Op: "transaction", Err: err}
			uploadsTotal.WithLabelValues("persistence_error").Inc()
		}
		logger.Error("Загрузка отменена",
			slog.Int("files", len(parts)),
			slog.Int("compensated", len(committed)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	folder.FileCount = len(files)
	folder.SealedAt = &sealedAt
	folder.Files = files

	duration := time.Since(start)
	uploadsTotal.WithLabelValues("success").Inc()
	uploadFilesTotal.Add(float64(len(files)))
	uploadBytesTotal.Add(float64(folder.TotalSize()))
	uploadDuration.Observe(duration.Seconds())

	logger.Info("Папка создана",
		slog.Int("files", len(files)),
		slog.Int64("total_size", folder.TotalSize()),
		slog.Time("expires_at", folder.ExpiresAt),
		slog.Duration("duration", duration),
	)

	if err := s.publisher.PublishFolderCreated(ctx, events.NewFolderCreated(folder)); err != nil {
		logger.Warn("Не удалось опубликовать событие",
			slog.String("type", events.TypeFolderCreated),
			slog.String("error", err.Error()),
		)
	}

	return folder, nil
}

// validate проверяет набор файлов до любых побочных эффектов.
func (s *UploadService) validate(parts []FilePart) error {
	if len(parts) == 0 {
		return ErrNoFilesProvided
	}
	if s.maxFiles > 0 && len(parts) > s.maxFiles {
		return fmt.Errorf("%w: %d при лимите %d", ErrTooManyFiles, len(parts), s.maxFiles)
	}
	for i, p := range parts {
		if p.Filename == "" {
			return fmt.Errorf("%w: файл #%d без имени", ErrValidation, i)
		}
		if err := validateText(p.Filename, maxOriginalNameLen); err != nil {
			return fmt.Errorf("%w: имя файла #%d: %w", ErrValidation, i, err)
		}
		if err := validateText(p.ContentType, maxContentTypeLen); err != nil {
			return fmt.Errorf("%w: MIME-тип файла %q: %w", ErrValidation, p.Filename, err)
		}
		if p.Size != int64(len(p.Data)) {
			return fmt.Errorf("%w: файл %q: заявлено %d байт, получено %d",
				ErrValidation, p.Filename, p.Size, len(p.Data))
		}
	}
	return nil
}

// validateText проверяет строку, сохраняемую в текстовую колонку PostgreSQL:
// корректный UTF-8 без нулевых байт, не длиннее limit символов.
func validateText(v string, limit int) error {
	switch {
	case !utf8.ValidString(v):
		return errors.New("некорректная кодировка UTF-8")
	case strings.ContainsRune(v, 0):
		return errors.New("содержит нулевой байт")
	case utf8.RuneCountInString(v) > limit:
		return fmt.Errorf("длина %d символов превышает %d", utf8.RuneCountInString(v), limit)
	}
	return nil
}

// removeCommitted удаляет артефакты, зафиксированные до отката транзакции.
func (s *UploadService) removeCommitted(logger *slog.Logger, committed []contentstore.Staged) {
	for _, st := range committed {
		if err := s.store.Remove(st.Name()); err != nil {
			logger.Error("Не удалось удалить артефакт при откате",
				slog.String("name", st.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// detectContentType возвращает заявленный тип или определяет его по содержимому.
func detectContentType(declared string, data []byte) string {
	if declared != "" {
		return declared
	}
	if len(data) == 0 {
		return defaultContentType
	}
	if mt := mimetype.Detect(data); mt != nil {
		return mt.String()
	}
	return defaultContentType
}
