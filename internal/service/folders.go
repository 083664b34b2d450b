// folders.go — просмотр папки и скачивание её файлов.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AydinTheFirst/ri-transfer/internal/domain/model"
	"github.com/AydinTheFirst/ri-transfer/internal/repository"
	"github.com/AydinTheFirst/ri-transfer/internal/storage/contentstore"
)

// FolderService — чтение папок с кэшированием.
type FolderService struct {
	folders repository.FolderRepository
	files   repository.FileRepository
	store   contentstore.Store
	cache   *CacheService
	logger  *slog.Logger
}

// NewFolderService создаёт сервис папок. cache может быть nil.
func NewFolderService(
	folders repository.FolderRepository,
	files repository.FileRepository,
	store contentstore.Store,
	cache *CacheService,
	logger *slog.Logger,
) *FolderService {
	return &FolderService{
		folders: folders,
		files:   files,
		store:   store,
		cache:   cache,
		logger:  logger.With(slog.String("component", "folder_service")),
	}
}

// Get возвращает запечатанную папку с файлами в порядке отправки.
func (s *FolderService) Get(ctx context.Context, folderID string) (*model.Folder, error) {
	if _, err := uuid.Parse(folderID); err != nil {
		return nil, ErrNotFound
	}

	if s.cache != nil {
		if folder, ok := s.cache.Get(folderID); ok {
			return folder, nil
		}
	}

	folder, err := s.folders.GetByID(ctx, folderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "get folder", Err: err}
	}
	// Незапечатанная папка снаружи не видна
	if folder.SealedAt == nil {
		return nil, ErrNotFound
	}

	files, err := s.files.ListByFolder(ctx, folderID)
	if err != nil {
		return nil, &PersistenceError{Op: "list folder files", Err: err}
	}
	folder.Files = files

	if s.cache != nil {
		s.cache.Set(folder)
	}
	return folder, nil
}

// Download — открытый артефакт файла. Вызывающий код обязан закрыть Content.
type Download struct {
	File    *model.File
	Content io.ReadSeekCloser
	Info    contentstore.Info
}

// OpenFile открывает артефакт файла fileID из папки folderID.
func (s *FolderService) OpenFile(ctx context.Context, folderID, fileID string) (*Download, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, ErrNotFound
	}

	folder, err := s.Get(ctx, folderID)
	if err != nil {
		return nil, err
	}

	var file *model.File
	for _, f := range folder.Files {
		if f.ID == fileID {
			file = f
			break
		}
	}
	if file == nil {
		return nil, ErrNotFound
	}

	content, info, err := s.store.Open(file.Name)
	if err != nil {
		if errors.Is(err, contentstore.ErrNotFound) {
			s.logger.Error("Артефакт отсутствует для существующей записи",
				slog.String("folder_id", folderID),
				slog.String("file_id", fileID),
				slog.String("name", file.Name),
			)
			return nil, ErrNotFound
		}
		return nil, &IOError{Op: "open", Name: file.Name, Err: err}
	}

	return &Download{File: file, Content: content, Info: info}, nil
}
