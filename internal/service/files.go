package service

import (
	"context"
	"log/slog"

	"github.com/AydinTheFirst/ri-transfer/internal/domain/model"
	"github.com/AydinTheFirst/ri-transfer/internal/repository"
)

// FileService — чтение записей файлов.
type FileService struct {
	files  repository.FileRepository
	logger *slog.Logger
}

// NewFileService создаёт сервис файлов.
func NewFileService(files repository.FileRepository, logger *slog.Logger) *FileService {
	return &FileService{
		files:  files,
		logger: logger.With(slog.String("component", "file_service")),
	}
}

// List возвращает все записи файлов. Пустой результат — пустой срез, не nil.
func (s *FileService) List(ctx context.Context) ([]*model.File, error) {
	files, err := s.files.ListAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list files", Err: err}
	}
	if files == nil {
		files = []*model.File{}
	}
	return files, nil
}
