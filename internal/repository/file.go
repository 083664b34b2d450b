package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/AydinTheFirst/ri-transfer/internal/domain/model"
)

// FileRepository — доступ к таблице files.
type FileRepository interface {
	// Create создаёт запись файла. Конфликт имени хранения — ErrConflict.
	Create(ctx context.Context, f *model.File) error
	// ListByFolder возвращает файлы папки в порядке отправки.
	ListByFolder(ctx context.Context, folderID string) ([]*model.File, error)
	// ListAll возвращает все файлы.
	ListAll(ctx context.Context) ([]*model.File, error)
}

type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

const fileColumns = `id, folder_id, name, original_name, size, type, checksum, position, created_at`

func (r *fileRepo) Create(ctx context.Context, f *model.File) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID, f.FolderID, f.Name, f.OriginalName, f.Size, f.Type, f.Checksum, f.Position, f.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: файл %s уже существует", ErrConflict, f.Name)
		}
		return fmt.Errorf("ошибка создания файла: %w", err)
	}
	return nil
}

func (r *fileRepo) ListByFolder(ctx context.Context, folderID string) ([]*model.File, error) {
	files, err := r.list(ctx,
		`SELECT `+fileColumns+` FROM files WHERE folder_id = $1 ORDER BY position`, folderID)
	if err != nil && isInvalidUUID(err) {
		return nil, ErrNotFound
	}
	return files, err
}

func (r *fileRepo) ListAll(ctx context.Context) ([]*model.File, error) {
	return r.list(ctx,
		`SELECT `+fileColumns+` FROM files ORDER BY created_at, folder_id, position`)
}

func (r *fileRepo) list(ctx context.Context, query string, args ...any) ([]*model.File, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	files := make([]*model.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	return files, nil
}

func scanFile(row pgx.Row) (*model.File, error) {
	f := &model.File{}
	err := row.Scan(&f.ID, &f.FolderID, &f.Name, &f.OriginalName, &f.Size,
		&f.Type, &f.Checksum, &f.Position, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}
