package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/AydinTheFirst/ri-transfer/internal/domain/model"
)

// FolderRepository — доступ к таблице folders.
type FolderRepository interface {
	// Create создаёт папку. ID и временные метки задаёт вызывающий код.
	Create(ctx context.Context, f *model.Folder) error
	// Seal фиксирует набор файлов папки. Повторное запечатывание — ErrConflict.
	Seal(ctx context.Context, id string, fileCount int, sealedAt time.Time) error
	// GetByID возвращает папку без файлов.
	GetByID(ctx context.Context, id string) (*model.Folder, error)
	// ListExpired возвращает до limit папок с expires_at <= now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.Folder, error)
	// Delete удаляет папку (файлы удаляются каскадно).
	Delete(ctx context.Context, id string) error
}

type folderRepo struct {
	db DBTX
}

// NewFolderRepository создаёт репозиторий папок.
func NewFolderRepository(db DBTX) FolderRepository {
	return &folderRepo{db: db}
}

const folderColumns = `id, created_at, expires_at, file_count, sealed_at`

func (r *folderRepo) Create(ctx context.Context, f *model.Folder) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO folders (id, created_at, expires_at, file_count, sealed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.CreatedAt, f.ExpiresAt, f.FileCount, f.SealedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: папка %s уже существует", ErrConflict, f.ID)
		}
		return fmt.Errorf("ошибка создания папки: %w", err)
	}
	return nil
}

func (r *folderRepo) Seal(ctx context.Context, id string, fileCount int, sealedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE folders SET file_count = $2, sealed_at = $3
		WHERE id = $1 AND sealed_at IS NULL`,
		id, fileCount, sealedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка запечатывания папки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Либо папки нет, либо она уже запечатана
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: папка %s уже запечатана", ErrConflict, id)
	}
	return nil
}

func (r *folderRepo) GetByID(ctx context.Context, id string) (*model.Folder, error) {
	f, err := scanFolder(r.db.QueryRow(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения папки: %w", err)
	}
	return f, nil
}

func (r *folderRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.Folder, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+folderColumns+`
		FROM folders
		WHERE expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истёкших папок: %w", err)
	}
	defer rows.Close()

	var folders []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования папки: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func (r *folderRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM folders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления папки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFolder(row pgx.Row) (*model.Folder, error) {
	f := &model.Folder{}
	if err := row.Scan(&f.ID, &f.CreatedAt, &f.ExpiresAt, &f.FileCount, &f.SealedAt); err != nil {
		return nil, err
	}
	return f, nil
}
