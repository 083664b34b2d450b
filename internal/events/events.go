// Пакет events — публикация событий о созданных папках.
//
// Событие folder.created отправляется после успешной загрузки.
// Ошибка публикации не влияет на результат загрузки: вызывающий код
// только логирует её.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AydinTheFirst/ri-transfer/internal/domain/model"
)

// TypeFolderCreated — тип события создания папки.
const TypeFolderCreated = "folder.created"

var publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rt_events_published_total",
	Help: "Количество опубликованных событий (по статусу).",
}, []string{"status"})

// FolderCreated — тело события folder.created.
type FolderCreated struct {
	Type      string    `json:"type"`
	FolderID  string    `json:"folderId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	FileCount int       `json:"fileCount"`
	TotalSize int64     `json:"totalSize"`
}

// NewFolderCreated строит событие по запечатанной папке.
func NewFolderCreated(f *model.Folder) FolderCreated {
	return FolderCreated{
		Type:      TypeFolderCreated,
		FolderID:  f.ID,
		CreatedAt: f.CreatedAt,
		ExpiresAt: f.ExpiresAt,
		FileCount: len(f.Files),
		TotalSize: f.TotalSize(),
	}
}

// Marshal сериализует событие в JSON.
func (e FolderCreated) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher — получатель событий о папках.
type Publisher interface {
	PublishFolderCreated(ctx context.Context, ev FolderCreated) error
	Close() error
}

// Noop — публикатор-заглушка, когда брокер не настроен.
type Noop struct{}

// PublishFolderCreated ничего не делает.
func (Noop) PublishFolderCreated(context.Context, FolderCreated) error {
	publishedTotal.WithLabelValues("skipped").Inc()
	return nil
}

// Close ничего не делает.
func (Noop) Close() error { return nil }
