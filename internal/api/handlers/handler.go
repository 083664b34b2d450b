// handler.go — основной обработчик API ri-transfer.
// Объединяет health и бизнес-обработчики, делегируя запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/AydinTheFirst/ri-transfer/internal/domain/model"
	"github.com/AydinTheFirst/ri-transfer/internal/service"
)

// Uploader — создание папки из набора файлов.
type Uploader interface {
	Upload(ctx context.Context, parts []service.FilePart) (*model.Folder, error)
}

// FileLister — список всех файлов.
type FileLister interface {
	List(ctx context.Context) ([]*model.File, error)
}

// FolderReader — чтение папок и содержимого файлов.
type FolderReader interface {
	Get(ctx context.Context, folderID string) (*model.Folder, error)
	OpenFile(ctx context.Context, folderID, fileID string) (*service.Download, error)
}

// APIHandler — основной обработчик API ri-transfer.
type APIHandler struct {
	health        *HealthHandler
	uploads       Uploader
	files         FileLister
	folders       FolderReader
	maxUploadSize int64
	logger        *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// maxUploadSize — лимит тела POST /api/files в байтах (0 — без лимита).
func NewAPIHandler(
	health *HealthHandler,
	uploads Uploader,
	files FileLister,
	folders FolderReader,
	maxUploadSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:        health,
		uploads:       uploads,
		files:         files,
		folders:       folders,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
