// files.go — обработчики /api/files: загрузка набора файлов и список файлов.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/AydinTheFirst/ri-transfer/internal/api/errors"
	"github.com/AydinTheFirst/ri-transfer/internal/progress"
	"github.com/AydinTheFirst/ri-transfer/internal/service"
)

const (
	// formFieldFiles — имя поля multipart-формы с файлами.
	formFieldFiles = "files"
	// maxFormMemory — часть формы, удерживаемая в памяти; остальное уходит во временные файлы.
	maxFormMemory = 32 << 20
)

// uploadReceivedBytes — объём принятых тел запросов загрузки.
var uploadReceivedBytes = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "rt_upload_received_bytes",
	Help:    "Объём тела запроса загрузки, прочитанный сервером, в байтах",
	Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
})

// UploadFiles — POST /api/files. Создаёт папку из полей "files" формы.
func (h *APIHandler) UploadFiles(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if h.maxUploadSize > 0 {
		body = http.MaxBytesReader(w, body, h.maxUploadSize)
	}
	pr := progress.NewReader(body, r.ContentLength)
	r.Body = pr
	go h.trackProgress(r, pr.Events())
	defer pr.Close()

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		h.writeFormError(w, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	parts, err := readParts(r.MultipartForm.File[formFieldFiles])
	if err != nil {
		h.logger.Error("Ошибка чтения части формы", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось прочитать загруженные файлы")
		return
	}

	folder, err := h.uploads.Upload(r.Context(), parts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, folder)
}

// ListFiles — GET /api/files. Возвращает все файлы.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// trackProgress логирует ход приёма тела запроса и пишет итог в метрику.
func (h *APIHandler) trackProgress(r *http.Request, events <-chan progress.Event) {
	logger := h.logger.With(slog.String("remote_addr", r.RemoteAddr))
	for ev := range events {
		if ev.Final {
			uploadReceivedBytes.Observe(float64(ev.Read))
			if ev.Err != nil {
				logger.Debug("Приём тела прерван",
					slog.Int64("read", ev.Read),
					slog.String("error", ev.Err.Error()),
				)
			}
			continue
		}
		logger.Debug("Приём тела запроса",
			slog.Int64("read", ev.Read),
			slog.Int64("total", ev.Total),
			slog.Float64("percent", ev.Percent()),
		)
	}
}

// readParts читает содержимое частей формы в память.
func readParts(headers []*multipart.FileHeader) ([]service.FilePart, error) {
	parts := make([]service.FilePart, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		parts = append(parts, service.FilePart{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Data:        data,
		})
	}
	return parts, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("открытие части %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("чтение части %q: %w", fh.Filename, err)
	}
	return data, nil
}

// writeFormError преобразует ошибку разбора формы в HTTP-ответ.
// Запрос без multipart-тела эквивалентен пустому набору файлов.
func (h *APIHandler) writeFormError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		apierrors.PayloadTooLarge(w, fmt.Sprintf("Размер запроса превышает лимит %d байт", tooLarge.Limit))
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		apierrors.ValidationError(w, apierrors.MsgNoFilesProvided)
	default:
		h.logger.Warn("Некорректная multipart-форма", slog.String("error", err.Error()))
		apierrors.ValidationError(w, "Некорректная multipart-форма")
	}
}

// writeServiceError преобразует ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoFilesProvided):
		apierrors.ValidationError(w, apierrors.MsgNoFilesProvided)
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	default:
		h.logger.Error("Ошибка обработки запроса", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
