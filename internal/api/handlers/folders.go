// folders.go — обработчики /api/folders: просмотр папки и скачивание файла.
package handlers

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetFolder — GET /api/folders/{folderId}.
func (h *APIHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := h.folders.Get(r.Context(), chi.URLParam(r, "folderId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// DownloadFile — GET /api/folders/{folderId}/files/{fileId}.
// Поддерживает Range и условные запросы через http.ServeContent.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	dl, err := h.folders.OpenFile(r.Context(), chi.URLParam(r, "folderId"), chi.URLParam(r, "fileId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer dl.Content.Close()

	f := dl.File
	w.Header().Set("Content-Type", f.Type)
	w.Header().Set("Content-Disposition", contentDisposition(f.OriginalName))
	w.Header().Set("ETag", fmt.Sprintf("%q", f.Checksum))
	w.Header().Set("Accept-Ranges", "bytes")

	h.logger.Debug("Скачивание файла",
		slog.String("folder_id", f.FolderID),
		slog.String("file_id", f.ID),
		slog.Int64("size", dl.Info.Size),
	)

	http.ServeContent(w, r, f.Name, dl.Info.ModTime, dl.Content)
}

// contentDisposition формирует заголовок attachment с исходным именем файла.
// Для не-ASCII имён mime.FormatMediaType использует кодировку RFC 2231.
func contentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
