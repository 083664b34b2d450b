// logging.go — журнал HTTP-запросов ri-transfer.
// Маршрут пишется в нормализованном виде (как в метриках), идентификаторы
// папки и файла — отдельными атрибутами, чтобы по ним можно было искать.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// responseWriter — обёртка для перехвата статус-кода и размера ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestLogger возвращает middleware журнала запросов.
// Уровень зависит от статуса: INFO (1xx-3xx), WARN (4xx), ERROR (5xx).
// Для загрузки дополнительно пишется объём тела запроса.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			if wrapped.statusCode >= 500 {
				level = slog.LevelError
			} else if wrapped.statusCode >= 400 {
				level = slog.LevelWarn
			}

			route := normalizePath(r.URL.Path)
			attrs := make([]slog.Attr, 0, 10)
			attrs = append(attrs,
				slog.String("request_id", chimw.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
			)
			attrs = append(attrs, routeIDs(route, r.URL.Path)...)
			if r.Method == http.MethodPost && route == "/api/files" {
				attrs = append(attrs, slog.Int64("request_bytes", r.ContentLength))
			}
			if route == "other" {
				// Неизвестные пути (сканеры) — полный путь для разбора
				attrs = append(attrs, slog.String("path", r.URL.Path))
			}
			attrs = append(attrs, slog.String("remote_addr", r.RemoteAddr))

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}

// routeIDs извлекает идентификаторы папки и файла из пути /api/folders/...
func routeIDs(route, path string) []slog.Attr {
	if !strings.HasPrefix(route, "/api/folders/") {
		return nil
	}
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/folders/"), "/"), "/")
	attrs := []slog.Attr{slog.String("folder_id", segments[0])}
	if len(segments) == 3 {
		attrs = append(attrs, slog.String("file_id", segments[2]))
	}
	return attrs
}
