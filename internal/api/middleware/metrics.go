// metrics.go — Prometheus HTTP метрики ri-transfer.
// Регистрирует метрики: rt_http_requests_total, rt_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rt_http_requests_total",
			Help: "Общее количество HTTP-запросов к ri-transfer",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rt_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к ri-transfer в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет идентификаторы в пути на шаблоны.
// /api/folders/a1b2... → /api/folders/{folderId}
// /api/folders/a1b2.../files/c3d4... → /api/folders/{folderId}/files/{fileId}
// Неизвестные пути сводятся к "other".
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics", "/api/files":
		return path
	}

	const foldersPrefix = "/api/folders/"
	if rest, ok := strings.CutPrefix(path, foldersPrefix); ok && rest != "" {
		segments := strings.Split(strings.TrimSuffix(rest, "/"), "/")
		switch {
		case len(segments) == 1:
			return "/api/folders/{folderId}"
		case len(segments) == 3 && segments[1] == "files":
			return "/api/folders/{folderId}/files/{fileId}"
		}
	}

	return "other"
}
