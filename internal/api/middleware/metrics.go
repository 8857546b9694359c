// metrics.go — Prometheus HTTP метрики хранилища документов.
// Регистрирует метрики: ds_http_requests_total, ds_http_request_duration_seconds,
// ds_http_response_bytes_total. Бизнес-метрики регистрируются в пакете service.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const documentsPrefix = "/api/v1/documents/"

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_http_requests_total",
			Help: "Общее количество HTTP-запросов к хранилищу документов",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ds_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpResponseBytes — объём отданных данных (скачивания документов).
	httpResponseBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_http_response_bytes_total",
			Help: "Объём тел HTTP-ответов в байтах",
		},
		[]string{"path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// UUID заменяется на {id}, иначе кардинальность растёт неограниченно
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
			httpResponseBytes.WithLabelValues(normalizedPath).Add(float64(wrapped.written))
		})
	}
}

// normalizePath заменяет UUID-сегмент пути документа на {id}.
// /api/v1/documents/a1b2c3d4-e5f6-7890-abcd-ef1234567890/content → /api/v1/documents/{id}/content
// Неизвестные пути сворачиваются в "other".
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/documents", "/api/v1/policies",
		"/api/v1/maintenance/audit", "/api/v1/openapi.yaml":
		return path
	}

	if strings.HasPrefix(path, documentsPrefix) && isUUIDSegment(path, documentsPrefix) {
		switch path[len(documentsPrefix)+36:] {
		case "":
			return "/api/v1/documents/{id}"
		case "/content":
			return "/api/v1/documents/{id}/content"
		}
	}
	return "other"
}

// isUUIDSegment проверяет, начинается ли сегмент пути после prefix с UUID.
func isUUIDSegment(path, prefix string) bool {
	if len(path) < len(prefix)+36 {
		return false
	}
	segment := path[len(prefix) : len(prefix)+36]
	for i, c := range segment {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
			continue
		}
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
