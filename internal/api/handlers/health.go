// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/docstore/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// serviceName — имя сервиса в ответах health.
const serviceName = "docstore"

// ReadinessChecker — проверка готовности внешней зависимости
// (PostgreSQL, MongoDB, S3). Возвращает статус ("ok", "fail") и сообщение.
type ReadinessChecker interface {
	CheckReady() (status string, message string)
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// dirs — локальные директории, доступные на запись (blob, WAL)
	dirs map[string]string
	// critical — зависимости, без которых сервис не готов
	critical map[string]ReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
// dirs и critical могут быть nil.
func NewHealthHandler(dirs map[string]string, critical map[string]ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version:  config.Version,
		dirs:     dirs,
		critical: critical,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Недоступная зависимость или директория данных — fail (503),
// недоступная директория WAL — degraded.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]any, len(h.dirs)+len(h.critical))

	for name, dir := range h.dirs {
		check := checkWritable(dir)
		checks[name] = check
		if check["status"] == "ok" {
			continue
		}
		if name == "wal" {
			if overallStatus != statusFail {
				overallStatus = "degraded"
			}
			continue
		}
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	for name, checker := range h.critical {
		status, message := checker.CheckReady()
		checks[name] = map[string]any{
			"status":  status,
			"message": message,
		}
		if status != "ok" {
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks":    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// checkWritable проверяет доступность директории на запись.
func checkWritable(dir string) map[string]any {
	testFile := filepath.Join(dir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}
