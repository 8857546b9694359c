// handler.go — APIHandler реализует generated.ServerInterface,
// делегируя вызовы в отдельные handler'ы по доменам.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bigkaa/docstore/internal/api/generated"
	"github.com/bigkaa/docstore/internal/server"
)

// APIHandler — единая реализация ServerInterface, собирающая
// все доменные handlers в один объект.
type APIHandler struct {
	documents   *DocumentsHandler
	system      *SystemHandler
	maintenance *MaintenanceHandler
	health      *HealthHandler
	metrics     *server.MetricsHandler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	documents *DocumentsHandler,
	system *SystemHandler,
	maintenance *MaintenanceHandler,
	health *HealthHandler,
	metrics *server.MetricsHandler,
) *APIHandler {
	return &APIHandler{
		documents:   documents,
		system:      system,
		maintenance: maintenance,
		health:      health,
		metrics:     metrics,
	}
}

// --- Documents ---

func (h *APIHandler) ListDocuments(w http.ResponseWriter, r *http.Request, params generated.ListDocumentsParams) {
	h.documents.ListDocuments(w, r, params)
}

func (h *APIHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	h.documents.UploadDocument(w, r)
}

func (h *APIHandler) GetDocument(w http.ResponseWriter, r *http.Request, id generated.DocumentId) {
	h.documents.GetDocument(w, r, id)
}

func (h *APIHandler) DeleteDocument(w http.ResponseWriter, r *http.Request, id generated.DocumentId) {
	h.documents.DeleteDocument(w, r, id)
}

func (h *APIHandler) DownloadDocument(w http.ResponseWriter, r *http.Request, id generated.DocumentId) {
	h.documents.DownloadDocument(w, r, id)
}

func (h *APIHandler) ReplaceDocument(w http.ResponseWriter, r *http.Request, id generated.DocumentId) {
	h.documents.ReplaceDocument(w, r, id)
}

// --- System ---

func (h *APIHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	h.system.ListPolicies(w, r)
}

func (h *APIHandler) GetOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	h.system.GetOpenAPISpec(w, r)
}

// --- Maintenance ---

func (h *APIHandler) RunAudit(w http.ResponseWriter, r *http.Request) {
	h.maintenance.RunAudit(w, r)
}

// --- Health ---

func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// --- Metrics ---

func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.GetMetrics(w, r)
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ generated.ServerInterface = (*APIHandler)(nil)

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
