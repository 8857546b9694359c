// system.go — справочные endpoints: матрица политик и контракт API.
// Публичные (без аутентификации), используются клиентами для проверки
// файла до загрузки.
package handlers

import (
	"net/http"

	"github.com/bigkaa/docstore/internal/api/generated"
	"github.com/bigkaa/docstore/internal/domain/policy"
)

// SystemHandler — обработчик справочных endpoints.
type SystemHandler struct {
	registry *policy.Registry
}

// NewSystemHandler создаёт обработчик справочных endpoints.
func NewSystemHandler(registry *policy.Registry) *SystemHandler {
	return &SystemHandler{registry: registry}
}

// ListPolicies обрабатывает GET /api/v1/policies.
func (h *SystemHandler) ListPolicies(w http.ResponseWriter, _ *http.Request) {
	types := h.registry.DocumentTypes()
	resp := make([]generated.DocumentPolicy, 0, len(types))

	for _, name := range types {
		p, err := h.registry.PolicyFor(name)
		if err != nil {
			continue
		}
		resp = append(resp, generated.DocumentPolicy{
			DocumentType:      name,
			AllowedMimeTypes:  p.AllowedMimeTypes,
			AllowedExtensions: p.AllowedExtensions,
			MaxSizeBytes:      p.MaxSizeBytes,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetOpenAPISpec обрабатывает GET /api/v1/openapi.yaml.
func (h *SystemHandler) GetOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(generated.SpecYAML)
}
