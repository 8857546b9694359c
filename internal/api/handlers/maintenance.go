// maintenance.go — обработчик POST /api/v1/maintenance/audit.
// Делегирует проверку целостности в AuditService.
package handlers

import (
	"context"
	"net/http"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/api/generated"
	"github.com/bigkaa/docstore/internal/service"
)

// AuditRunner — интерфейс для запуска проверки целостности.
// Позволяет тестировать handler без полного AuditService.
type AuditRunner interface {
	// RunOnce выполняет один проход проверки.
	// Возвращает отчёт и флаг "уже выполняется".
	RunOnce(ctx context.Context) (*service.AuditReport, bool)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	auditor AuditRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(auditor AuditRunner) *MaintenanceHandler {
	return &MaintenanceHandler{auditor: auditor}
}

// RunAudit обрабатывает POST /api/v1/maintenance/audit.
// Запускает синхронный проход и возвращает отчёт.
// Если проверка уже выполняется — 409 AUDIT_IN_PROGRESS.
func (h *MaintenanceHandler) RunAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditor == nil {
		apierrors.ServiceUnavailable(w, "Проверка целостности не настроена")
		return
	}

	report, inProgress := h.auditor.RunOnce(r.Context())
	if inProgress {
		apierrors.AuditInProgress(w, "Проверка целостности уже выполняется")
		return
	}

	writeJSON(w, http.StatusOK, toAPIAuditReport(report))
}

// toAPIAuditReport преобразует отчёт сервиса в API-формат.
func toAPIAuditReport(r *service.AuditReport) generated.AuditReport {
	resp := generated.AuditReport{
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		DocumentsChecked: r.DocumentsChecked,
		Issues:           make([]generated.AuditIssue, 0, len(r.Issues)),
	}
	for _, issue := range r.Issues {
		resp.Issues = append(resp.Issues, generated.AuditIssue{
			Type:        generated.AuditIssueType(issue.Type),
			DocumentId:  issue.DocumentID,
			StorageMode: generated.StorageMode(issue.StorageMode),
			Description: issue.Description,
		})
	}

	s := r.Summary
	resp.Summary.Ok = &s.OK
	resp.Summary.HashMismatches = &s.HashMismatches
	resp.Summary.SizeMismatches = &s.SizeMismatches
	resp.Summary.BlobsMissing = &s.BlobsMissing
	resp.Summary.InvalidEncodings = &s.InvalidEncodings
	resp.Summary.ReadErrors = &s.ReadErrors
	return resp
}
