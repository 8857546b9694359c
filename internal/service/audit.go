// audit.go — фоновая проверка целостности документов.
//
// Для каждой активной записи содержимое читается через StorageRouter.Inspect
// (без побочных эффектов) и сверяется с сохранёнными размером и хешем.
//
// Обнаруживает проблемы:
//   - hash_mismatch: SHA-256 не совпадает с content_hash
//   - size_mismatch: длина не совпадает с size_bytes
//   - blob_missing: blob по blob_ref отсутствует
//   - invalid_encoding: inline-содержимое не декодируется
//   - read_error: сбой чтения (хранилище недоступно и т.п.)
//
// Запускается как горутина с периодическим тикером (DS_AUDIT_INTERVAL)
// и по запросу через POST /api/v1/maintenance/audit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/repository"
)

// Типы проблем проверки целостности.
const (
	IssueHashMismatch    = "hash_mismatch"
	IssueSizeMismatch    = "size_mismatch"
	IssueBlobMissing     = "blob_missing"
	IssueInvalidEncoding = "invalid_encoding"
	IssueReadError       = "read_error"
)

// auditPageSize — размер страницы при обходе записей.
const auditPageSize = 100

// AuditIssue — проблема, найденная у документа.
type AuditIssue struct {
	Type        string            `json:"type"`
	DocumentID  string            `json:"document_id"`
	StorageMode model.StorageMode `json:"storage_mode"`
	Description string            `json:"description"`
}

// AuditSummary — сводка по типам проблем.
type AuditSummary struct {
	OK               int `json:"ok"`
	HashMismatches   int `json:"hash_mismatches"`
	SizeMismatches   int `json:"size_mismatches"`
	BlobsMissing     int `json:"blobs_missing"`
	InvalidEncodings int `json:"invalid_encodings"`
	ReadErrors       int `json:"read_errors"`
}

// AuditReport — результат одного прохода.
type AuditReport struct {
	StartedAt        time.Time    `json:"started_at"`
	CompletedAt      time.Time    `json:"completed_at"`
	DocumentsChecked int          `json:"documents_checked"`
	Issues           []AuditIssue `json:"issues"`
	Summary          AuditSummary `json:"summary"`
}

// AuditService — сервис проверки целостности.
type AuditService struct {
	router   *StorageRouter
	records  repository.DocumentRepository
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
}

// NewAuditService создаёт сервис проверки целостности.
func NewAuditService(
	router *StorageRouter,
	records repository.DocumentRepository,
	interval time.Duration,
	logger *slog.Logger,
) *AuditService {
	return &AuditService{
		router:   router,
		records:  records,
		interval: interval,
		logger:   logger.With(slog.String("component", "audit")),
	}
}

// Start запускает периодическую проверку. При нулевом интервале
// проверка выполняется только по запросу.
func (as *AuditService) Start(ctx context.Context) {
	if as.interval <= 0 {
		as.logger.Info("Периодическая проверка целостности отключена")
		return
	}

	asCtx, cancel := context.WithCancel(ctx)
	as.cancel = cancel

	go as.run(asCtx)

	as.logger.Info("Проверка целостности запущена",
		slog.String("interval", as.interval.String()),
	)
}

// Stop останавливает периодическую проверку.
func (as *AuditService) Stop() {
	if as.cancel != nil {
		as.cancel()
		as.logger.Info("Проверка целостности остановлена")
	}
}

// IsInProgress возвращает true, если проверка выполняется.
func (as *AuditService) IsInProgress() bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.inProcess
}

func (as *AuditService) run(ctx context.Context) {
	ticker := time.NewTicker(as.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			as.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход проверки.
// Если проверка уже выполняется, возвращает nil, true.
func (as *AuditService) RunOnce(ctx context.Context) (*AuditReport, bool) {
	as.mu.Lock()
	if as.inProcess {
		as.mu.Unlock()
		as.logger.Warn("Проверка целостности уже выполняется, пропуск")
		return nil, true
	}
	as.inProcess = true
	as.mu.Unlock()

	defer func() {
		as.mu.Lock()
		as.inProcess = false
		as.mu.Unlock()
	}()

	report := &AuditReport{StartedAt: time.Now().UTC(), Issues: []AuditIssue{}}
	as.logger.Info("Проверка целостности начата")

	for offset := 0; ; offset += auditPageSize {
		page, err := as.records.List(ctx, repository.ListFilter{ActiveOnly: true}, auditPageSize, offset)
		if err != nil {
			as.logger.Error("Ошибка получения списка документов",
				slog.Int("offset", offset),
				slog.String("error", err.Error()),
			)
			break
		}
		for _, rec := range page {
			if ctx.Err() != nil {
				break
			}
			report.DocumentsChecked++
			if issue, ok := as.check(ctx, rec); ok {
				report.Issues = append(report.Issues, issue)
			} else {
				report.Summary.OK++
			}
		}
		if len(page) < auditPageSize || ctx.Err() != nil {
			break
		}
	}

	report.CompletedAt = time.Now().UTC()
	duration := report.CompletedAt.Sub(report.StartedAt)

	for _, issue := range report.Issues {
		switch issue.Type {
		case IssueHashMismatch:
			report.Summary.HashMismatches++
		case IssueSizeMismatch:
			report.Summary.SizeMismatches++
		case IssueBlobMissing:
			report.Summary.BlobsMissing++
		case IssueInvalidEncoding:
			report.Summary.InvalidEncodings++
		case IssueReadError:
			report.Summary.ReadErrors++
		}
		auditIssuesTotal.WithLabelValues(issue.Type).Inc()
	}
	auditRunsTotal.Inc()
	auditDurationSeconds.Observe(duration.Seconds())

	as.logger.Info("Проверка целостности завершена",
		slog.Int("documents_checked", report.DocumentsChecked),
		slog.Int("issues", len(report.Issues)),
		slog.Int("ok", report.Summary.OK),
		slog.Duration("duration", duration),
	)
	return report, false
}

// check проверяет одну запись. Размер проверяется первым: при
// несовпадении размера хеш заведомо не совпадёт.
func (as *AuditService) check(ctx context.Context, rec *model.DocumentRecord) (AuditIssue, bool) {
	issue := AuditIssue{DocumentID: rec.ID, StorageMode: rec.StorageMode}

	res, err := as.router.Inspect(ctx, rec)
	switch {
	case err == nil:
	case errors.Is(err, docerr.ErrBlobNotFound):
		issue.Type = IssueBlobMissing
		issue.Description = "blob " + rec.BlobID() + " отсутствует в хранилище"
	case errors.Is(err, docerr.ErrInvalidEncoding):
		issue.Type = IssueInvalidEncoding
		issue.Description = "inline-содержимое не декодируется"
	default:
		issue.Type = IssueReadError
		issue.Description = err.Error()
	}
	if err != nil {
		as.logger.Warn("Проблема целостности документа",
			slog.String("document_id", rec.ID),
			slog.String("type", issue.Type),
			slog.String("error", err.Error()),
		)
		return issue, true
	}

	if !res.IntegrityWarning {
		return AuditIssue{}, false
	}

	issue.Type = IssueHashMismatch
	issue.Description = "SHA-256 содержимого не совпадает с content_hash"
	for _, a := range res.Anomalies {
		if a == AnomalySizeMismatch {
			issue.Type = IssueSizeMismatch
			issue.Description = "размер содержимого не совпадает с size_bytes"
			break
		}
	}
	as.logger.Warn("Проблема целостности документа",
		slog.String("document_id", rec.ID),
		slog.String("type", issue.Type),
		slog.String("storage_mode", string(rec.StorageMode)),
		slog.String("expected", rec.ContentHash),
		slog.String("actual", res.ActualHash),
	)
	return issue, true
}
