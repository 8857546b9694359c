// metrics.go — Prometheus метрики хранилища документов.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// documentsStoredTotal — успешные сохранения по режиму и операции.
	documentsStoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ds_documents_stored_total",
		Help: "Количество сохранённых документов по режиму хранения",
	}, []string{"mode", "operation"})

	// retrievalsTotal — чтения по результату (ok, integrity_warning, error).
	retrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ds_retrievals_total",
		Help: "Количество чтений документов по результату",
	}, []string{"result"})

	// integrityWarningsTotal — аномалии целостности при чтении.
	integrityWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ds_integrity_warnings_total",
		Help: "Количество аномалий целостности при чтении",
	}, []string{"kind"})

	// validationRejectionsTotal — отказы политики загрузки по причине.
	validationRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ds_validation_rejections_total",
		Help: "Количество загрузок, отклонённых политикой",
	}, []string{"reason"})

	// blobCompensationsTotal — компенсирующие удаления blob.
	blobCompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ds_blob_compensations_total",
		Help: "Количество компенсирующих удалений blob",
	}, []string{"result"})

	// downloadCountUpdatesTotal — обновления счётчика скачиваний.
	downloadCountUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ds_download_count_updates_total",
		Help: "Обновления download_count по результату (ok, error, dropped)",
	}, []string{"result"})

	// auditRunsTotal — количество запусков проверки целостности.
	auditRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_audit_runs_total",
		Help: "Количество запусков проверки целостности",
	})

	// auditIssuesTotal — проблемы, найденные проверкой целостности.
	auditIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ds_audit_issues_total",
		Help: "Проблемы, обнаруженные проверкой целостности",
	}, []string{"type"})

	// auditDurationSeconds — длительность проверки целостности.
	auditDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ds_audit_duration_seconds",
		Help:    "Длительность проверки целостности в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	})
)
