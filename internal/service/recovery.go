// recovery.go — разбор незавершённых WAL-транзакций при старте.
//
// Транзакция считается применённой, если запись документа уже ссылается
// на новый blob (или на inline-содержимое) с новым хешем. Тогда удаляется
// предыдущий blob и транзакция коммитится. Иначе удаляется новый blob,
// а транзакция откатывается.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/storage/blob"
	"github.com/bigkaa/docstore/internal/storage/wal"
)

// RecoveryReport — итог восстановления.
type RecoveryReport struct {
	RolledForward int
	RolledBack    int
	// Failed — транзакции, оставленные pending до следующего запуска
	Failed int
	// Cleaned — удалённые завершённые WAL-файлы
	Cleaned int
}

// Recover разбирает pending WAL-транзакции.
func Recover(
	ctx context.Context,
	walEngine *wal.WAL,
	records repository.DocumentRepository,
	blobStore blob.Store,
	logger *slog.Logger,
) (RecoveryReport, error) {
	logger = logger.With(slog.String("component", "recovery"))
	var report RecoveryReport

	pending, err := walEngine.RecoverPending()
	if err != nil {
		return report, err
	}

	for _, e := range pending {
		rec, err := records.Load(ctx, e.DocumentID)
		if err != nil && !errors.Is(err, docerr.ErrDocumentNotFound) {
			report.Failed++
			logger.Error("Не удалось загрузить запись для WAL-транзакции",
				slog.String("tx_id", e.TransactionID),
				slog.String("document_id", e.DocumentID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if applied(rec, e) {
			if e.PreviousBlobRef != "" && e.PreviousBlobRef != e.BlobRef {
				if err := blobStore.Delete(ctx, e.PreviousBlobRef); err != nil {
					report.Failed++
					logger.Error("Не удалось удалить предыдущий blob",
						slog.String("tx_id", e.TransactionID),
						slog.String("blob_ref", e.PreviousBlobRef),
						slog.String("error", err.Error()),
					)
					continue
				}
			}
			if err := walEngine.Commit(e.TransactionID); err != nil {
				report.Failed++
				continue
			}
			report.RolledForward++
			logger.Info("WAL-транзакция применена",
				slog.String("tx_id", e.TransactionID),
				slog.String("document_id", e.DocumentID),
			)
			continue
		}

		if e.BlobRef != "" {
			if err := blobStore.Delete(ctx, e.BlobRef); err != nil {
				report.Failed++
				logger.Error("Не удалось удалить blob незавершённой операции",
					slog.String("tx_id", e.TransactionID),
					slog.String("blob_ref", e.BlobRef),
					slog.String("error", err.Error()),
				)
				continue
			}
		}
		if err := walEngine.Rollback(e.TransactionID); err != nil {
			report.Failed++
			continue
		}
		report.RolledBack++
		logger.Warn("WAL-транзакция откачена",
			slog.String("tx_id", e.TransactionID),
			slog.String("document_id", e.DocumentID),
			slog.String("blob_ref", e.BlobRef),
		)
	}

	cleaned, err := walEngine.CleanCommitted()
	if err != nil {
		logger.Warn("Ошибка очистки WAL", slog.String("error", err.Error()))
	}
	report.Cleaned = cleaned

	if len(pending) > 0 {
		logger.Info("Восстановление WAL завершено",
			slog.Int("rolled_forward", report.RolledForward),
			slog.Int("rolled_back", report.RolledBack),
			slog.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// applied проверяет, сохранена ли запись с результатом транзакции.
func applied(rec *model.DocumentRecord, e *wal.Entry) bool {
	if rec == nil || e.ContentHash == "" {
		return false
	}
	return rec.ContentHash == e.ContentHash && rec.BlobID() == e.BlobRef
}
