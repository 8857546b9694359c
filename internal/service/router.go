// Пакет service — бизнес-логика хранилища документов.
// router.go — StorageRouter: проверка политики, хеширование, выбор режима
// хранения (inline или blob) по порогу размера, сохранение записи и
// обратный путь чтения с проверкой целостности.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/domain/policy"
	"github.com/bigkaa/docstore/internal/integrity"
	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/storage/blob"
	"github.com/bigkaa/docstore/internal/storage/wal"
)

// DefaultInlineThreshold — порог inline-хранения по умолчанию (10 MiB).
const DefaultInlineThreshold int64 = 10 << 20

// cleanupTimeout — лимит компенсирующих операций после сбоя.
const cleanupTimeout = 30 * time.Second

// Виды аномалий целостности.
const (
	AnomalySizeMismatch = "size_mismatch"
	AnomalyHashMismatch = "hash_mismatch"
)

// DownloadRecorder принимает уведомление об успешном чтении документа.
// Вызов не должен блокироваться.
type DownloadRecorder interface {
	Record(documentID string)
}

// RouterOptions — параметры StorageRouter.
type RouterOptions struct {
	// Threshold — размер <= порога хранится inline, больше — в blob
	Threshold int64
	// PutTimeout — ограничение длительности записи blob (0 — без ограничения)
	PutTimeout time.Duration
	// StrictIntegrity — аномалии целостности при чтении возвращаются как ошибка
	StrictIntegrity bool
}

// Retrieval — результат чтения документа.
type Retrieval struct {
	Data []byte
	// IntegrityWarning — содержимое не прошло проверку размера или хеша
	IntegrityWarning bool
	// Anomalies — обнаруженные виды аномалий
	Anomalies []string
	// ActualHash — SHA-256 фактически прочитанных байт
	ActualHash string
}

// StorageRouter — единственный компонент с политикой размещения.
// Блокировок по id не держит: операции над одной записью упорядочивает
// вызывающий, конкурентные replace разрешаются по принципу «последний победил».
type StorageRouter struct {
	registry  *policy.Registry
	records   repository.DocumentRepository
	inline    Strategy
	blob      Strategy
	walEngine *wal.WAL
	downloads DownloadRecorder
	opts      RouterOptions
	logger    *slog.Logger
	now       func() time.Time
}

// NewStorageRouter создаёт маршрутизатор хранения.
// walEngine и downloads могут быть nil.
func NewStorageRouter(
	registry *policy.Registry,
	records repository.DocumentRepository,
	blobStore blob.Store,
	walEngine *wal.WAL,
	downloads DownloadRecorder,
	opts RouterOptions,
	logger *slog.Logger,
) *StorageRouter {
	if opts.Threshold < 0 {
		opts.Threshold = DefaultInlineThreshold
	}
	return &StorageRouter{
		registry:  registry,
		records:   records,
		inline:    inlineStrategy{},
		blob:      blobStrategy{store: blobStore, putTimeout: opts.PutTimeout},
		walEngine: walEngine,
		downloads: downloads,
		opts:      opts,
		logger:    logger.With(slog.String("component", "storage_router")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Threshold возвращает порог inline-хранения.
func (r *StorageRouter) Threshold() int64 {
	return r.opts.Threshold
}

// Store проверяет, хеширует и сохраняет новый документ.
// При любой ошибке не остаётся ни записи, ни blob.
func (r *StorageRouter) Store(ctx context.Context, data []byte, info model.FileInfo) (*model.DocumentRecord, error) {
	return r.storeBytes(ctx, nil, data, info)
}

// Replace заменяет содержимое существующей записи (тот же id).
// Старый blob удаляется только после сохранения новой записи;
// при ошибке предыдущая запись остаётся нетронутой.
func (r *StorageRouter) Replace(ctx context.Context, prev *model.DocumentRecord, data []byte, info model.FileInfo) (*model.DocumentRecord, error) {
	if prev == nil {
		return nil, fmt.Errorf("%w: нет записи для замены", docerr.ErrDocumentNotFound)
	}
	return r.storeBytes(ctx, prev, data, info)
}

// StoreStream сохраняет документ из потока. info.SizeBytes обязателен:
// по нему выполняется проверка политики и выбор режима. Крупное содержимое
// пишется в blob без полной буферизации, хеш считается на лету.
func (r *StorageRouter) StoreStream(ctx context.Context, body io.Reader, info model.FileInfo) (*model.DocumentRecord, error) {
	return r.storeStream(ctx, nil, body, info)
}

// ReplaceStream — потоковый вариант Replace.
func (r *StorageRouter) ReplaceStream(ctx context.Context, prev *model.DocumentRecord, body io.Reader, info model.FileInfo) (*model.DocumentRecord, error) {
	if prev == nil {
		return nil, fmt.Errorf("%w: нет записи для замены", docerr.ErrDocumentNotFound)
	}
	return r.storeStream(ctx, prev, body, info)
}

func (r *StorageRouter) storeBytes(ctx context.Context, prev *model.DocumentRecord, data []byte, info model.FileInfo) (*model.DocumentRecord, error) {
	size := int64(len(data))
	if size == 0 {
		return nil, r.reject(fmt.Errorf("%w: %q", docerr.ErrEmptyFile, info.OriginalName))
	}
	if info.SizeBytes != 0 && info.SizeBytes != size {
		return nil, r.reject(fmt.Errorf("%w: заявлено %d, получено %d",
			docerr.ErrSizeDeclarationMismatch, info.SizeBytes, size))
	}

	decision, err := r.registry.Validate(info, size)
	if err != nil {
		return nil, r.reject(err)
	}

	rec := r.newRecord(prev, info, decision, size)
	rec.ContentHash = integrity.Digest(data)

	if err := r.persist(ctx, rec, r.strategyFor(size), bytes.NewReader(data), prev, nil); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *StorageRouter) storeStream(ctx context.Context, prev *model.DocumentRecord, body io.Reader, info model.FileInfo) (*model.DocumentRecord, error) {
	switch {
	case info.SizeBytes == 0:
		return nil, r.reject(fmt.Errorf("%w: %q", docerr.ErrEmptyFile, info.OriginalName))
	case info.SizeBytes < 0:
		return nil, r.reject(fmt.Errorf("%w: размер не заявлен", docerr.ErrSizeDeclarationMismatch))
	}

	decision, err := r.registry.Validate(info, info.SizeBytes)
	if err != nil {
		return nil, r.reject(err)
	}

	// Небольшое содержимое читается целиком и идёт обычным путём
	if info.SizeBytes <= r.opts.Threshold {
		data, err := io.ReadAll(io.LimitReader(body, r.opts.Threshold+1))
		if err != nil {
			return nil, fmt.Errorf("%w: чтение содержимого: %w", docerr.ErrStorageFailure, err)
		}
		if int64(len(data)) != info.SizeBytes {
			return nil, r.reject(fmt.Errorf("%w: заявлено %d, получено не менее %d",
				docerr.ErrSizeDeclarationMismatch, info.SizeBytes, len(data)))
		}
		return r.storeBytes(ctx, prev, data, info)
	}

	rec := r.newRecord(prev, info, decision, info.SizeBytes)
	hr := integrity.NewReader(io.LimitReader(body, info.SizeBytes+1))

	check := func() error {
		if hr.N() != info.SizeBytes {
			return r.reject(fmt.Errorf("%w: заявлено %d, получено %d",
				docerr.ErrSizeDeclarationMismatch, info.SizeBytes, hr.N()))
		}
		rec.ContentHash = hr.Sum()
		return nil
	}

	if err := r.persist(ctx, rec, r.blob, hr, prev, check); err != nil {
		return nil, err
	}
	return rec, nil
}

// strategyFor выбирает режим: размер, равный порогу, ещё inline.
func (r *StorageRouter) strategyFor(size int64) Strategy {
	if size > r.opts.Threshold {
		return r.blob
	}
	return r.inline
}

// newRecord формирует запись для новых данных. При замене сохраняются
// id и created_at, download_count сбрасывается.
func (r *StorageRouter) newRecord(prev *model.DocumentRecord, info model.FileInfo, d policy.Decision, size int64) *model.DocumentRecord {
	now := r.now()
	rec := &model.DocumentRecord{
		ID:            uuid.New().String(),
		OriginalName:  info.OriginalName,
		MimeType:      info.MimeType,
		FileExtension: d.Extension,
		SizeBytes:     size,
		DocumentType:  info.DocumentType,
		CreatedAt:     now,
		UpdatedAt:     now,
		IsActive:      true,
	}
	if prev != nil {
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
	}
	return rec
}

// persist размещает содержимое, сохраняет запись и освобождает старый blob.
//
// Поток:
//  1. WAL StartTransaction (если участвует blob)
//  2. Strategy.Put
//  3. check (потоковая проверка размера и хеша)
//  4. WAL Attach
//  5. records.Save
//  6. удаление предыдущего blob, WAL Commit
//
// Ошибка на шагах 3-5 — компенсирующее удаление нового blob и WAL Rollback.
func (r *StorageRouter) persist(
	ctx context.Context,
	rec *model.DocumentRecord,
	st Strategy,
	body io.Reader,
	prev *model.DocumentRecord,
	check func() error,
) error {
	op := wal.OpDocumentStore
	if prev != nil {
		op = wal.OpDocumentReplace
	}

	prevBlob := ""
	if prev != nil && prev.StorageMode == model.StorageBlob {
		prevBlob = prev.BlobID()
	}

	var tx *wal.Entry
	if r.walEngine != nil && (st.Mode() == model.StorageBlob || prevBlob != "") {
		var err error
		tx, err = r.walEngine.StartTransaction(op, rec.ID, prevBlob)
		if err != nil {
			return fmt.Errorf("%w: WAL: %v", docerr.ErrStorageFailure, err)
		}
	}

	if err := st.Put(ctx, body, rec); err != nil {
		r.rollbackTx(tx)
		r.logger.Error("Ошибка размещения содержимого",
			slog.String("document_id", rec.ID),
			slog.String("storage_mode", string(st.Mode())),
			slog.String("error", err.Error()),
		)
		return err
	}

	fail := func(cause error) error {
		r.compensate(st, rec)
		r.rollbackTx(tx)
		return cause
	}

	if check != nil {
		if err := check(); err != nil {
			return fail(err)
		}
	}

	if tx != nil {
		if err := r.walEngine.Attach(tx.TransactionID, rec.BlobID(), rec.ContentHash); err != nil {
			return fail(fmt.Errorf("%w: WAL: %v", docerr.ErrStorageFailure, err))
		}
	}

	if err := r.records.Save(ctx, rec); err != nil {
		r.logger.Error("Ошибка сохранения записи документа",
			slog.String("document_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return fail(err)
	}

	documentsStoredTotal.WithLabelValues(string(rec.StorageMode), string(op)).Inc()

	if prevBlob != "" && prevBlob != rec.BlobID() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if err := r.blob.Release(cleanupCtx, prev); err != nil {
			// WAL остаётся pending: удаление повторит Recover
			r.logger.Warn("Не удалось удалить предыдущий blob",
				slog.String("document_id", rec.ID),
				slog.String("blob_ref", prevBlob),
				slog.String("error", err.Error()),
			)
			return nil
		}
	}

	if tx != nil {
		if err := r.walEngine.Commit(tx.TransactionID); err != nil {
			r.logger.Warn("Ошибка коммита WAL",
				slog.String("tx_id", tx.TransactionID),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.Info("Документ сохранён",
		slog.String("document_id", rec.ID),
		slog.String("operation", string(op)),
		slog.String("storage_mode", string(rec.StorageMode)),
		slog.Int64("size_bytes", rec.SizeBytes),
	)
	return nil
}

// compensate удаляет только что размещённое содержимое.
// Контекст запроса может быть уже отменён, поэтому используется отдельный.
func (r *StorageRouter) compensate(st Strategy, rec *model.DocumentRecord) {
	if st.Mode() != model.StorageBlob {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := st.Release(ctx, rec); err != nil {
		blobCompensationsTotal.WithLabelValues("error").Inc()
		r.logger.Error("Компенсирующее удаление blob не удалось",
			slog.String("document_id", rec.ID),
			slog.String("blob_ref", rec.BlobID()),
			slog.String("error", err.Error()),
		)
		return
	}
	blobCompensationsTotal.WithLabelValues("ok").Inc()
	r.logger.Warn("Blob удалён компенсирующим действием",
		slog.String("document_id", rec.ID),
		slog.String("blob_ref", rec.BlobID()),
	)
}

func (r *StorageRouter) rollbackTx(tx *wal.Entry) {
	if tx == nil {
		return
	}
	if err := r.walEngine.Rollback(tx.TransactionID); err != nil {
		r.logger.Error("Ошибка отката WAL",
			slog.String("tx_id", tx.TransactionID),
			slog.String("error", err.Error()),
		)
	}
}

// reject учитывает отказ политики в метриках.
func (r *StorageRouter) reject(err error) error {
	validationRejectionsTotal.WithLabelValues(docerr.Reason(err)).Inc()
	r.logger.Debug("Загрузка отклонена", slog.String("error", err.Error()))
	return err
}

// Retrieve читает содержимое записи и проверяет размер и хеш.
// Аномалии целостности не прерывают чтение (кроме strict-режима):
// возвращаются фактически сохранённые байты с IntegrityWarning.
// Успешное чтение передаётся в DownloadRecorder без ожидания.
func (r *StorageRouter) Retrieve(ctx context.Context, rec *model.DocumentRecord) (*Retrieval, error) {
	res, err := r.Inspect(ctx, rec)
	if err != nil {
		retrievalsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, docerr.ErrInvalidEncoding) {
			r.logger.Warn("Inline-содержимое не декодируется",
				slog.String("document_id", rec.ID),
				slog.String("storage_mode", string(rec.StorageMode)),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	for _, kind := range res.Anomalies {
		integrityWarningsTotal.WithLabelValues(kind).Inc()
	}

	if res.IntegrityWarning {
		r.logger.Warn("Нарушение целостности при чтении",
			slog.String("document_id", rec.ID),
			slog.String("storage_mode", string(rec.StorageMode)),
			slog.Any("anomalies", res.Anomalies),
			slog.String("expected", rec.ContentHash),
			slog.String("actual", res.ActualHash),
			slog.Int64("expected_size", rec.SizeBytes),
			slog.Int("actual_size", len(res.Data)),
		)
		if r.opts.StrictIntegrity {
			retrievalsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %s: %v", docerr.ErrIntegrityMismatch, rec.ID, res.Anomalies)
		}
		retrievalsTotal.WithLabelValues("integrity_warning").Inc()
	} else {
		retrievalsTotal.WithLabelValues("ok").Inc()
	}

	if r.downloads != nil {
		r.downloads.Record(rec.ID)
	}
	return res, nil
}

// Inspect читает содержимое и проверяет целостность без побочных эффектов:
// не пишет метрики чтения, не логирует аномалии, не трогает download_count.
func (r *StorageRouter) Inspect(ctx context.Context, rec *model.DocumentRecord) (*Retrieval, error) {
	var st Strategy
	switch rec.StorageMode {
	case model.StorageInline:
		st = r.inline
	case model.StorageBlob:
		st = r.blob
	default:
		return nil, fmt.Errorf("%w: %s: неизвестный режим %q", docerr.ErrInvalidRecord, rec.ID, rec.StorageMode)
	}

	data, err := st.Get(ctx, rec)
	if err != nil {
		return nil, err
	}

	res := &Retrieval{Data: data, ActualHash: integrity.Digest(data)}
	if int64(len(data)) != rec.SizeBytes {
		res.Anomalies = append(res.Anomalies, AnomalySizeMismatch)
	}
	if !integrity.Equal(res.ActualHash, rec.ContentHash) {
		res.Anomalies = append(res.Anomalies, AnomalyHashMismatch)
	}
	res.IntegrityWarning = len(res.Anomalies) > 0
	return res, nil
}
