// documents.go — DocumentService: операции над документами для внешнего слоя.
//
// Загружает и сохраняет записи через репозиторий, проверяет допустимость
// операции по жизненному циклу и повторяет сбои хранилища с
// экспоненциальной задержкой. Клиентские ошибки и BlobNotFound не повторяются.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/lifecycle"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/repository"
)

// RetryOptions — параметры повторов.
type RetryOptions struct {
	// Attempts — общее число попыток, включая первую
	Attempts int
	// BaseDelay — задержка перед первым повтором, далее удваивается
	BaseDelay time.Duration
}

// DocumentService — фасад хранилища документов.
type DocumentService struct {
	router  *StorageRouter
	records repository.DocumentRepository
	retry   RetryOptions
	logger  *slog.Logger
}

// NewDocumentService создаёт сервис документов.
func NewDocumentService(
	router *StorageRouter,
	records repository.DocumentRepository,
	retryOpts RetryOptions,
	logger *slog.Logger,
) *DocumentService {
	if retryOpts.Attempts < 1 {
		retryOpts.Attempts = 1
	}
	if retryOpts.BaseDelay <= 0 {
		retryOpts.BaseDelay = 100 * time.Millisecond
	}
	return &DocumentService{
		router:  router,
		records: records,
		retry:   retryOpts,
		logger:  logger.With(slog.String("component", "document_service")),
	}
}

// Store сохраняет новый документ.
func (s *DocumentService) Store(ctx context.Context, data []byte, info model.FileInfo) (*model.DocumentRecord, error) {
	var rec *model.DocumentRecord
	err := s.withRetry(ctx, "store", func(ctx context.Context) error {
		var err error
		rec, err = s.router.Store(ctx, data, info)
		return err
	})
	return rec, err
}

// StoreStream сохраняет документ из потока. Повтор возможен только
// для io.Seeker: перед каждой попыткой поток перематывается в начало.
func (s *DocumentService) StoreStream(ctx context.Context, body io.Reader, info model.FileInfo) (*model.DocumentRecord, error) {
	var rec *model.DocumentRecord
	err := s.withStreamRetry(ctx, "store", body, func(ctx context.Context) error {
		var err error
		rec, err = s.router.StoreStream(ctx, body, info)
		return err
	})
	return rec, err
}

// Retrieve возвращает содержимое документа и флаг нарушения целостности.
func (s *DocumentService) Retrieve(ctx context.Context, id string) (*model.DocumentRecord, *Retrieval, error) {
	rec, err := s.load(ctx, id, lifecycle.OpRetrieve)
	if err != nil {
		return nil, nil, err
	}

	var res *Retrieval
	err = s.withRetry(ctx, "retrieve", func(ctx context.Context) error {
		var err error
		res, err = s.router.Retrieve(ctx, rec)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return rec, res, nil
}

// Replace заменяет содержимое документа, id сохраняется.
func (s *DocumentService) Replace(ctx context.Context, id string, data []byte, info model.FileInfo) (*model.DocumentRecord, error) {
	prev, err := s.load(ctx, id, lifecycle.OpReplace)
	if err != nil {
		return nil, err
	}

	var rec *model.DocumentRecord
	err = s.withRetry(ctx, "replace", func(ctx context.Context) error {
		var err error
		rec, err = s.router.Replace(ctx, prev, data, info)
		return err
	})
	return rec, err
}

// ReplaceStream — потоковый вариант Replace.
func (s *DocumentService) ReplaceStream(ctx context.Context, id string, body io.Reader, info model.FileInfo) (*model.DocumentRecord, error) {
	prev, err := s.load(ctx, id, lifecycle.OpReplace)
	if err != nil {
		return nil, err
	}

	var rec *model.DocumentRecord
	err = s.withStreamRetry(ctx, "replace", body, func(ctx context.Context) error {
		var err error
		rec, err = s.router.ReplaceStream(ctx, prev, body, info)
		return err
	})
	return rec, err
}

// Delete выполняет soft delete. Blob не удаляется.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id, lifecycle.OpDelete); err != nil {
		return err
	}
	err := s.withRetry(ctx, "delete", func(ctx context.Context) error {
		return s.records.MarkDeleted(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Документ удалён", slog.String("document_id", id))
	return nil
}

// Get возвращает метаданные активного документа.
func (s *DocumentService) Get(ctx context.Context, id string) (*model.DocumentRecord, error) {
	return s.load(ctx, id, lifecycle.OpGet)
}

// List возвращает страницу активных документов.
func (s *DocumentService) List(ctx context.Context, filter repository.ListFilter, limit, offset int) ([]*model.DocumentRecord, error) {
	filter.ActiveOnly = true

	var recs []*model.DocumentRecord
	err := s.withRetry(ctx, "list", func(ctx context.Context) error {
		var err error
		recs, err = s.records.List(ctx, filter, limit, offset)
		return err
	})
	return recs, err
}

// load загружает запись и проверяет допустимость операции.
func (s *DocumentService) load(ctx context.Context, id string, op lifecycle.Operation) (*model.DocumentRecord, error) {
	var rec *model.DocumentRecord
	err := s.withRetry(ctx, "load", func(ctx context.Context) error {
		var err error
		rec, err = s.records.Load(ctx, id)
		return err
	})
	if err != nil && !errors.Is(err, docerr.ErrDocumentNotFound) {
		return nil, err
	}
	if err := lifecycle.Check(rec, op); err != nil {
		if errors.Is(err, docerr.ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: %s", docerr.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return rec, nil
}

// withRetry выполняет fn с повторами для IsRetryable-ошибок.
func (s *DocumentService) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(s.retry.Attempts-1), retry.NewExponential(s.retry.BaseDelay))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !docerr.IsRetryable(err) {
			return err
		}
		if attempt < s.retry.Attempts {
			s.logger.Warn("Сбой хранилища, повтор",
				slog.String("operation", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return retry.RetryableError(err)
	})
}

// withStreamRetry повторяет fn только если поток можно перемотать.
func (s *DocumentService) withStreamRetry(ctx context.Context, op string, body io.Reader, fn func(ctx context.Context) error) error {
	seeker, ok := body.(io.Seeker)
	if !ok {
		return fn(ctx)
	}

	first := true
	return s.withRetry(ctx, op, func(ctx context.Context) error {
		if !first {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("перемотка потока: %w", err)
			}
		}
		first = false
		return fn(ctx)
	})
}
