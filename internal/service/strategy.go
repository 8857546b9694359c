// strategy.go — стратегии размещения содержимого: inline и blob.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bigkaa/docstore/internal/codec"
	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/storage/blob"
)

// Strategy — способ размещения содержимого документа.
type Strategy interface {
	// Mode возвращает режим хранения, который реализует стратегия.
	Mode() model.StorageMode
	// Put сохраняет содержимое и заполняет поля записи своего режима,
	// очищая поля другого.
	Put(ctx context.Context, body io.Reader, rec *model.DocumentRecord) error
	// Get возвращает сохранённые байты.
	Get(ctx context.Context, rec *model.DocumentRecord) ([]byte, error)
	// Release освобождает содержимое записи. Идемпотентен.
	Release(ctx context.Context, rec *model.DocumentRecord) error
}

// inlineStrategy — base64 в самой записи.
type inlineStrategy struct{}

func (inlineStrategy) Mode() model.StorageMode { return model.StorageInline }

func (inlineStrategy) Put(_ context.Context, body io.Reader, rec *model.DocumentRecord) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: чтение содержимого: %v", docerr.ErrStorageFailure, err)
	}
	payload := codec.Encode(data)
	rec.StorageMode = model.StorageInline
	rec.InlinePayload = &payload
	rec.BlobRef = nil
	return nil
}

func (inlineStrategy) Get(_ context.Context, rec *model.DocumentRecord) ([]byte, error) {
	if rec.InlinePayload == nil {
		return nil, fmt.Errorf("%w: %s: нет inline-содержимого", docerr.ErrInvalidRecord, rec.ID)
	}
	return codec.Decode(*rec.InlinePayload)
}

func (inlineStrategy) Release(context.Context, *model.DocumentRecord) error { return nil }

// blobStrategy — внешний BlobStore с ограничением длительности записи.
type blobStrategy struct {
	store      blob.Store
	putTimeout time.Duration
}

func (blobStrategy) Mode() model.StorageMode { return model.StorageBlob }

func (b blobStrategy) Put(ctx context.Context, body io.Reader, rec *model.DocumentRecord) error {
	if b.putTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.putTimeout)
		defer cancel()
	}

	id, err := b.store.Put(ctx, body, model.BlobEnvelope{
		OriginalName: rec.OriginalName,
		MimeType:     rec.MimeType,
		SizeBytes:    rec.SizeBytes,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, docerr.ErrStorageFailure) {
			return fmt.Errorf("%w: запись blob превысила %s: %w", docerr.ErrStorageFailure, b.putTimeout, err)
		}
		return err
	}
	rec.StorageMode = model.StorageBlob
	rec.BlobRef = &id
	rec.InlinePayload = nil
	return nil
}

func (b blobStrategy) Get(ctx context.Context, rec *model.DocumentRecord) ([]byte, error) {
	id := rec.BlobID()
	if id == "" {
		return nil, fmt.Errorf("%w: %s: нет ссылки на blob", docerr.ErrInvalidRecord, rec.ID)
	}
	data, _, err := b.store.Get(ctx, id)
	return data, err
}

func (b blobStrategy) Release(ctx context.Context, rec *model.DocumentRecord) error {
	id := rec.BlobID()
	if id == "" {
		return nil
	}
	return b.store.Delete(ctx, id)
}
