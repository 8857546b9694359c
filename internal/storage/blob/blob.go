// Пакет blob — контракт внешнего хранилища больших payload'ов.
//
// Реализации: filestore (локальный диск), s3store (S3-совместимое
// хранилище), gridfs (MongoDB GridFS). Идентификатор blob непрозрачен
// и зависит от реализации.
package blob

import (
	"context"
	"io"

	"github.com/bigkaa/docstore/internal/domain/model"
)

// Store — хранилище blob.
type Store interface {
	// Put записывает поток целиком и возвращает новый идентификатор.
	// При ошибке или отмене контекста частично записанный blob
	// недоступен по идентификатору.
	Put(ctx context.Context, r io.Reader, env model.BlobEnvelope) (string, error)

	// Get возвращает содержимое и метаданные blob.
	// Неизвестный или удалённый id — docerr.ErrBlobNotFound.
	Get(ctx context.Context, id string) ([]byte, model.BlobEnvelope, error)

	// Delete удаляет blob. Идемпотентна: неизвестный id не ошибка.
	Delete(ctx context.Context, id string) error
}

// ContextReader прерывает чтение, как только контекст отменён или истёк.
// Реализации оборачивают им входной поток, чтобы таймаут Put срабатывал
// и на медленном источнике.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
