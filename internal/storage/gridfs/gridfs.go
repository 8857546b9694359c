// Пакет gridfs — blob-хранилище в MongoDB GridFS.
// Идентификатор blob — hex ObjectID файла GridFS, содержимое
// хранится чанками в коллекции {bucket}.chunks.
package gridfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/storage/blob"
)

// chunkSize — размер чанка GridFS (1 МБ).
const chunkSize = 1 << 20

// fileMetadata — поле metadata документа {bucket}.files.
type fileMetadata struct {
	OriginalName string `bson:"original_name"`
	MimeType     string `bson:"mime_type"`
	SizeBytes    int64  `bson:"size_bytes"`
}

// Store — blob-хранилище GridFS.
type Store struct {
	bucket *gridfs.Bucket
	logger *slog.Logger
}

var _ blob.Store = (*Store)(nil)

// Connect подключается к MongoDB и проверяет соединение.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB недоступна: %w", err)
	}
	return client, nil
}

// ReadinessChecker — проверка готовности MongoDB для health endpoint.
type ReadinessChecker struct {
	client *mongo.Client
}

// NewReadinessChecker создаёт проверку готовности MongoDB.
func NewReadinessChecker(client *mongo.Client) *ReadinessChecker {
	return &ReadinessChecker{client: client}
}

// CheckReady проверяет подключение к MongoDB через ping.
// Возвращает статус ("ok", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return "fail", fmt.Sprintf("MongoDB недоступна: %v", err)
	}
	return "ok", "подключение активно"
}

// New создаёт Store для бакета bucketName в базе db.
func New(db *mongo.Database, bucketName string, logger *slog.Logger) (*Store, error) {
	opts := options.GridFSBucket().
		SetName(bucketName).
		SetChunkSizeBytes(chunkSize)

	bucket, err := gridfs.NewBucket(db, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GridFS бакета %s: %w", bucketName, err)
	}

	return &Store{
		bucket: bucket,
		logger: logger.With(slog.String("component", "gridfs")),
	}, nil
}

// Put записывает поток в новый файл GridFS. При ошибке загрузка
// прерывается через Abort, который удаляет уже записанные чанки.
func (s *Store) Put(ctx context.Context, r io.Reader, env model.BlobEnvelope) (string, error) {
	oid := primitive.NewObjectID()
	uploadOpts := options.GridFSUpload().SetMetadata(fileMetadata{
		OriginalName: env.OriginalName,
		MimeType:     env.MimeType,
		SizeBytes:    env.SizeBytes,
	})

	stream, err := s.bucket.OpenUploadStreamWithID(oid, env.OriginalName, uploadOpts)
	if err != nil {
		return "", fmt.Errorf("%w: ошибка открытия upload stream: %v", docerr.ErrStorageFailure, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetWriteDeadline(deadline)
	}

	if _, err := io.Copy(stream, blob.ContextReader(ctx, r)); err != nil {
		s.abort(stream, oid)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("запись blob прервана: %w", ctxErr)
		}
		return "", fmt.Errorf("%w: ошибка записи в GridFS: %v", docerr.ErrStorageFailure, err)
	}

	// Close дописывает последний чанк и документ files
	if err := stream.Close(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.deleteQuietly(oid)
			return "", fmt.Errorf("запись blob прервана: %w", ctxErr)
		}
		s.deleteQuietly(oid)
		return "", fmt.Errorf("%w: ошибка завершения записи в GridFS: %v", docerr.ErrStorageFailure, err)
	}

	return oid.Hex(), nil
}

// Get читает файл GridFS целиком.
func (s *Store) Get(ctx context.Context, id string) ([]byte, model.BlobEnvelope, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, model.BlobEnvelope{}, fmt.Errorf("%w: %q", docerr.ErrBlobNotFound, id)
	}

	stream, err := s.bucket.OpenDownloadStream(oid)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, model.BlobEnvelope{}, fmt.Errorf("%w: %s", docerr.ErrBlobNotFound, id)
		}
		return nil, model.BlobEnvelope{}, fmt.Errorf("%w: ошибка открытия download stream %s: %v", docerr.ErrStorageFailure, id, err)
	}
	defer stream.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetReadDeadline(deadline)
	}

	var buf bytes.Buffer
	if file := stream.GetFile(); file != nil && file.Length > 0 {
		buf.Grow(int(file.Length))
	}
	if _, err := io.Copy(&buf, stream); err != nil {
		return nil, model.BlobEnvelope{}, fmt.Errorf("%w: ошибка чтения из GridFS %s: %v", docerr.ErrStorageFailure, id, err)
	}

	env := model.BlobEnvelope{SizeBytes: int64(buf.Len())}
	if file := stream.GetFile(); file != nil {
		env.OriginalName = file.Name
		var meta fileMetadata
		if len(file.Metadata) > 0 && bson.Unmarshal(file.Metadata, &meta) == nil {
			env = model.BlobEnvelope{OriginalName: meta.OriginalName, MimeType: meta.MimeType, SizeBytes: meta.SizeBytes}
		}
	}

	return buf.Bytes(), env, nil
}

// Delete удаляет файл и его чанки. Отсутствующий файл не ошибка.
func (s *Store) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	if err := s.bucket.DeleteContext(ctx, oid); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		return fmt.Errorf("%w: ошибка удаления из GridFS %s: %v", docerr.ErrStorageFailure, id, err)
	}
	return nil
}

func (s *Store) abort(stream *gridfs.UploadStream, oid primitive.ObjectID) {
	if err := stream.Abort(); err != nil && !errors.Is(err, gridfs.ErrStreamClosed) {
		s.logger.Warn("Не удалось прервать загрузку в GridFS",
			slog.String("blob_id", oid.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// deleteQuietly удаляет возможно записанный файл после неудачного Close.
func (s *Store) deleteQuietly(oid primitive.ObjectID) {
	if err := s.bucket.Delete(oid); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		s.logger.Warn("Не удалось удалить недописанный файл GridFS",
			slog.String("blob_id", oid.Hex()),
			slog.String("error", err.Error()),
		)
	}
}
