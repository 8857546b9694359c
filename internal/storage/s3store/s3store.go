// Пакет s3store — blob-хранилище в S3-совместимом объектном хранилище
// (AWS S3, MinIO). Метаданные blob хранятся в user metadata объекта.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/storage/blob"
)

// Ключи user metadata объекта.
const (
	metaOriginalName = "original-name"
	metaMimeType     = "mime-type"
	metaSizeBytes    = "size-bytes"
)

// cleanupTimeout — таймаут best-effort удаления недописанного объекта.
const cleanupTimeout = 30 * time.Second

// Options — параметры подключения к S3.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// Prefix — префикс ключей объектов (например, "documents/")
	Prefix    string
	PathStyle bool
}

// Store — blob-хранилище S3.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

var _ blob.Store = (*Store)(nil)

// New создаёт клиент S3. Endpoint задаётся для MinIO и других
// S3-совместимых хранилищ; пустой — стандартный AWS.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации AWS: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return NewWithClient(client, opts.Bucket, opts.Prefix, logger), nil
}

// NewWithClient создаёт Store поверх готового клиента.
func NewWithClient(client *s3.Client, bucket, prefix string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With(slog.String("component", "s3store")),
	}
}

// EnsureBucket создаёт бакет, если он не существует.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("не удалось создать бакет %s: %w", s.bucket, err)
	}
	return nil
}

// CheckReady проверяет доступность бакета через HeadBucket.
// Возвращает статус ("ok", "fail") и сообщение.
func (s *Store) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return "fail", fmt.Sprintf("бакет %s недоступен: %v", s.bucket, err)
	}
	return "ok", "бакет " + s.bucket + " доступен"
}

// Put загружает поток в новый объект. Несикабельный поток сначала
// сбрасывается во временный файл: PutObject требует известную длину.
func (s *Store) Put(ctx context.Context, r io.Reader, env model.BlobEnvelope) (string, error) {
	body, size, release, err := seekable(ctx, r)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("запись blob прервана: %w", ctxErr)
		}
		return "", fmt.Errorf("%w: %v", docerr.ErrStorageFailure, err)
	}
	defer release()

	id := uuid.New().String()
	key := s.key(id)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(env.MimeType),
		Metadata: map[string]string{
			metaOriginalName: url.QueryEscape(env.OriginalName),
			metaMimeType:     url.QueryEscape(env.MimeType),
			metaSizeBytes:    strconv.FormatInt(env.SizeBytes, 10),
		},
	})
	if err != nil {
		// Объект мог частично появиться — удаляем с отдельным контекстом
		s.cleanup(key)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("запись blob прервана: %w", ctxErr)
		}
		return "", fmt.Errorf("%w: PutObject %s: %v", docerr.ErrStorageFailure, key, err)
	}

	return id, nil
}

// Get читает объект целиком.
func (s *Store) Get(ctx context.Context, id string) ([]byte, model.BlobEnvelope, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, model.BlobEnvelope{}, fmt.Errorf("%w: %s", docerr.ErrBlobNotFound, id)
		}
		return nil, model.BlobEnvelope{}, fmt.Errorf("%w: GetObject %s: %v", docerr.ErrStorageFailure, id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, model.BlobEnvelope{}, fmt.Errorf("%w: чтение объекта %s: %v", docerr.ErrStorageFailure, id, err)
	}

	return data, envelopeFrom(out.Metadata, int64(len(data))), nil
}

// Delete удаляет объект. S3 DeleteObject идемпотентен.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: DeleteObject %s: %v", docerr.ErrStorageFailure, id, err)
	}
	return nil
}

// Bucket возвращает имя бакета.
func (s *Store) Bucket() string {
	return s.bucket
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) cleanup(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		s.logger.Warn("Не удалось удалить недописанный объект",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// seekable возвращает тело с известной длиной. bytes.Reader и файлы
// используются как есть, остальное сбрасывается во временный файл.
func seekable(ctx context.Context, r io.Reader) (io.ReadSeeker, int64, func(), error) {
	switch v := r.(type) {
	case *bytes.Reader:
		return v, int64(v.Len()), func() {}, nil
	case *os.File:
		info, err := v.Stat()
		if err == nil && info.Mode().IsRegular() {
			pos, err := v.Seek(0, io.SeekCurrent)
			if err == nil {
				return v, info.Size() - pos, func() {}, nil
			}
		}
	}

	tmp, err := os.CreateTemp("", "docstore-s3-*")
	if err != nil {
		return nil, 0, nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	release := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	size, err := io.Copy(tmp, blob.ContextReader(ctx, r))
	if err != nil {
		release()
		return nil, 0, nil, fmt.Errorf("ошибка буферизации потока: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		release()
		return nil, 0, nil, fmt.Errorf("ошибка позиционирования: %w", err)
	}
	return tmp, size, release, nil
}

func envelopeFrom(meta map[string]string, actual int64) model.BlobEnvelope {
	env := model.BlobEnvelope{SizeBytes: actual}
	if v, err := url.QueryUnescape(meta[metaOriginalName]); err == nil {
		env.OriginalName = v
	}
	if v, err := url.QueryUnescape(meta[metaMimeType]); err == nil {
		env.MimeType = v
	}
	if v, err := strconv.ParseInt(meta[metaSizeBytes], 10, 64); err == nil {
		env.SizeBytes = v
	}
	return env
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
