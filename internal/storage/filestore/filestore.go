// Пакет filestore — blob-хранилище на локальном диске.
// Каждый blob — файл {id}.blob в dataDir и sidecar {id}.blob.attr.json.
//
// Паттерн записи: temp файл → streaming-запись → fsync → attr.json →
// atomic rename. Видимый файл данных всегда имеет attr.json.
// При ошибке или отмене контекста temp файл удаляется.
package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/storage/attr"
	"github.com/bigkaa/docstore/internal/storage/blob"
)

const dataSuffix = ".blob"

// FileStore — хранилище blob на диске.
type FileStore struct {
	// dataDir — корневая директория хранения (DS_BLOB_DIR)
	dataDir string
}

var _ blob.Store = (*FileStore)(nil)

// New создаёт новый FileStore. Проверяет и создаёт директорию
// если она не существует.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: dataDir}, nil
}

// Put записывает поток на диск и возвращает новый идентификатор (UUID v4).
func (fs *FileStore) Put(ctx context.Context, r io.Reader, env model.BlobEnvelope) (string, error) {
	id := uuid.New().String()
	fullPath := fs.dataPath(id)
	attrPath := attr.AttrFilePath(fullPath)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("%w: ошибка создания временного файла: %v", docerr.ErrStorageFailure, err)
	}

	cleanup := func() {
		f.Close()
		os.Remove(tmpPath)
	}

	if _, err := io.Copy(f, blob.ContextReader(ctx, r)); err != nil {
		cleanup()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("запись blob прервана: %w", ctxErr)
		}
		return "", fmt.Errorf("%w: ошибка записи данных: %v", docerr.ErrStorageFailure, err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("%w: ошибка fsync: %v", docerr.ErrStorageFailure, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: ошибка закрытия файла: %v", docerr.ErrStorageFailure, err)
	}

	if err := attr.Write(attrPath, attr.FromEnvelope(id, env)); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", docerr.ErrStorageFailure, err)
	}

	// Последняя проверка таймаута перед публикацией
	if err := ctx.Err(); err != nil {
		os.Remove(tmpPath)
		attr.Delete(attrPath)
		return "", fmt.Errorf("запись blob прервана: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		attr.Delete(attrPath)
		return "", fmt.Errorf("%w: ошибка атомарного переименования: %v", docerr.ErrStorageFailure, err)
	}

	return id, nil
}

// Get читает blob целиком вместе с метаданными.
func (fs *FileStore) Get(_ context.Context, id string) ([]byte, model.BlobEnvelope, error) {
	if !validID(id) {
		return nil, model.BlobEnvelope{}, fmt.Errorf("%w: %q", docerr.ErrBlobNotFound, id)
	}
	fullPath := fs.dataPath(id)

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.BlobEnvelope{}, fmt.Errorf("%w: %s", docerr.ErrBlobNotFound, id)
		}
		return nil, model.BlobEnvelope{}, fmt.Errorf("%w: ошибка чтения blob %s: %v", docerr.ErrStorageFailure, id, err)
	}

	a, err := attr.Read(attr.AttrFilePath(fullPath))
	if err != nil {
		return nil, model.BlobEnvelope{}, fmt.Errorf("%w: метаданные blob %s: %v", docerr.ErrStorageFailure, id, err)
	}

	return data, a.Envelope(), nil
}

// Delete удаляет файл данных и attr.json.
// Возвращает nil если blob уже не существует.
func (fs *FileStore) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	fullPath := fs.dataPath(id)

	// Сначала данные: blob без attr.json не бывает видимым
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: ошибка удаления blob %s: %v", docerr.ErrStorageFailure, id, err)
	}
	if err := attr.Delete(attr.AttrFilePath(fullPath)); err != nil {
		return fmt.Errorf("%w: %v", docerr.ErrStorageFailure, err)
	}
	return nil
}

// Exists проверяет существование blob на диске.
func (fs *FileStore) Exists(id string) bool {
	if !validID(id) {
		return false
	}
	_, err := os.Stat(fs.dataPath(id))
	return err == nil
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

func (fs *FileStore) dataPath(id string) string {
	return filepath.Join(fs.dataDir, id+dataSuffix)
}

// validID отсекает всё, кроме UUID: id попадает в путь файла.
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
