// Пакет attr — чтение и запись sidecar-файлов метаданных blob (*.attr.json).
// Каждый blob файлового хранилища имеет сопутствующий attr.json с
// метаданными (имя, MIME-тип, размер). Запись атомарна: temp → fsync → rename.
package attr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bigkaa/docstore/internal/domain/model"
)

// AttrSuffix — суффикс файла метаданных.
const AttrSuffix = ".attr.json"

// maxAttrFileSize — максимальный допустимый размер attr.json (4 КБ).
// Ограничение гарантирует атомарность записи.
const maxAttrFileSize = 4096

// Attributes — содержимое attr.json.
type Attributes struct {
	BlobID       string    `json:"blob_id"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	StoredAt     time.Time `json:"stored_at"`
}

// Envelope возвращает метаданные в виде model.BlobEnvelope.
func (a *Attributes) Envelope() model.BlobEnvelope {
	return model.BlobEnvelope{
		OriginalName: a.OriginalName,
		MimeType:     a.MimeType,
		SizeBytes:    a.SizeBytes,
	}
}

// FromEnvelope собирает Attributes для blob id.
func FromEnvelope(id string, env model.BlobEnvelope) *Attributes {
	return &Attributes{
		BlobID:       id,
		OriginalName: env.OriginalName,
		MimeType:     env.MimeType,
		SizeBytes:    env.SizeBytes,
		StoredAt:     time.Now().UTC(),
	}
}

// AttrFilePath возвращает путь к attr.json для данного файла данных.
// Пример: "/data/ab12.blob" → "/data/ab12.blob.attr.json"
func AttrFilePath(dataFilePath string) string {
	return dataFilePath + AttrSuffix
}

// IsAttrFile проверяет, является ли путь файлом метаданных.
func IsAttrFile(path string) bool {
	return strings.HasSuffix(path, AttrSuffix)
}

// Write атомарно записывает метаданные в attr.json файл.
// Возвращает ошибку, если сериализованные данные превышают 4 КБ.
func Write(path string, a *Attributes) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	if len(data) > maxAttrFileSize {
		return fmt.Errorf("размер attr.json (%d байт) превышает максимум (%d байт)", len(data), maxAttrFileSize)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// Read читает и десериализует attr.json.
// Отсутствие файла можно проверить через errors.Is(err, fs.ErrNotExist).
func Read(path string) (*Attributes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения attr.json %s: %w", path, err)
	}

	var a Attributes
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("ошибка десериализации attr.json %s: %w", path, err)
	}

	return &a, nil
}

// Delete удаляет attr.json файл.
// Возвращает nil если файл уже не существует.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления attr.json %s: %w", path, err)
	}
	return nil
}
