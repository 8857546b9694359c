// Пакет model — доменные модели хранилища документов.
// DocumentRecord — персистентная запись документа: метаданные плюс
// либо inline-содержимое, либо ссылка на blob (ровно одно из двух).
package model

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bigkaa/docstore/internal/domain/docerr"
)

// StorageMode — способ хранения содержимого документа.
type StorageMode string

const (
	// StorageInline — содержимое закодировано и хранится в самой записи
	StorageInline StorageMode = "inline"
	// StorageBlob — содержимое хранится во внешнем BlobStore
	StorageBlob StorageMode = "blob"
)

// FileInfo — описание загружаемого файла, передаётся вызывающим.
type FileInfo struct {
	// OriginalName — оригинальное имя файла
	OriginalName string
	// MimeType — заявленный MIME-тип
	MimeType string
	// DocumentType — ключ категории документа (например, proposal_capstone1).
	// Пустая строка — без явного правила, проверка по общей категории.
	DocumentType string
	// SizeBytes — размер содержимого, должен совпадать с фактическим
	SizeBytes int64
}

// Extension возвращает расширение имени файла в нижнем регистре, включая точку.
func (fi FileInfo) Extension() string {
	return ExtensionOf(fi.OriginalName)
}

// ExtensionOf возвращает расширение имени в нижнем регистре, включая точку.
func ExtensionOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// DocumentRecord — запись документа.
type DocumentRecord struct {
	ID            string      `json:"id"`
	OriginalName  string      `json:"original_name"`
	MimeType      string      `json:"mime_type"`
	FileExtension string      `json:"file_extension"`
	SizeBytes     int64       `json:"size_bytes"`
	DocumentType  string      `json:"document_type"`
	ContentHash   string      `json:"content_hash"`
	StorageMode   StorageMode `json:"storage_mode"`

	// InlinePayload — закодированное содержимое, задано только для inline
	InlinePayload *string `json:"-"`
	// BlobRef — идентификатор blob, задан только для blob
	BlobRef *string `json:"blob_ref,omitempty"`

	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	DownloadCount int64     `json:"download_count"`
	IsActive      bool      `json:"is_active"`
}

// Validate проверяет инвариант взаимоисключения inline/blob.
func (r *DocumentRecord) Validate() error {
	hasInline := r.InlinePayload != nil
	hasBlob := r.BlobRef != nil && *r.BlobRef != ""

	switch r.StorageMode {
	case StorageInline:
		if !hasInline || hasBlob {
			return fmt.Errorf("%w: %s: inline-запись должна содержать только payload", docerr.ErrInvalidRecord, r.ID)
		}
	case StorageBlob:
		if !hasBlob || hasInline {
			return fmt.Errorf("%w: %s: blob-запись должна содержать только blob_ref", docerr.ErrInvalidRecord, r.ID)
		}
	default:
		return fmt.Errorf("%w: %s: неизвестный режим хранения %q", docerr.ErrInvalidRecord, r.ID, r.StorageMode)
	}
	if r.DownloadCount < 0 {
		return fmt.Errorf("%w: %s: отрицательный download_count", docerr.ErrInvalidRecord, r.ID)
	}
	return nil
}

// Clone возвращает глубокую копию записи.
func (r *DocumentRecord) Clone() *DocumentRecord {
	c := *r
	if r.InlinePayload != nil {
		p := *r.InlinePayload
		c.InlinePayload = &p
	}
	if r.BlobRef != nil {
		b := *r.BlobRef
		c.BlobRef = &b
	}
	return &c
}

// BlobID возвращает ссылку на blob или пустую строку.
func (r *DocumentRecord) BlobID() string {
	if r.BlobRef == nil {
		return ""
	}
	return *r.BlobRef
}

// BlobEnvelope — метаданные, сопровождающие blob в BlobStore.
type BlobEnvelope struct {
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
}
