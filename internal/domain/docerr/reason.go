package docerr

import (
	"context"
	"errors"
)

// reasons — машинные коды ошибок в порядке проверки.
var reasons = []struct {
	err  error
	code string
}{
	{ErrUnknownDocumentType, "unknown_document_type"},
	{ErrDisallowedMimeType, "disallowed_mime_type"},
	{ErrExtensionMismatch, "extension_mismatch"},
	{ErrDangerousExtension, "dangerous_extension"},
	{ErrFileTooLarge, "file_too_large"},
	{ErrInvalidEncoding, "invalid_encoding"},
	{ErrEmptyFile, "empty_file"},
	{ErrSizeDeclarationMismatch, "size_mismatch"},
	{ErrBlobNotFound, "blob_not_found"},
	{ErrDocumentNotFound, "document_not_found"},
	{ErrDocumentDeleted, "document_deleted"},
	{ErrIntegrityMismatch, "integrity_mismatch"},
	{ErrInvalidRecord, "invalid_record"},
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
	{ErrStorageFailure, "storage_failure"},
}

// Reason возвращает машинный код ошибки для метрик и ответов API.
// Неизвестные ошибки — "internal".
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return "internal"
}
