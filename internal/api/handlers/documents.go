// documents.go — HTTP handlers операций с документами.
// Upload, Replace, Download, List, Get metadata, Delete.
package handlers

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/api/generated"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/service"
)

// multipartMemory — часть multipart-формы, которая держится в памяти;
// остальное уходит во временные файлы.
const multipartMemory = 32 << 20

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// DocumentsHandler — обработчик endpoints документов.
type DocumentsHandler struct {
	svc           *service.DocumentService
	maxUploadSize int64
}

// NewDocumentsHandler создаёт обработчик endpoints документов.
// maxUploadSize — лимит тела запроса (0 — без лимита).
func NewDocumentsHandler(svc *service.DocumentService, maxUploadSize int64) *DocumentsHandler {
	return &DocumentsHandler{svc: svc, maxUploadSize: maxUploadSize}
}

// upload — разобранная multipart-форма загрузки.
type upload struct {
	file multipart.File
	info model.FileInfo
}

// UploadDocument обрабатывает POST /api/v1/documents.
// Multipart form: file (обязательно), document_type (опционально).
func (h *DocumentsHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	up, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	defer up.file.Close()

	// multipart.File перематывается: сервис сможет повторить запись
	rec, err := h.svc.StoreStream(r.Context(), up.file, up.info)
	if err != nil {
		errors.DomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAPIMetadata(rec))
}

// ReplaceDocument обрабатывает PUT /api/v1/documents/{id}/content.
// Формат тела тот же, что у загрузки; id документа сохраняется.
func (h *DocumentsHandler) ReplaceDocument(w http.ResponseWriter, r *http.Request, id generated.DocumentId) {
	up, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	defer up.file.Close()

	rec, err := h.svc.ReplaceStream(r.Context(), id.String(), up.file, up.info)
	if err != nil {
		errors.DomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAPIMetadata(rec))
}

// parseUpload разбирает multipart-форму. При ошибке ответ уже записан.
func (h *DocumentsHandler) parseUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			errors.FileTooLarge(w, fmt.Sprintf("Тело запроса превышает %d байт", tooLarge.Limit))
			return nil, false
		}
		errors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.ValidationError(w, "Поле 'file' обязательно")
		return nil, false
	}

	// Content-Type части формы — заявленный MIME-тип файла
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &upload{
		file: file,
		info: model.FileInfo{
			OriginalName: header.Filename,
			MimeType:     contentType,
			DocumentType: strings.TrimSpace(r.FormValue("document_type")),
			SizeBytes:    header.Size,
		},
	}, true
}

// DownloadDocument обрабатывает GET /api/v1/documents/{id}/content.
// Поддерживает Range (206) и If-None-Match (304) через http.ServeContent.
// При нарушении целостности содержимое отдаётся с X-Integrity-Warning.
func (h *DocumentsHandler) DownloadDocument(w http.ResponseWriter, r *http.Request, id generated.DocumentId) {
	rec, res, err := h.svc.Retrieve(r.Context(), id.String())
	if err != nil {
		errors.DomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": rec.OriginalName,
	}))
	w.Header().Set("X-Content-SHA256", rec.ContentHash)
	w.Header().Set("ETag", `"`+rec.ContentHash+`"`)
	if res.IntegrityWarning {
		w.Header().Set("X-Integrity-Warning", strings.Join(res.Anomalies, ","))
	}

	http.ServeContent(w, r, rec.OriginalName, rec.UpdatedAt, bytes.NewReader(res.Data))
}

// GetDocument обрабатывает GET /api/v1/documents/{id}.
func (h *DocumentsHandler) GetDocument(w http.ResponseWriter, r *http.Request, id generated.DocumentId) {
	rec, err := h.svc.Get(r.Context(), id.String())
	if err != nil {
		errors.DomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIMetadata(rec))
}

// DeleteDocument обрабатывает DELETE /api/v1/documents/{id}.
// Soft delete: запись остаётся, содержимое не удаляется.
func (h *DocumentsHandler) DeleteDocument(w http.ResponseWriter, r *http.Request, id generated.DocumentId) {
	if err := h.svc.Delete(r.Context(), id.String()); err != nil {
		errors.DomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDocuments обрабатывает GET /api/v1/documents.
// Пагинация: limit, offset. Фильтры: document_type, storage_mode.
func (h *DocumentsHandler) ListDocuments(w http.ResponseWriter, r *http.Request, params generated.ListDocumentsParams) {
	limit := defaultListLimit
	offset := 0

	if params.Limit != nil {
		limit = *params.Limit
		if limit <= 0 || limit > maxListLimit {
			errors.ValidationError(w, fmt.Sprintf("Параметр limit должен быть от 1 до %d", maxListLimit))
			return
		}
	}
	if params.Offset != nil {
		offset = *params.Offset
		if offset < 0 {
			errors.ValidationError(w, "Параметр offset не может быть отрицательным")
			return
		}
	}

	var filter repository.ListFilter
	if params.DocumentType != nil {
		filter.DocumentType = params.DocumentType
	}
	if params.StorageMode != nil {
		m := model.StorageMode(*params.StorageMode)
		switch m {
		case model.StorageInline, model.StorageBlob:
		default:
			errors.ValidationError(w, fmt.Sprintf("Недопустимый режим хранения: %s", m))
			return
		}
		filter.StorageMode = &m
	}

	// Запрашиваем на одну запись больше, чтобы определить has_more
	recs, err := h.svc.List(r.Context(), filter, limit+1, offset)
	if err != nil {
		errors.DomainError(w, err)
		return
	}

	hasMore := len(recs) > limit
	if hasMore {
		recs = recs[:limit]
	}

	items := make([]generated.DocumentMetadata, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toAPIMetadata(rec))
	}

	writeJSON(w, http.StatusOK, generated.DocumentListResponse{
		Items:   items,
		Limit:   limit,
		Offset:  offset,
		HasMore: hasMore,
	})
}

// toAPIMetadata преобразует запись в API-формат.
// Содержимое и blob_ref наружу не отдаются.
func toAPIMetadata(rec *model.DocumentRecord) generated.DocumentMetadata {
	id := openapi_types.UUID{}
	_ = id.UnmarshalText([]byte(rec.ID))

	result := generated.DocumentMetadata{
		Id:            id,
		OriginalName:  rec.OriginalName,
		MimeType:      rec.MimeType,
		FileExtension: rec.FileExtension,
		SizeBytes:     rec.SizeBytes,
		ContentHash:   rec.ContentHash,
		StorageMode:   generated.StorageMode(rec.StorageMode),
		DownloadCount: rec.DownloadCount,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if rec.DocumentType != "" {
		dt := rec.DocumentType
		result.DocumentType = &dt
	}
	return result
}
