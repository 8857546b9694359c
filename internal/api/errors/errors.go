// Пакет errors — конструкторы стандартных ошибок API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/bigkaa/docstore/internal/domain/docerr"
)

// Коды ошибок, не связанные с доменом.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeAuditInProgress    = "AUDIT_IN_PROGRESS"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// StatusFor возвращает HTTP статус доменной ошибки.
func StatusFor(err error) int {
	switch {
	case stderrors.Is(err, docerr.ErrDocumentNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, docerr.ErrDocumentDeleted):
		return http.StatusGone
	case stderrors.Is(err, docerr.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case stderrors.Is(err, docerr.ErrInvalidEncoding):
		// При чтении: сохранённое содержимое повреждено
		return http.StatusBadGateway
	case docerr.IsClientError(err):
		return http.StatusBadRequest
	case stderrors.Is(err, docerr.ErrBlobNotFound), stderrors.Is(err, docerr.ErrIntegrityMismatch):
		return http.StatusBadGateway
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case stderrors.Is(err, docerr.ErrStorageFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DomainError записывает ответ для ошибки сервисного слоя.
// Код — docerr.Reason в верхнем регистре (DANGEROUS_EXTENSION и т.п.).
// Текст внутренних ошибок клиенту не передаётся.
func DomainError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	code := strings.ToUpper(docerr.Reason(err))

	message := err.Error()
	if status == http.StatusInternalServerError {
		code = CodeInternalError
		message = "Внутренняя ошибка сервера"
	}
	WriteError(w, status, code, message)
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// FileTooLarge — 413 тело запроса превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// AuditInProgress — 409 проверка целостности уже выполняется.
func AuditInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeAuditInProgress, message)
}

// ServiceUnavailable — 503 сервис не готов.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
