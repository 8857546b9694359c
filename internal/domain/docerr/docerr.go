// Пакет docerr — таксономия ошибок хранилища документов.
//
// Три группы:
//   - клиентские ошибки (некорректный ввод, повтор бессмыслен);
//   - сбои хранилища (инфраструктура, часть из них можно повторить);
//   - аномалии целостности (возвращаются как ошибка только в strict-режиме).
package docerr

import (
	"context"
	"errors"
)

// Клиентские ошибки и ошибки политики.
var (
	ErrUnknownDocumentType     = errors.New("неизвестный тип документа")
	ErrDisallowedMimeType      = errors.New("MIME-тип не разрешён")
	ErrExtensionMismatch       = errors.New("расширение не соответствует MIME-типу")
	ErrDangerousExtension      = errors.New("опасное расширение файла")
	ErrFileTooLarge            = errors.New("файл превышает допустимый размер")
	ErrInvalidEncoding         = errors.New("некорректная inline-кодировка")
	ErrEmptyFile               = errors.New("пустой файл")
	ErrSizeDeclarationMismatch = errors.New("заявленный размер не совпадает с фактическим")
)

// Сбои хранилища.
var (
	ErrBlobNotFound     = errors.New("blob не найден")
	ErrStorageFailure   = errors.New("ошибка хранилища")
	ErrDocumentNotFound = errors.New("документ не найден")
	ErrDocumentDeleted  = errors.New("документ удалён")
)

// ErrIntegrityMismatch — нарушение целостности при чтении (только strict-режим).
var ErrIntegrityMismatch = errors.New("нарушение целостности содержимого")

// ErrInvalidRecord — запись нарушает инвариант (оба или ни одного из inline/blob).
var ErrInvalidRecord = errors.New("некорректная запись документа")

var clientErrors = []error{
	ErrUnknownDocumentType,
	ErrDisallowedMimeType,
	ErrExtensionMismatch,
	ErrDangerousExtension,
	ErrFileTooLarge,
	ErrInvalidEncoding,
	ErrEmptyFile,
	ErrSizeDeclarationMismatch,
}

// IsClientError возвращает true для ошибок, которые должен исправить вызывающий.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable возвращает true для сбоев хранилища, которые имеет смысл повторить.
// BlobNotFound и отмена контекста вызывающим не повторяются.
func IsRetryable(err error) bool {
	if err == nil || IsClientError(err) {
		return false
	}
	if errors.Is(err, ErrBlobNotFound) || errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrDocumentDeleted) || errors.Is(err, ErrIntegrityMismatch) ||
		errors.Is(err, ErrInvalidRecord) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrStorageFailure) || errors.Is(err, context.DeadlineExceeded)
}
