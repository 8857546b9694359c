// Пакет wal — файловый Write-Ahead Log для операций, которые создают
// или выводят из употребления blob. Каждая транзакция — отдельный файл
// {tx_id}.wal.json в DS_WAL_DIR. Незавершённые транзакции разбираются
// при старте: новый blob либо закрепляется за записью, либо удаляется.
package wal

import (
	"time"
)

// OperationType — тип операции, записываемой в WAL.
type OperationType string

const (
	// OpDocumentStore — создание документа с новым blob
	OpDocumentStore OperationType = "document_store"
	// OpDocumentReplace — замена содержимого документа
	OpDocumentReplace OperationType = "document_replace"
)

// TransactionStatus — статус транзакции WAL.
type TransactionStatus string

const (
	// StatusPending — транзакция начата, операция в процессе
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — транзакция успешно завершена
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — транзакция отменена
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Entry — запись WAL.
type Entry struct {
	TransactionID string            `json:"transaction_id"`
	Operation     OperationType     `json:"operation"`
	Status        TransactionStatus `json:"status"`

	// DocumentID — документ, над которым выполняется операция
	DocumentID string `json:"document_id"`

	// BlobRef — новый blob. Пусто, пока blob не записан или если новое
	// содержимое хранится inline.
	BlobRef string `json:"blob_ref,omitempty"`

	// PreviousBlobRef — blob, который удаляется после сохранения записи
	PreviousBlobRef string `json:"previous_blob_ref,omitempty"`

	// ContentHash — дайджест нового содержимого
	ContentHash string `json:"content_hash,omitempty"`

	StartedAt time.Time `json:"started_at"`

	// CompletedAt — nil для pending транзакций.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// walFileName возвращает имя файла WAL для данной транзакции.
func walFileName(txID string) string {
	return txID + ".wal.json"
}
