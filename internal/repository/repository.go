// Пакет repository — хранилище записей документов (DocumentRecord).
// Реализации: in-memory (memory.go), PostgreSQL через pgx (postgres.go)
// и LRU-кэш поверх любой из них (cached.go).
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/docstore/internal/domain/model"
)

// DocumentRepository — персистентность записей документов.
// Отсутствующая запись — docerr.ErrDocumentNotFound.
type DocumentRepository interface {
	// Save атомарно вставляет или целиком заменяет запись.
	Save(ctx context.Context, rec *model.DocumentRecord) error
	// Load возвращает запись, включая soft-deleted.
	Load(ctx context.Context, id string) (*model.DocumentRecord, error)
	// MarkDeleted выполняет soft delete (is_active → false).
	MarkDeleted(ctx context.Context, id string) error
	// IncrementDownloadCount увеличивает счётчик скачиваний на 1.
	IncrementDownloadCount(ctx context.Context, id string) error
	// List возвращает записи, новые первыми.
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*model.DocumentRecord, error)
}

// ListFilter — фильтры списка записей.
type ListFilter struct {
	ActiveOnly   bool
	StorageMode  *model.StorageMode
	DocumentType *string
}

func (f ListFilter) matches(rec *model.DocumentRecord) bool {
	if f.ActiveOnly && !rec.IsActive {
		return false
	}
	if f.StorageMode != nil && rec.StorageMode != *f.StorageMode {
		return false
	}
	if f.DocumentType != nil && rec.DocumentType != *f.DocumentType {
		return false
	}
	return true
}

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// isCheckViolation проверяет нарушение CHECK-ограничения PostgreSQL.
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514" // check_violation
	}
	return false
}

