package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
)

const documentColumns = `id, original_name, mime_type, file_extension, size_bytes,
	document_type, content_hash, storage_mode, inline_payload, blob_ref,
	download_count, is_active, created_at, updated_at`

// postgresRepo — реализация DocumentRepository на PostgreSQL.
// Взаимоисключение inline_payload/blob_ref дублируется CHECK-ограничением таблицы.
type postgresRepo struct {
	db DBTX
}

// NewPostgresRepository создаёт репозиторий документов.
func NewPostgresRepository(db DBTX) DocumentRepository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) Save(ctx context.Context, rec *model.DocumentRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			original_name  = EXCLUDED.original_name,
			mime_type      = EXCLUDED.mime_type,
			file_extension = EXCLUDED.file_extension,
			size_bytes     = EXCLUDED.size_bytes,
			document_type  = EXCLUDED.document_type,
			content_hash   = EXCLUDED.content_hash,
			storage_mode   = EXCLUDED.storage_mode,
			inline_payload = EXCLUDED.inline_payload,
			blob_ref       = EXCLUDED.blob_ref,
			download_count = EXCLUDED.download_count,
			is_active      = EXCLUDED.is_active,
			updated_at     = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.OriginalName, rec.MimeType, rec.FileExtension, rec.SizeBytes,
		rec.DocumentType, rec.ContentHash, string(rec.StorageMode), rec.InlinePayload, rec.BlobRef,
		rec.DownloadCount, rec.IsActive, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %s: %v", docerr.ErrInvalidRecord, rec.ID, err)
		}
		return fmt.Errorf("%w: ошибка сохранения документа: %v", docerr.ErrStorageFailure, err)
	}
	return nil
}

// checkID отсекает идентификаторы, которые столбец UUID не примет.
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", docerr.ErrDocumentNotFound, id)
	}
	return nil
}

func (r *postgresRepo) Load(ctx context.Context, id string) (*model.DocumentRecord, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	rec, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", docerr.ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("%w: ошибка получения документа: %v", docerr.ErrStorageFailure, err)
	}
	return rec, nil
}

func (r *postgresRepo) MarkDeleted(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: ошибка удаления документа: %v", docerr.ErrStorageFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", docerr.ErrDocumentNotFound, id)
	}
	return nil
}

func (r *postgresRepo) IncrementDownloadCount(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET download_count = download_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: ошибка обновления счётчика: %v", docerr.ErrStorageFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", docerr.ErrDocumentNotFound, id)
	}
	return nil
}

// buildDocumentWhere строит WHERE-условие и аргументы для фильтрации.
func buildDocumentWhere(filter ListFilter, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = TRUE")
	}
	if filter.StorageMode != nil {
		conditions = append(conditions, fmt.Sprintf("storage_mode = $%d", argNum))
		args = append(args, string(*filter.StorageMode))
		argNum++
	}
	if filter.DocumentType != nil {
		conditions = append(conditions, fmt.Sprintf("document_type = $%d", argNum))
		args = append(args, *filter.DocumentType)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *postgresRepo) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*model.DocumentRecord, error) {
	where, args := buildDocumentWhere(filter, 1)
	argNum := len(args) + 1

	if limit <= 0 {
		limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM documents
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, documentColumns, where, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка получения списка документов: %v", docerr.ErrStorageFailure, err)
	}
	defer rows.Close()

	var result []*model.DocumentRecord
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: ошибка сканирования документа: %v", docerr.ErrStorageFailure, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", docerr.ErrStorageFailure, err)
	}
	return result, nil
}

// scanDocument сканирует строку в DocumentRecord.
func scanDocument(row pgx.Row) (*model.DocumentRecord, error) {
	rec := &model.DocumentRecord{}
	var mode string
	err := row.Scan(
		&rec.ID, &rec.OriginalName, &rec.MimeType, &rec.FileExtension, &rec.SizeBytes,
		&rec.DocumentType, &rec.ContentHash, &mode, &rec.InlinePayload, &rec.BlobRef,
		&rec.DownloadCount, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.StorageMode = model.StorageMode(mode)
	return rec, nil
}
