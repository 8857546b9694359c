package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/docstore/internal/database"
	"github.com/bigkaa/docstore/internal/database/dbtest"
	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
)

// setupPostgres поднимает PostgreSQL, применяет миграции и возвращает пул.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	cfg := dbtest.StartPostgres(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	pool, err := database.Connect(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgres_Lifecycle(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewPostgresRepository(pool)
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Microsecond)
	rec := testRecord("7a1b9c3e-0d4f-4e2a-8b6c-5d7e9f0a1b2c", created)

	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("ошибка Save: %v", err)
	}
	got, err := repo.Load(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ошибка Load: %v", err)
	}
	if got.StorageMode != model.StorageInline || got.BlobRef != nil {
		t.Errorf("неверный режим хранения: %+v", got)
	}
	if *got.InlinePayload != *rec.InlinePayload || !got.CreatedAt.Equal(created) {
		t.Errorf("загруженная запись отличается: %+v", got)
	}

	// Замена inline → blob целиком
	blobRef := "blob-0001"
	repl := rec.Clone()
	repl.StorageMode = model.StorageBlob
	repl.InlinePayload = nil
	repl.BlobRef = &blobRef
	repl.SizeBytes = 20 << 20
	repl.CreatedAt = created.Add(time.Hour)
	if err := repo.Save(ctx, repl); err != nil {
		t.Fatalf("ошибка повторного Save: %v", err)
	}
	got, _ = repo.Load(ctx, rec.ID)
	if got.StorageMode != model.StorageBlob || got.InlinePayload != nil || got.BlobID() != blobRef {
		t.Errorf("замена не применена: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at не должен меняться при замене: %v", got.CreatedAt)
	}

	for i := 0; i < 3; i++ {
		if err := repo.IncrementDownloadCount(ctx, rec.ID); err != nil {
			t.Fatalf("ошибка IncrementDownloadCount: %v", err)
		}
	}
	if err := repo.MarkDeleted(ctx, rec.ID); err != nil {
		t.Fatalf("ошибка MarkDeleted: %v", err)
	}
	got, _ = repo.Load(ctx, rec.ID)
	if got.DownloadCount != 3 || got.IsActive {
		t.Errorf("ожидалось download_count=3, is_active=false, получено %d, %v", got.DownloadCount, got.IsActive)
	}
}

func TestPostgres_NotFound(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewPostgresRepository(pool)
	ctx := context.Background()

	for _, id := range []string{"0b6f7c1a-2d3e-4f50-8a9b-0c1d2e3f4a5b", "не-uuid"} {
		if _, err := repo.Load(ctx, id); !errors.Is(err, docerr.ErrDocumentNotFound) {
			t.Errorf("Load(%q): ожидалась ErrDocumentNotFound, получено %v", id, err)
		}
		if err := repo.MarkDeleted(ctx, id); !errors.Is(err, docerr.ErrDocumentNotFound) {
			t.Errorf("MarkDeleted(%q): ожидалась ErrDocumentNotFound, получено %v", id, err)
		}
		if err := repo.IncrementDownloadCount(ctx, id); !errors.Is(err, docerr.ErrDocumentNotFound) {
			t.Errorf("IncrementDownloadCount(%q): ожидалась ErrDocumentNotFound, получено %v", id, err)
		}
	}
}

func TestPostgres_List(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewPostgresRepository(pool)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	ids := []string{
		"11111111-1111-4111-8111-111111111111",
		"22222222-2222-4222-8222-222222222222",
		"33333333-3333-4333-8333-333333333333",
	}
	for i, id := range ids {
		rec := testRecord(id, base.Add(time.Duration(i)*time.Minute))
		if i == 2 {
			rec.DocumentType = "poster"
		}
		if err := repo.Save(ctx, rec); err != nil {
			t.Fatalf("ошибка Save: %v", err)
		}
	}
	if err := repo.MarkDeleted(ctx, ids[0]); err != nil {
		t.Fatalf("ошибка MarkDeleted: %v", err)
	}

	all, err := repo.List(ctx, ListFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("ошибка List: %v", err)
	}
	if len(all) != 3 || all[0].ID != ids[2] {
		t.Fatalf("ожидалось 3 записи, новые первыми, получено %d", len(all))
	}

	active, _ := repo.List(ctx, ListFilter{ActiveOnly: true}, 10, 0)
	if len(active) != 2 {
		t.Errorf("ActiveOnly: ожидалось 2, получено %d", len(active))
	}

	docType := "poster"
	posters, _ := repo.List(ctx, ListFilter{DocumentType: &docType}, 10, 0)
	if len(posters) != 1 || posters[0].ID != ids[2] {
		t.Errorf("DocumentType: ожидалась одна запись %s, получено %d", ids[2], len(posters))
	}

	mode := model.StorageBlob
	blobs, _ := repo.List(ctx, ListFilter{StorageMode: &mode}, 10, 0)
	if len(blobs) != 0 {
		t.Errorf("StorageMode=blob: ожидалось 0, получено %d", len(blobs))
	}

	page, _ := repo.List(ctx, ListFilter{}, 1, 1)
	if len(page) != 1 || page[0].ID != ids[1] {
		t.Errorf("пагинация: ожидалась запись %s", ids[1])
	}
}

// TestPostgres_TxRollback проверяет откат Save внутри транзакции.
func TestPostgres_TxRollback(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	id := "44444444-4444-4444-8444-444444444444"
	sentinel := errors.New("откат")

	err := NewTxRunner(pool).RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewPostgresRepository(tx).Save(ctx, testRecord(id, time.Now().UTC())); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("ожидалась ошибка fn, получено %v", err)
	}

	if _, err := NewPostgresRepository(pool).Load(ctx, id); !errors.Is(err, docerr.ErrDocumentNotFound) {
		t.Errorf("запись не должна сохраниться после отката: %v", err)
	}
}
