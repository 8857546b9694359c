package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/repository"
)

func newTestService(t *testing.T, opts RouterOptions, attempts int) (*DocumentService, *testEnv) {
	t.Helper()
	env := newTestEnv(t, opts)
	svc := NewDocumentService(env.router, env.repo, RetryOptions{Attempts: attempts, BaseDelay: time.Millisecond}, testLogger())
	return svc, env
}

func TestDocumentService_Lifecycle(t *testing.T) {
	svc, env := newTestService(t, RouterOptions{Threshold: 100}, 3)
	ctx := context.Background()

	rec, err := svc.Store(ctx, payload(50), pdfInfo("v1.pdf", 50))
	if err != nil {
		t.Fatalf("ошибка Store: %v", err)
	}

	got, err := svc.Get(ctx, rec.ID)
	if err != nil || got.ContentHash != rec.ContentHash {
		t.Fatalf("ошибка Get: %v", err)
	}

	_, res, err := svc.Retrieve(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ошибка Retrieve: %v", err)
	}
	mustEqual(t, res.Data, payload(50))

	newData := payload(500)
	replaced, err := svc.Replace(ctx, rec.ID, newData, pdfInfo("v2.pdf", 500))
	if err != nil {
		t.Fatalf("ошибка Replace: %v", err)
	}
	if replaced.ID != rec.ID || replaced.BlobID() == "" {
		t.Errorf("неверная запись после Replace: %+v", replaced)
	}

	if err := svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("ошибка Delete: %v", err)
	}

	_, _, err = svc.Retrieve(ctx, rec.ID)
	wantErr(t, err, docerr.ErrDocumentDeleted)
	_, err = svc.Replace(ctx, rec.ID, payload(10), pdfInfo("v3.pdf", 10))
	wantErr(t, err, docerr.ErrDocumentDeleted)
	_, err = svc.Get(ctx, rec.ID)
	wantErr(t, err, docerr.ErrDocumentDeleted)

	// soft delete не удаляет blob
	if env.blobCount(t) != 1 {
		t.Errorf("blob удалённого документа должен сохраниться, на диске %d", env.blobCount(t))
	}
}

func TestDocumentService_NotFound(t *testing.T) {
	svc, _ := newTestService(t, RouterOptions{Threshold: 100}, 3)
	ctx := context.Background()
	const id = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

	_, err := svc.Get(ctx, id)
	wantErr(t, err, docerr.ErrDocumentNotFound)
	_, _, err = svc.Retrieve(ctx, id)
	wantErr(t, err, docerr.ErrDocumentNotFound)
	_, err = svc.Replace(ctx, id, payload(10), pdfInfo("a.pdf", 10))
	wantErr(t, err, docerr.ErrDocumentNotFound)
	wantErr(t, svc.Delete(ctx, id), docerr.ErrDocumentNotFound)
}

// TestDocumentService_RetriesStorageFailure — сбой хранилища повторяется.
func TestDocumentService_RetriesStorageFailure(t *testing.T) {
	svc, env := newTestService(t, RouterOptions{Threshold: 10}, 3)
	ctx := context.Background()

	env.store.failPuts = 2
	rec, err := svc.Store(ctx, payload(100), pdfInfo("a.pdf", 100))
	if err != nil {
		t.Fatalf("ожидался успех с третьей попытки: %v", err)
	}
	if env.store.puts != 3 {
		t.Errorf("ожидалось 3 попытки Put, выполнено %d", env.store.puts)
	}

	env.store.failGets = 1
	if _, _, err := svc.Retrieve(ctx, rec.ID); err != nil {
		t.Fatalf("ожидался успех со второй попытки: %v", err)
	}
}

func TestDocumentService_RetryExhausted(t *testing.T) {
	svc, env := newTestService(t, RouterOptions{Threshold: 10}, 2)

	env.store.failPuts = 5
	_, err := svc.Store(context.Background(), payload(100), pdfInfo("a.pdf", 100))
	wantErr(t, err, docerr.ErrStorageFailure)
	if env.store.puts != 2 {
		t.Errorf("ожидалось 2 попытки Put, выполнено %d", env.store.puts)
	}
	if env.pendingTx(t) != 0 {
		t.Error("WAL-транзакции всех попыток должны быть откачены")
	}
}

// TestDocumentService_NoRetryOnClientError — клиентские ошибки не повторяются.
func TestDocumentService_NoRetryOnClientError(t *testing.T) {
	svc, env := newTestService(t, RouterOptions{Threshold: 10}, 5)
	ctx := context.Background()

	_, err := svc.Store(ctx, payload(100), pdfInfo("a.exe.pdf", 100))
	wantErr(t, err, docerr.ErrDangerousExtension)

	rec, _ := svc.Store(ctx, payload(100), pdfInfo("a.pdf", 100))
	_ = env.store.Delete(ctx, rec.BlobID())
	_, _, err = svc.Retrieve(ctx, rec.ID)
	wantErr(t, err, docerr.ErrBlobNotFound)

	if env.store.puts != 1 {
		t.Errorf("ожидался 1 вызов Put, выполнено %d", env.store.puts)
	}
}

func TestDocumentService_StreamRetry(t *testing.T) {
	svc, env := newTestService(t, RouterOptions{Threshold: 10}, 3)
	ctx := context.Background()
	data := payload(1000)

	// bytes.Reader перематывается, повтор возможен
	env.store.failPuts = 1
	rec, err := svc.StoreStream(ctx, bytes.NewReader(data), pdfInfo("a.pdf", 1000))
	if err != nil {
		t.Fatalf("ошибка StoreStream: %v", err)
	}
	_, res, err := svc.Retrieve(ctx, rec.ID)
	if err != nil || res.IntegrityWarning {
		t.Fatalf("ошибка Retrieve: %v", err)
	}
	mustEqual(t, res.Data, data)

	// обычный поток не повторяется
	env.store.failPuts = 1
	_, err = svc.StoreStream(ctx, zeros(1000), pdfInfo("b.pdf", 1000))
	wantErr(t, err, docerr.ErrStorageFailure)
}

func TestDocumentService_ReplaceStream(t *testing.T) {
	svc, env := newTestService(t, RouterOptions{Threshold: 10}, 1)
	ctx := context.Background()

	rec, _ := svc.Store(ctx, payload(100), pdfInfo("a.pdf", 100))
	oldBlob := rec.BlobID()

	replaced, err := svc.ReplaceStream(ctx, rec.ID, bytes.NewReader(payload(5)), pdfInfo("b.pdf", 5))
	if err != nil {
		t.Fatalf("ошибка ReplaceStream: %v", err)
	}
	if replaced.InlinePayload == nil || replaced.OriginalName != "b.pdf" {
		t.Errorf("неверная запись: %+v", replaced)
	}
	if _, _, err := env.store.Get(ctx, oldBlob); !errors.Is(err, docerr.ErrBlobNotFound) {
		t.Error("старый blob должен быть удалён")
	}
}

func TestDocumentService_ContextCanceled(t *testing.T) {
	svc, env := newTestService(t, RouterOptions{Threshold: 10}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env.store.failPuts = 5
	if _, err := svc.Store(ctx, payload(100), pdfInfo("a.pdf", 100)); err == nil {
		t.Fatal("ожидалась ошибка при отменённом контексте")
	}
	if env.store.puts > 1 {
		t.Errorf("после отмены контекста повторов быть не должно, выполнено %d", env.store.puts)
	}
}

func TestDocumentService_List(t *testing.T) {
	svc, _ := newTestService(t, RouterOptions{Threshold: 100}, 1)
	ctx := context.Background()

	a, _ := svc.Store(ctx, payload(10), pdfInfo("a.pdf", 10))
	_, _ = svc.Store(ctx, payload(500), pdfInfo("b.pdf", 500))
	_ = svc.Delete(ctx, a.ID)

	recs, err := svc.List(ctx, repository.ListFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ошибка List: %v", err)
	}
	if len(recs) != 1 || recs[0].OriginalName != "b.pdf" {
		t.Errorf("ожидался только активный документ, получено %d", len(recs))
	}
}
