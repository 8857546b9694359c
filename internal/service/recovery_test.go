package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/integrity"
	"github.com/bigkaa/docstore/internal/storage/wal"
)

// putBlob записывает blob напрямую, минуя маршрутизатор.
func putBlob(t *testing.T, env *testEnv, data []byte) string {
	t.Helper()
	id, err := env.store.Put(context.Background(), bytes.NewReader(data), model.BlobEnvelope{
		OriginalName: "a.pdf", MimeType: "application/pdf", SizeBytes: int64(len(data)),
	})
	if err != nil {
		t.Fatalf("ошибка Put: %v", err)
	}
	return id
}

// TestRecover_RollsBackUnsavedBlob — сбой между записью blob и сохранением
// записи: blob удаляется.
func TestRecover_RollsBackUnsavedBlob(t *testing.T) {
	env := newTestEnv(t, RouterOptions{Threshold: 10})
	ctx := context.Background()

	data := payload(100)
	blobID := putBlob(t, env, data)

	tx, err := env.wal.StartTransaction(wal.OpDocumentStore, uuid.NewString(), "")
	if err != nil {
		t.Fatalf("ошибка StartTransaction: %v", err)
	}
	if err := env.wal.Attach(tx.TransactionID, blobID, integrity.Digest(data)); err != nil {
		t.Fatalf("ошибка Attach: %v", err)
	}

	report, err := Recover(ctx, env.wal, env.repo, env.store, testLogger())
	if err != nil {
		t.Fatalf("ошибка Recover: %v", err)
	}
	if report.RolledBack != 1 || report.RolledForward != 0 || report.Failed != 0 {
		t.Errorf("неверный отчёт: %+v", report)
	}
	if env.blobCount(t) != 0 {
		t.Error("blob незавершённой операции должен быть удалён")
	}
	if report.Cleaned != 1 || env.pendingTx(t) != 0 {
		t.Errorf("WAL должен быть очищен: cleaned=%d", report.Cleaned)
	}
}

// TestRecover_RollsForwardSavedRecord — запись сохранена, но старый blob
// не удалён и транзакция не закоммичена.
func TestRecover_RollsForwardSavedRecord(t *testing.T) {
	env := newTestEnv(t, RouterOptions{Threshold: 10})
	ctx := context.Background()

	oldData, newData := payload(100), payload(200)
	oldBlob := putBlob(t, env, oldData)
	newBlob := putBlob(t, env, newData)

	id := uuid.NewString()
	tx, _ := env.wal.StartTransaction(wal.OpDocumentReplace, id, oldBlob)
	_ = env.wal.Attach(tx.TransactionID, newBlob, integrity.Digest(newData))

	rec := &model.DocumentRecord{
		ID: id, OriginalName: "a.pdf", MimeType: "application/pdf", FileExtension: ".pdf",
		SizeBytes: 200, ContentHash: integrity.Digest(newData),
		StorageMode: model.StorageBlob, BlobRef: &newBlob, IsActive: true,
	}
	if err := env.repo.Save(ctx, rec); err != nil {
		t.Fatalf("ошибка Save: %v", err)
	}

	report, err := Recover(ctx, env.wal, env.repo, env.store, testLogger())
	if err != nil {
		t.Fatalf("ошибка Recover: %v", err)
	}
	if report.RolledForward != 1 {
		t.Errorf("неверный отчёт: %+v", report)
	}
	if _, _, err := env.store.Get(ctx, oldBlob); !errors.Is(err, docerr.ErrBlobNotFound) {
		t.Error("предыдущий blob должен быть удалён")
	}
	if _, _, err := env.store.Get(ctx, newBlob); err != nil {
		t.Errorf("новый blob должен остаться: %v", err)
	}
}

// TestRecover_StaleRecordKeepsOldBlob — запись указывает на прежний blob:
// замена не состоялась, удаляется только новый.
func TestRecover_StaleRecordKeepsOldBlob(t *testing.T) {
	env := newTestEnv(t, RouterOptions{Threshold: 10})
	ctx := context.Background()

	oldData, newData := payload(100), payload(200)
	oldBlob := putBlob(t, env, oldData)
	newBlob := putBlob(t, env, newData)

	id := uuid.NewString()
	rec := &model.DocumentRecord{
		ID: id, OriginalName: "a.pdf", MimeType: "application/pdf", FileExtension: ".pdf",
		SizeBytes: 100, ContentHash: integrity.Digest(oldData),
		StorageMode: model.StorageBlob, BlobRef: &oldBlob, IsActive: true,
	}
	_ = env.repo.Save(ctx, rec)

	tx, _ := env.wal.StartTransaction(wal.OpDocumentReplace, id, oldBlob)
	_ = env.wal.Attach(tx.TransactionID, newBlob, integrity.Digest(newData))

	report, err := Recover(ctx, env.wal, env.repo, env.store, testLogger())
	if err != nil {
		t.Fatalf("ошибка Recover: %v", err)
	}
	if report.RolledBack != 1 {
		t.Errorf("неверный отчёт: %+v", report)
	}
	if _, _, err := env.store.Get(ctx, oldBlob); err != nil {
		t.Errorf("прежний blob должен остаться: %v", err)
	}
	if _, _, err := env.store.Get(ctx, newBlob); !errors.Is(err, docerr.ErrBlobNotFound) {
		t.Error("новый blob должен быть удалён")
	}
}

// TestRecover_DeleteFailureStaysPending — при сбое удаления транзакция
// остаётся до следующего запуска.
func TestRecover_DeleteFailureStaysPending(t *testing.T) {
	env := newTestEnv(t, RouterOptions{Threshold: 10})
	ctx := context.Background()

	data := payload(100)
	blobID := putBlob(t, env, data)
	tx, _ := env.wal.StartTransaction(wal.OpDocumentStore, uuid.NewString(), "")
	_ = env.wal.Attach(tx.TransactionID, blobID, integrity.Digest(data))

	env.store.setFailDelete(true)
	report, err := Recover(ctx, env.wal, env.repo, env.store, testLogger())
	if err != nil {
		t.Fatalf("ошибка Recover: %v", err)
	}
	if report.Failed != 1 || env.pendingTx(t) != 1 {
		t.Errorf("транзакция должна остаться pending: %+v", report)
	}

	env.store.setFailDelete(false)
	report, _ = Recover(ctx, env.wal, env.repo, env.store, testLogger())
	if report.RolledBack != 1 || env.blobCount(t) != 0 {
		t.Errorf("повторное восстановление должно откатить транзакцию: %+v", report)
	}
}

func TestRecover_NotAttached(t *testing.T) {
	env := newTestEnv(t, RouterOptions{Threshold: 10})

	if _, err := env.wal.StartTransaction(wal.OpDocumentStore, uuid.NewString(), ""); err != nil {
		t.Fatalf("ошибка StartTransaction: %v", err)
	}

	report, err := Recover(context.Background(), env.wal, env.repo, env.store, testLogger())
	if err != nil {
		t.Fatalf("ошибка Recover: %v", err)
	}
	if report.RolledBack != 1 || env.store.deletes != 0 {
		t.Errorf("транзакция без blob откатывается без удаления: %+v, deletes=%d", report, env.store.deletes)
	}
}

func TestRecover_Empty(t *testing.T) {
	env := newTestEnv(t, RouterOptions{Threshold: 10})

	report, err := Recover(context.Background(), env.wal, env.repo, env.store, testLogger())
	if err != nil {
		t.Fatalf("ошибка Recover: %v", err)
	}
	if report != (RecoveryReport{}) {
		t.Errorf("ожидался пустой отчёт, получено %+v", report)
	}
}
