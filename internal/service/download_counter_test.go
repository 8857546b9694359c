package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/repository"
)

func savedRecord(t *testing.T, repo *repository.MemoryRepository, id string) {
	t.Helper()
	p := "aGVsbG8="
	rec := &model.DocumentRecord{
		ID: id, OriginalName: "a.pdf", MimeType: "application/pdf",
		StorageMode: model.StorageInline, InlinePayload: &p, SizeBytes: 5,
		IsActive: true, CreatedAt: time.Now().UTC(),
	}
	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("ошибка Save: %v", err)
	}
}

func downloads(t *testing.T, repo *repository.MemoryRepository, id string) int64 {
	t.Helper()
	rec, err := repo.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("ошибка Load: %v", err)
	}
	return rec.DownloadCount
}

func TestDownloadCounter_StopDrains(t *testing.T) {
	repo := repository.NewMemoryRepository()
	savedRecord(t, repo, "doc-1")

	c := NewDownloadCounter(repo, 1024, testLogger())
	c.Start()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				c.Record("doc-1")
			}
		}()
	}
	wg.Wait()
	c.Stop()

	if got := downloads(t, repo, "doc-1"); got != 100 {
		t.Errorf("download_count=%d, ожидалось 100", got)
	}
}

// TestDownloadCounter_DropsWhenFull — переполнение очереди не блокирует Record.
func TestDownloadCounter_DropsWhenFull(t *testing.T) {
	repo := repository.NewMemoryRepository()
	savedRecord(t, repo, "doc-1")

	// обработчик не запущен: очередь не разбирается
	c := NewDownloadCounter(repo, 2, testLogger())

	done := make(chan struct{})
	go func() {
		for range 5 {
			c.Record("doc-1")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record заблокировался на полной очереди")
	}

	c.Stop()
	if got := downloads(t, repo, "doc-1"); got != 2 {
		t.Errorf("download_count=%d, ожидалось 2", got)
	}
}

func TestDownloadCounter_RecordAfterStop(t *testing.T) {
	repo := repository.NewMemoryRepository()
	savedRecord(t, repo, "doc-1")

	c := NewDownloadCounter(repo, 4, testLogger())
	c.Start()
	c.Stop()
	c.Stop()

	c.Record("doc-1")
	if got := downloads(t, repo, "doc-1"); got != 0 {
		t.Errorf("download_count=%d после Stop", got)
	}
}

func TestDownloadCounter_MissingDocument(t *testing.T) {
	repo := repository.NewMemoryRepository()
	savedRecord(t, repo, "doc-1")

	c := NewDownloadCounter(repo, 4, testLogger())
	c.Start()
	c.Record("missing")
	c.Record("doc-1")
	c.Stop()

	if got := downloads(t, repo, "doc-1"); got != 1 {
		t.Errorf("ошибка по одному документу не должна мешать остальным: %d", got)
	}
}

// TestDownloadCounter_WithRouter — успешное чтение через маршрутизатор
// увеличивает счётчик.
func TestDownloadCounter_WithRouter(t *testing.T) {
	env := newTestEnv(t, RouterOptions{Threshold: 100})
	ctx := context.Background()

	c := NewDownloadCounter(env.repo, 16, testLogger())
	c.Start()
	router := NewStorageRouter(env.router.registry, env.repo, env.store, env.wal, c, RouterOptions{Threshold: 100}, testLogger())

	rec, err := router.Store(ctx, payload(10), pdfInfo("a.pdf", 10))
	if err != nil {
		t.Fatalf("ошибка Store: %v", err)
	}
	for range 3 {
		if _, err := router.Retrieve(ctx, rec); err != nil {
			t.Fatalf("ошибка Retrieve: %v", err)
		}
	}
	c.Stop()

	if got := downloads(t, env.repo.MemoryRepository, rec.ID); got != 3 {
		t.Errorf("download_count=%d, ожидалось 3", got)
	}
}
