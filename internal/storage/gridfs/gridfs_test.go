package gridfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/bigkaa/docstore/internal/storage/blob"
	"github.com/bigkaa/docstore/internal/storage/blob/blobtest"
)

// TestContract_MongoDB — интеграционный тест GridFS на MongoDB в Docker.
func TestContract_MongoDB(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("Не удалось запустить MongoDB контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить строку подключения: %v", err)
	}
	client, err := Connect(ctx, uri)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	if status, msg := NewReadinessChecker(client).CheckReady(); status != "ok" {
		t.Errorf("CheckReady() = %q, %q", status, msg)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	n := 0
	blobtest.Run(t, func(t *testing.T) blob.Store {
		n++
		s, err := New(client.Database("docstore_test"), fmt.Sprintf("blobs_%d", n), logger)
		if err != nil {
			t.Fatalf("New() вернул ошибку: %v", err)
		}
		return s
	})
}

// TestGet_InvalidID проверяет отказ для id вне формата ObjectID без обращения к БД.
func TestGet_InvalidID(t *testing.T) {
	s := &Store{}
	if _, _, err := s.Get(context.Background(), "not-an-object-id"); err == nil {
		t.Error("ожидалась ошибка для некорректного id")
	}
	if err := s.Delete(context.Background(), "not-an-object-id"); err != nil {
		t.Errorf("Delete некорректного id должен быть no-op: %v", err)
	}
}
