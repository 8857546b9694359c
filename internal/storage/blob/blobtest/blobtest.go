// Пакет blobtest — общий набор проверок контракта blob.Store.
// Используется тестами всех реализаций.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/storage/blob"
)

// Run запускает проверки контракта для хранилища, созданного newStore.
func Run(t *testing.T, newStore func(t *testing.T) blob.Store) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		data := bytes.Repeat([]byte{0x00, 0xFF, 'x'}, 64*1024+1)
		env := model.BlobEnvelope{OriginalName: "demo video.mp4", MimeType: "video/mp4", SizeBytes: int64(len(data))}

		id, err := s.Put(ctx, bytes.NewReader(data), env)
		if err != nil {
			t.Fatalf("ошибка Put: %v", err)
		}
		if id == "" {
			t.Fatal("Put вернул пустой идентификатор")
		}

		got, gotEnv, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("ошибка Get: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Error("содержимое blob отличается от записанного")
		}
		if gotEnv != env {
			t.Errorf("метаданные: ожидалось %+v, получено %+v", env, gotEnv)
		}
	})

	t.Run("UniqueIDs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		env := model.BlobEnvelope{OriginalName: "a.pdf", MimeType: "application/pdf", SizeBytes: 1}

		id1, err := s.Put(ctx, bytes.NewReader([]byte("a")), env)
		if err != nil {
			t.Fatalf("ошибка Put: %v", err)
		}
		id2, err := s.Put(ctx, bytes.NewReader([]byte("a")), env)
		if err != nil {
			t.Fatalf("ошибка Put: %v", err)
		}
		if id1 == id2 {
			t.Errorf("одинаковые идентификаторы: %s", id1)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
		if !errors.Is(err, docerr.ErrBlobNotFound) {
			t.Errorf("ожидалась ErrBlobNotFound, получено %v", err)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		env := model.BlobEnvelope{OriginalName: "a.zip", MimeType: "application/zip", SizeBytes: 3}

		id, err := s.Put(ctx, bytes.NewReader([]byte("zip")), env)
		if err != nil {
			t.Fatalf("ошибка Put: %v", err)
		}
		if err := s.Delete(ctx, id); err != nil {
			t.Fatalf("ошибка Delete: %v", err)
		}
		if _, _, err := s.Get(ctx, id); !errors.Is(err, docerr.ErrBlobNotFound) {
			t.Errorf("после удаления ожидалась ErrBlobNotFound, получено %v", err)
		}
		if err := s.Delete(ctx, id); err != nil {
			t.Errorf("повторный Delete вернул ошибку: %v", err)
		}
		if err := s.Delete(ctx, "00000000-0000-0000-0000-000000000000"); err != nil {
			t.Errorf("Delete неизвестного id вернул ошибку: %v", err)
		}
	})

	t.Run("FailedReaderLeavesNothing", func(t *testing.T) {
		s := newStore(t)
		r := io.MultiReader(bytes.NewReader([]byte("partial")), errReader{})
		env := model.BlobEnvelope{OriginalName: "a.mp4", MimeType: "video/mp4", SizeBytes: 100}

		id, err := s.Put(context.Background(), r, env)
		if err == nil {
			t.Fatalf("ожидалась ошибка Put, получен id %s", id)
		}
		if id != "" {
			t.Errorf("при ошибке Put вернул id %s", id)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		env := model.BlobEnvelope{OriginalName: "slow.mp4", MimeType: "video/mp4", SizeBytes: 1 << 20}

		id, err := s.Put(ctx, &SlowReader{Chunk: 1024, Delay: 20 * time.Millisecond, Total: 1 << 20}, env)
		if err == nil {
			t.Fatalf("ожидалась ошибка таймаута, получен id %s", id)
		}
		if id != "" {
			t.Errorf("при таймауте Put вернул id %s", id)
		}
	})
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("обрыв соединения")
}

// SlowReader отдаёт Total байт порциями по Chunk с задержкой Delay.
type SlowReader struct {
	Chunk int
	Delay time.Duration
	Total int

	read int
}

func (r *SlowReader) Read(p []byte) (int, error) {
	if r.read >= r.Total {
		return 0, io.EOF
	}
	time.Sleep(r.Delay)
	n := min(len(p), r.Chunk, r.Total-r.read)
	for i := range n {
		p[i] = 'v'
	}
	r.read += n
	return n, nil
}
