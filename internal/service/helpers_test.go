package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bigkaa/docstore/internal/domain/docerr"
	"github.com/bigkaa/docstore/internal/domain/model"
	"github.com/bigkaa/docstore/internal/domain/policy"
	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/storage/blob"
	"github.com/bigkaa/docstore/internal/storage/filestore"
	"github.com/bigkaa/docstore/internal/storage/wal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// faultyStore — blob.Store с внедрением сбоев поверх FileStore.
type faultyStore struct {
	inner blob.Store

	mu         sync.Mutex
	failPuts   int // сколько следующих Put завершатся ошибкой
	failGets   int
	failDelete bool
	puts       int
	gets       int
	deletes    int
}

var errInjected = fmt.Errorf("%w: внедрённый сбой", docerr.ErrStorageFailure)

func (s *faultyStore) Put(ctx context.Context, r io.Reader, env model.BlobEnvelope) (string, error) {
	s.mu.Lock()
	s.puts++
	fail := s.failPuts > 0
	if fail {
		s.failPuts--
	}
	s.mu.Unlock()

	if fail {
		return "", errInjected
	}
	return s.inner.Put(ctx, r, env)
}

func (s *faultyStore) Get(ctx context.Context, id string) ([]byte, model.BlobEnvelope, error) {
	s.mu.Lock()
	s.gets++
	fail := s.failGets > 0
	if fail {
		s.failGets--
	}
	s.mu.Unlock()

	if fail {
		return nil, model.BlobEnvelope{}, errInjected
	}
	return s.inner.Get(ctx, id)
}

func (s *faultyStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	s.deletes++
	fail := s.failDelete
	s.mu.Unlock()

	if fail {
		return errInjected
	}
	return s.inner.Delete(ctx, id)
}

func (s *faultyStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *faultyStore) setFailDelete(v bool) {
	s.mu.Lock()
	s.failDelete = v
	s.mu.Unlock()
}

// faultyRepo — репозиторий с внедрением сбоев Save.
type faultyRepo struct {
	*repository.MemoryRepository

	mu        sync.Mutex
	failSaves int
	saveErr   error
}

func (r *faultyRepo) Save(ctx context.Context, rec *model.DocumentRecord) error {
	r.mu.Lock()
	fail := r.failSaves > 0
	if fail {
		r.failSaves--
	}
	err := r.saveErr
	r.mu.Unlock()

	if fail {
		if err == nil {
			err = errInjected
		}
		return err
	}
	return r.MemoryRepository.Save(ctx, rec)
}

// recorder — DownloadRecorder, запоминающий вызовы.
type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) Record(id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// testEnv — маршрутизатор с зависимостями для тестов.
type testEnv struct {
	router   *StorageRouter
	repo     *faultyRepo
	store    *faultyStore
	blobDir  string
	wal      *wal.WAL
	recorder *recorder
}

func newTestEnv(t *testing.T, opts RouterOptions) *testEnv {
	t.Helper()

	blobDir := filepath.Join(t.TempDir(), "blobs")
	fs, err := filestore.New(blobDir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	walEngine, err := wal.New(filepath.Join(t.TempDir(), "wal"), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания WAL: %v", err)
	}

	env := &testEnv{
		repo:     &faultyRepo{MemoryRepository: repository.NewMemoryRepository()},
		store:    &faultyStore{inner: fs},
		blobDir:  blobDir,
		wal:      walEngine,
		recorder: &recorder{},
	}
	env.router = NewStorageRouter(policy.Default(), env.repo, env.store, walEngine, env.recorder, opts, testLogger())
	return env
}

// blobCount возвращает количество blob на диске.
func (e *testEnv) blobCount(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(e.blobDir, "*.blob"))
	if err != nil {
		t.Fatalf("ошибка Glob: %v", err)
	}
	return len(matches)
}

// pendingTx возвращает количество незавершённых WAL-транзакций.
func (e *testEnv) pendingTx(t *testing.T) int {
	t.Helper()
	pending, err := e.wal.RecoverPending()
	if err != nil {
		t.Fatalf("ошибка RecoverPending: %v", err)
	}
	return len(pending)
}

// pdfInfo — FileInfo для PDF заданного размера.
func pdfInfo(name string, size int) model.FileInfo {
	return model.FileInfo{
		OriginalName: name,
		MimeType:     "application/pdf",
		DocumentType: "proposal_capstone1",
		SizeBytes:    int64(size),
	}
}

// videoInfo — FileInfo для MP4 заданного размера.
func videoInfo(size int64) model.FileInfo {
	return model.FileInfo{
		OriginalName: "demo.mp4",
		MimeType:     "video/mp4",
		DocumentType: "video_demo_capstone2",
		SizeBytes:    size,
	}
}

// payload генерирует детерминированное содержимое длины n.
func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + 7)
	}
	return b
}

// zeroReader — бесконечный поток нулей.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func zeros(n int64) io.Reader {
	return io.LimitReader(zeroReader{}, n)
}

func mustEqual(t *testing.T, got, want []byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		t.Fatalf("содержимое отличается: получено %d байт, ожидалось %d", len(got), len(want))
	}
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("ожидалась ошибка %v, получено %v", target, err)
	}
}
