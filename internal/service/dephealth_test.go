package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func dephealthLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newMinioMock создаёт mock S3 endpoint с заданным статусом liveness.
func newMinioMock(status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != minioHealthPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(status)
	}))
}

func TestNewDephealthService_NoTargets(t *testing.T) {
	_, err := NewDephealthServiceWithRegisterer(
		"docstore", "docstore", DependencyTargets{}, 5*time.Second,
		dephealthLogger(), prometheus.NewRegistry(),
	)
	if !errors.Is(err, ErrNoDependencies) {
		t.Fatalf("ожидалась ErrNoDependencies, получено %v", err)
	}

	// PostgresURL без DB не считается целью
	if !(DependencyTargets{PostgresURL: "postgres://db:5432/docstore"}).Empty() {
		t.Error("цель без *sql.DB должна считаться пустой")
	}
}

func TestNewDephealthService_S3(t *testing.T) {
	mock := newMinioMock(http.StatusOK)
	defer mock.Close()

	ds, err := NewDephealthServiceWithRegisterer(
		"docstore-test-01", "docstore",
		DependencyTargets{S3Endpoint: mock.URL},
		5*time.Second, dephealthLogger(), prometheus.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}
	if ds == nil {
		t.Fatal("DephealthService nil")
	}
}

func TestDephealthService_StartStop(t *testing.T) {
	mock := newMinioMock(http.StatusOK)
	defer mock.Close()

	ds, err := NewDephealthServiceWithRegisterer(
		"docstore-test-02", "docstore",
		DependencyTargets{S3Endpoint: mock.URL},
		1*time.Second, dephealthLogger(), prometheus.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}

	// Даём время на первую проверку (интервал 1s + запас)
	time.Sleep(3 * time.Second)

	health := ds.Health()
	found := false
	for key, val := range health {
		if strings.HasPrefix(key, "s3:") {
			found = true
			if !val {
				t.Errorf("s3 health = false для ключа %q, ожидалось true", key)
			}
			break
		}
	}
	if !found {
		t.Errorf("Нет записи для s3 в Health(), keys=%v", healthKeys(health))
	}

	ds.Stop()
}

func TestDephealthService_UnhealthyDependency(t *testing.T) {
	mock := newMinioMock(http.StatusServiceUnavailable)
	defer mock.Close()

	ds, err := NewDephealthServiceWithRegisterer(
		"docstore-test-03", "docstore",
		DependencyTargets{S3Endpoint: mock.URL},
		1*time.Second, dephealthLogger(), prometheus.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("Ошибка создания DephealthService: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ds.Start(ctx); err != nil {
		t.Fatalf("Ошибка запуска: %v", err)
	}

	time.Sleep(3 * time.Second)

	health := ds.Health()
	found := false
	for key, val := range health {
		if strings.HasPrefix(key, "s3:") {
			found = true
			if val {
				t.Errorf("s3 health = true для ключа %q, ожидалось false (сервер 503)", key)
			}
			break
		}
	}
	if !found {
		t.Errorf("Нет записи для s3 в Health(), keys=%v", healthKeys(health))
	}

	ds.Stop()
}

// healthKeys возвращает ключи карты health для вывода в сообщениях об ошибках.
func healthKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
