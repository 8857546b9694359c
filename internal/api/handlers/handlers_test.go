package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/docstore/internal/api/generated"
	"github.com/bigkaa/docstore/internal/domain/policy"
	"github.com/bigkaa/docstore/internal/repository"
	"github.com/bigkaa/docstore/internal/server"
	"github.com/bigkaa/docstore/internal/service"
	"github.com/bigkaa/docstore/internal/storage/filestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeChecker — ReadinessChecker с фиксированным результатом.
type fakeChecker struct {
	status string
}

func (c fakeChecker) CheckReady() (string, string) {
	return c.status, "проверка " + c.status
}

// busyAuditor — AuditRunner, у которого проверка всегда уже выполняется.
type busyAuditor struct{}

func (busyAuditor) RunOnce(context.Context) (*service.AuditReport, bool) {
	return nil, true
}

// testAPI — HTTP-сервер с реальными сервисами поверх памяти и временной директории.
type testAPI struct {
	srv     *httptest.Server
	blobDir string
}

type apiOptions struct {
	maxUploadSize int64
	auditor       AuditRunner
	checkers      map[string]ReadinessChecker
}

func newTestAPI(t *testing.T, opts apiOptions) *testAPI {
	t.Helper()

	blobDir := filepath.Join(t.TempDir(), "blobs")
	fs, err := filestore.New(blobDir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	logger := testLogger()
	registry := policy.Default()
	repo := repository.NewMemoryRepository()
	router := service.NewStorageRouter(registry, repo, fs, nil, nil,
		service.RouterOptions{Threshold: 1024}, logger)
	svc := service.NewDocumentService(router, repo,
		service.RetryOptions{Attempts: 1, BaseDelay: time.Millisecond}, logger)

	auditor := opts.auditor
	if auditor == nil {
		auditor = service.NewAuditService(router, repo, 0, logger)
	}

	api := NewAPIHandler(
		NewDocumentsHandler(svc, opts.maxUploadSize),
		NewSystemHandler(registry),
		NewMaintenanceHandler(auditor),
		NewHealthHandler(map[string]string{"blob_dir": blobDir}, opts.checkers),
		server.NewMetricsHandler(),
	)

	ts := httptest.NewServer(server.NewRouter(logger, api))
	t.Cleanup(ts.Close)
	return &testAPI{srv: ts, blobDir: blobDir}
}

// multipartBody строит multipart-форму с файлом и заданным Content-Type части.
func multipartBody(t *testing.T, name, contentType, documentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("ошибка CreatePart: %v", err)
	}
	_, _ = part.Write(data)

	if documentType != "" {
		_ = mw.WriteField("document_type", documentType)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("ошибка закрытия multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func (a *testAPI) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, body)
	if err != nil {
		t.Fatalf("ошибка создания запроса: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := a.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("ошибка запроса %s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (a *testAPI) upload(t *testing.T, method, path, name, contentType, documentType string, data []byte) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, name, contentType, documentType, data)
	return a.do(t, method, path, body, ct)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("ошибка декодирования ответа: %v", err)
	}
	return v
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("статус %d, ожидался %d: %s", resp.StatusCode, want, body)
	}
}

func wantErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	wantStatus(t, resp, status)
	body := decode[struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}](t, resp)
	if body.Error.Code != code {
		t.Errorf("код ошибки %q, ожидался %q (%s)", body.Error.Code, code, body.Error.Message)
	}
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + 7)
	}
	return b
}

func sha(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestDocumentsAPI_Lifecycle(t *testing.T) {
	api := newTestAPI(t, apiOptions{})
	small := payload(200)

	resp := api.upload(t, http.MethodPost, "/api/v1/documents", "Proposal.pdf", "application/pdf", "proposal_capstone1", small)
	wantStatus(t, resp, http.StatusCreated)
	meta := decode[generated.DocumentMetadata](t, resp)

	if meta.StorageMode != generated.Inline {
		t.Errorf("режим %q, ожидался inline", meta.StorageMode)
	}
	if meta.ContentHash != sha(small) || meta.SizeBytes != 200 || meta.FileExtension != ".pdf" {
		t.Errorf("неверные метаданные: %+v", meta)
	}
	if meta.DocumentType == nil || *meta.DocumentType != "proposal_capstone1" {
		t.Errorf("тип документа не сохранён: %v", meta.DocumentType)
	}
	docPath := "/api/v1/documents/" + meta.Id.String()

	// Метаданные
	resp = api.do(t, http.MethodGet, docPath, nil, "")
	wantStatus(t, resp, http.StatusOK)
	if got := decode[generated.DocumentMetadata](t, resp); got.Id != meta.Id {
		t.Errorf("получен документ %s, ожидался %s", got.Id, meta.Id)
	}

	// Скачивание
	resp = api.do(t, http.MethodGet, docPath+"/content", nil, "")
	wantStatus(t, resp, http.StatusOK)
	data, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(data, small) {
		t.Fatalf("скачано %d байт, ожидалось %d", len(data), len(small))
	}
	if resp.Header.Get("X-Content-SHA256") != sha(small) {
		t.Errorf("неверный X-Content-SHA256: %s", resp.Header.Get("X-Content-SHA256"))
	}
	if resp.Header.Get("Content-Type") != "application/pdf" {
		t.Errorf("неверный Content-Type: %s", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "Proposal.pdf") {
		t.Errorf("неверный Content-Disposition: %s", resp.Header.Get("Content-Disposition"))
	}
	if resp.Header.Get("X-Integrity-Warning") != "" {
		t.Errorf("неожиданное предупреждение целостности")
	}

	// Замена на файл выше порога: документ переходит в blob, id сохраняется
	large := payload(4096)
	resp = api.upload(t, http.MethodPut, docPath+"/content", "v2.pdf", "application/pdf", "proposal_capstone1", large)
	wantStatus(t, resp, http.StatusOK)
	replaced := decode[generated.DocumentMetadata](t, resp)
	if replaced.Id != meta.Id || replaced.StorageMode != generated.Blob || replaced.ContentHash != sha(large) {
		t.Errorf("неверная запись после замены: %+v", replaced)
	}

	resp = api.do(t, http.MethodGet, docPath+"/content", nil, "")
	wantStatus(t, resp, http.StatusOK)
	data, _ = io.ReadAll(resp.Body)
	if !bytes.Equal(data, large) {
		t.Fatalf("после замены скачано %d байт, ожидалось %d", len(data), len(large))
	}

	// Повторный запрос с ETag
	req, _ := http.NewRequest(http.MethodGet, api.srv.URL+docPath+"/content", nil)
	req.Header.Set("If-None-Match", `"`+sha(large)+`"`)
	cached, err := api.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("ошибка запроса: %v", err)
	}
	_ = cached.Body.Close()
	if cached.StatusCode != http.StatusNotModified {
		t.Errorf("статус %d, ожидался 304", cached.StatusCode)
	}

	// Удаление
	resp = api.do(t, http.MethodDelete, docPath, nil, "")
	wantStatus(t, resp, http.StatusNoContent)

	wantErrorCode(t, api.do(t, http.MethodGet, docPath, nil, ""), http.StatusGone, "DOCUMENT_DELETED")
	wantErrorCode(t, api.do(t, http.MethodGet, docPath+"/content", nil, ""), http.StatusGone, "DOCUMENT_DELETED")
}

func TestDocumentsAPI_UploadRejections(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	tests := []struct {
		name         string
		file         string
		contentType  string
		documentType string
		data         []byte
		status       int
		code         string
	}{
		{"двойное расширение", "report.exe.pdf", "application/pdf", "proposal_capstone1", payload(10), http.StatusBadRequest, "DANGEROUS_EXTENSION"},
		{"расширение не совпадает", "a.docx", "application/pdf", "proposal_capstone1", payload(10), http.StatusBadRequest, "EXTENSION_MISMATCH"},
		{"MIME не разрешён", "demo.mp4", "video/mp4", "proposal_capstone1", payload(10), http.StatusBadRequest, "DISALLOWED_MIME_TYPE"},
		{"неизвестный тип", "a.pdf", "application/pdf", "nope", payload(10), http.StatusBadRequest, "UNKNOWN_DOCUMENT_TYPE"},
		{"пустой файл", "a.pdf", "application/pdf", "", nil, http.StatusBadRequest, "EMPTY_FILE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.upload(t, http.MethodPost, "/api/v1/documents", tt.file, tt.contentType, tt.documentType, tt.data)
			wantErrorCode(t, resp, tt.status, tt.code)
		})
	}

	entries, _ := os.ReadDir(api.blobDir)
	if len(entries) != 0 {
		t.Errorf("отклонённые загрузки оставили %d файлов", len(entries))
	}
}

func TestDocumentsAPI_MissingFileField(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("document_type", "proposal_capstone1")
	_ = mw.Close()

	resp := api.do(t, http.MethodPost, "/api/v1/documents", &buf, mw.FormDataContentType())
	wantErrorCode(t, resp, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestDocumentsAPI_BodyLimit(t *testing.T) {
	api := newTestAPI(t, apiOptions{maxUploadSize: 1024})

	resp := api.upload(t, http.MethodPost, "/api/v1/documents", "a.pdf", "application/pdf", "", payload(4096))
	wantErrorCode(t, resp, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE")
}

func TestDocumentsAPI_InvalidAndUnknownID(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	wantErrorCode(t, api.do(t, http.MethodGet, "/api/v1/documents/not-a-uuid", nil, ""),
		http.StatusBadRequest, "VALIDATION_ERROR")
	wantErrorCode(t, api.do(t, http.MethodGet, "/api/v1/documents/7c9e6679-7425-40de-944b-e07fc1f90ae7", nil, ""),
		http.StatusNotFound, "DOCUMENT_NOT_FOUND")
	wantErrorCode(t, api.do(t, http.MethodDelete, "/api/v1/documents/7c9e6679-7425-40de-944b-e07fc1f90ae7", nil, ""),
		http.StatusNotFound, "DOCUMENT_NOT_FOUND")
}

func TestDocumentsAPI_List(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	for i, size := range []int{100, 200, 4096} {
		resp := api.upload(t, http.MethodPost, "/api/v1/documents", fmt.Sprintf("doc%d.pdf", i), "application/pdf", "", payload(size))
		wantStatus(t, resp, http.StatusCreated)
	}

	resp := api.do(t, http.MethodGet, "/api/v1/documents", nil, "")
	wantStatus(t, resp, http.StatusOK)
	all := decode[generated.DocumentListResponse](t, resp)
	if len(all.Items) != 3 || all.HasMore || all.Limit != defaultListLimit {
		t.Errorf("неверный список: items=%d has_more=%v limit=%d", len(all.Items), all.HasMore, all.Limit)
	}

	resp = api.do(t, http.MethodGet, "/api/v1/documents?limit=2", nil, "")
	wantStatus(t, resp, http.StatusOK)
	page := decode[generated.DocumentListResponse](t, resp)
	if len(page.Items) != 2 || !page.HasMore {
		t.Errorf("первая страница: items=%d has_more=%v", len(page.Items), page.HasMore)
	}

	resp = api.do(t, http.MethodGet, "/api/v1/documents?storage_mode=blob", nil, "")
	wantStatus(t, resp, http.StatusOK)
	blobs := decode[generated.DocumentListResponse](t, resp)
	if len(blobs.Items) != 1 || blobs.Items[0].StorageMode != generated.Blob {
		t.Errorf("фильтр blob: %+v", blobs.Items)
	}

	wantErrorCode(t, api.do(t, http.MethodGet, "/api/v1/documents?storage_mode=tape", nil, ""),
		http.StatusBadRequest, "VALIDATION_ERROR")
	wantErrorCode(t, api.do(t, http.MethodGet, "/api/v1/documents?limit=0", nil, ""),
		http.StatusBadRequest, "VALIDATION_ERROR")
	wantErrorCode(t, api.do(t, http.MethodGet, "/api/v1/documents?limit=abc", nil, ""),
		http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestSystemAPI(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	resp := api.do(t, http.MethodGet, "/api/v1/policies", nil, "")
	wantStatus(t, resp, http.StatusOK)
	policies := decode[[]generated.DocumentPolicy](t, resp)

	found := false
	for _, p := range policies {
		if p.DocumentType == "proposal_capstone1" {
			found = true
			if p.MaxSizeBytes != 20*1024*1024 {
				t.Errorf("потолок proposal_capstone1 = %d", p.MaxSizeBytes)
			}
		}
	}
	if !found {
		t.Errorf("политика proposal_capstone1 отсутствует")
	}

	resp = api.do(t, http.MethodGet, "/api/v1/openapi.yaml", nil, "")
	wantStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, generated.SpecYAML) {
		t.Errorf("отдан не встроенный контракт API")
	}

	resp = api.do(t, http.MethodGet, "/metrics", nil, "")
	wantStatus(t, resp, http.StatusOK)
	metrics, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(metrics), "ds_http_requests_total") {
		t.Errorf("HTTP-метрики не зарегистрированы")
	}
}

func TestMaintenanceAPI_Audit(t *testing.T) {
	api := newTestAPI(t, apiOptions{})

	for _, size := range []int{100, 4096} {
		resp := api.upload(t, http.MethodPost, "/api/v1/documents", "a.pdf", "application/pdf", "", payload(size))
		wantStatus(t, resp, http.StatusCreated)
	}

	resp := api.do(t, http.MethodPost, "/api/v1/maintenance/audit", nil, "")
	wantStatus(t, resp, http.StatusOK)
	report := decode[generated.AuditReport](t, resp)
	if report.DocumentsChecked != 2 || len(report.Issues) != 0 {
		t.Errorf("неверный отчёт: checked=%d issues=%d", report.DocumentsChecked, len(report.Issues))
	}
	if report.Summary.Ok == nil || *report.Summary.Ok != 2 {
		t.Errorf("неверная сводка: %+v", report.Summary)
	}

	busy := newTestAPI(t, apiOptions{auditor: busyAuditor{}})
	wantErrorCode(t, busy.do(t, http.MethodPost, "/api/v1/maintenance/audit", nil, ""),
		http.StatusConflict, "AUDIT_IN_PROGRESS")
}

func TestHealthAPI(t *testing.T) {
	t.Run("live", func(t *testing.T) {
		api := newTestAPI(t, apiOptions{checkers: map[string]ReadinessChecker{"postgres": fakeChecker{"fail"}}})
		resp := api.do(t, http.MethodGet, "/health/live", nil, "")
		wantStatus(t, resp, http.StatusOK)
		if h := decode[generated.HealthStatus](t, resp); h.Service != serviceName {
			t.Errorf("service = %q", h.Service)
		}
	})

	t.Run("ready", func(t *testing.T) {
		api := newTestAPI(t, apiOptions{checkers: map[string]ReadinessChecker{"postgres": fakeChecker{"ok"}}})
		resp := api.do(t, http.MethodGet, "/health/ready", nil, "")
		wantStatus(t, resp, http.StatusOK)
		h := decode[generated.HealthStatus](t, resp)
		if h.Status != generated.Ok || h.Checks == nil {
			t.Errorf("неверный ответ: %+v", h)
		}
	})

	t.Run("зависимость недоступна", func(t *testing.T) {
		api := newTestAPI(t, apiOptions{checkers: map[string]ReadinessChecker{
			"postgres": fakeChecker{"ok"},
			"s3":       fakeChecker{"fail"},
		}})
		resp := api.do(t, http.MethodGet, "/health/ready", nil, "")
		wantStatus(t, resp, http.StatusServiceUnavailable)
		if h := decode[generated.HealthStatus](t, resp); h.Status != generated.Fail {
			t.Errorf("статус %q, ожидался fail", h.Status)
		}
	})

	t.Run("директория недоступна", func(t *testing.T) {
		api := newTestAPI(t, apiOptions{})
		if err := os.RemoveAll(api.blobDir); err != nil {
			t.Fatalf("ошибка удаления: %v", err)
		}
		resp := api.do(t, http.MethodGet, "/health/ready", nil, "")
		wantStatus(t, resp, http.StatusServiceUnavailable)
	})
}
