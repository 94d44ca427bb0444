package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/mediadl/media-dl/internal/config"
	"github.com/mediadl/media-dl/internal/download"
	"github.com/mediadl/media-dl/internal/ratelimit"
	"github.com/mediadl/media-dl/internal/service"
	"github.com/mediadl/media-dl/internal/storage"
)

// fakeInvoker returns a canned outcome, writing the promised file on success.
type fakeInvoker struct {
	storageDir string
	filename   string
	err        error
	calls      int
}

func (f *fakeInvoker) Invoke(_ context.Context, _, serviceName string) (download.Result, error) {
	f.calls++
	if f.err != nil {
		return download.Result{}, f.err
	}
	path := filepath.Join(f.storageDir, f.filename)
	if err := os.WriteFile(path, []byte("media bytes"), 0o600); err != nil {
		return download.Result{}, err
	}
	return download.Result{
		Message:  "Download completed via " + serviceName + ".",
		Filename: f.filename,
	}, nil
}

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.FromEnv()
	cfg.StorageDir = t.TempDir()
	cfg.RateLimit = 100
	cfg.RateWindow = time.Minute
	require.NoError(t, cfg.Validate())
	return cfg
}

func generousLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		GlobalRate:      1000,
		GlobalBurst:     1000,
		PerIPRate:       1000,
		PerIPBurst:      1000,
		CleanupInterval: time.Minute,
	})
}

func newTestServer(t *testing.T, cfg config.AppConfig, inv Invoker) http.Handler {
	t.Helper()
	guard := storage.NewGuard(cfg.StorageDir, config.ExtensionAllowed)
	return New(cfg, service.Default(), inv, guard, generousLimiter()).Handler()
}

func postDownload(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/download", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDownloadSuccess(t *testing.T) {
	cfg := testConfig(t)
	inv := &fakeInvoker{storageDir: cfg.StorageDir, filename: "My_Video-abc123.mp4"}
	h := newTestServer(t, cfg, inv)

	rec := postDownload(t, h, `{"url":"https://youtu.be/abc123"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "Download completed via YouTube.", resp["message"])
	assert.Equal(t, "My_Video-abc123.mp4", resp["filename"])
	assert.Equal(t, "/downloads/My_Video-abc123.mp4", resp["download_url"])
	assert.Equal(t, float64(900), resp["expires_in_seconds"])
}

func TestDownloadMalformedBody(t *testing.T) {
	h := newTestServer(t, testConfig(t), &fakeInvoker{})

	rec := postDownload(t, h, `{"url": not-json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadRejectsNonHTTPURL(t *testing.T) {
	cfg := testConfig(t)
	inv := &fakeInvoker{storageDir: cfg.StorageDir, filename: "x.mp4"}
	h := newTestServer(t, cfg, inv)

	for _, body := range []string{
		`{"url":"ftp://example.com/f"}`,
		`{"url":"file:///etc/passwd"}`,
		`{"url":"not a url"}`,
		`{"url":""}`,
	} {
		rec := postDownload(t, h, body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
	}
	assert.Zero(t, inv.calls, "invoker must not run for invalid URLs")
}

func TestDownloadErrorMapping(t *testing.T) {
	tests := []struct {
		kind download.Kind
		want int
	}{
		{download.KindUnavailable, http.StatusServiceUnavailable},
		{download.KindFailed, http.StatusUnprocessableEntity},
		{download.KindTimeout, http.StatusGatewayTimeout},
		{download.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			cfg := testConfig(t)
			inv := &fakeInvoker{err: &download.Error{Kind: tt.kind, Detail: "detail text"}}
			h := newTestServer(t, cfg, inv)

			rec := postDownload(t, h, `{"url":"https://youtu.be/abc"}`)

			assert.Equal(t, tt.want, rec.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "detail text", resp["detail"])
		})
	}
}

func TestDownloadHTTPRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit = 2
	inv := &fakeInvoker{storageDir: cfg.StorageDir, filename: "x.mp4"}
	h := newTestServer(t, cfg, inv)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := postDownload(t, h, `{"url":"https://youtu.be/abc"}`)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestDownloadAdmissionLimiter(t *testing.T) {
	cfg := testConfig(t)
	inv := &fakeInvoker{storageDir: cfg.StorageDir, filename: "x.mp4"}
	guard := storage.NewGuard(cfg.StorageDir, config.ExtensionAllowed)
	stingy := ratelimit.New(ratelimit.Config{
		GlobalRate:      rate.Limit(0.001),
		GlobalBurst:     1,
		PerIPRate:       1000,
		PerIPBurst:      1000,
		CleanupInterval: time.Minute,
	})
	h := New(cfg, service.Default(), inv, guard, stingy).Handler()

	first := postDownload(t, h, `{"url":"https://youtu.be/abc"}`)
	second := postDownload(t, h, `{"url":"https://youtu.be/abc"}`)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestFetchServesOnceThenDeletes(t *testing.T) {
	cfg := testConfig(t)
	h := newTestServer(t, cfg, &fakeInvoker{})
	path := filepath.Join(cfg.StorageDir, "My_Video-abc123.mp4")
	require.NoError(t, os.WriteFile(path, []byte("media bytes"), 0o600))

	req := httptest.NewRequest(http.MethodGet, "/downloads/My_Video-abc123.mp4", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "media bytes", rec.Body.String())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="My_Video-abc123.mp4"`)
	assert.NoFileExists(t, path, "file must be deleted after transmission")

	// Second retrieval finds nothing.
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/downloads/My_Video-abc123.mp4", nil))
	assert.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestFetchRejectionsDoNotReflectFilename(t *testing.T) {
	cfg := testConfig(t)
	h := newTestServer(t, cfg, &fakeInvoker{})

	tests := []struct {
		name string
		want int
	}{
		{`..%5Cescape.mp4`, http.StatusBadRequest},       // backslash traversal
		{`%252e%252e%252fx.mp4`, http.StatusBadRequest},  // double-encoded ../
		{"notes.txt", http.StatusBadRequest},             // disallowed extension
		{"missing.mp4", http.StatusNotFound},             // not found
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/downloads/"+tt.name, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, tt.want, rec.Code, tt.name)
		assert.NotContains(t, rec.Body.String(), "escape", tt.name)
		assert.NotContains(t, rec.Body.String(), "notes", tt.name)
		assert.NotContains(t, rec.Body.String(), "missing", tt.name)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, testConfig(t), &fakeInvoker{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, testConfig(t), &fakeInvoker{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
