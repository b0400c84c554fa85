package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/noticewatch/internal/pipeline"
)

type fakeStatus struct {
	sum pipeline.Summary
	ok  bool
}

func (f fakeStatus) LastRun() (pipeline.Summary, bool) {
	return f.sum, f.ok
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(fakeStatus{}, zap.NewNop()), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_ReadyzWaitsForFirstRun(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(fakeStatus{}, nil), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(t, NewServer(fakeStatus{ok: true}, nil), "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_LastRun(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(fakeStatus{}, nil), "/v1/runs/last")
	require.Equal(t, http.StatusNotFound, rec.Code)

	sum := pipeline.Summary{
		RunID:    "run-7",
		Status:   pipeline.StatusSuccess,
		Started:  time.Date(2025, time.March, 4, 9, 0, 0, 0, time.UTC),
		Fetched:  4,
		Accepted: 2,
		Saved:    true,
		Notified: true,
	}
	rec = serve(t, NewServer(fakeStatus{sum: sum, ok: true}, nil), "/v1/runs/last")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got pipeline.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-7", got.RunID)
	assert.Equal(t, 2, got.Accepted)
	assert.True(t, got.Saved)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s := NewServer(fakeStatus{}, nil)
	serve(t, s, "/healthz")
	rec := serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDMiddlewareKeepsIncomingID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	NewServer(fakeStatus{}, nil).Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	s := NewServer(fakeStatus{}, zap.New(core))
	handler := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explode", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}
