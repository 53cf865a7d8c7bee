package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eslsoft/dictsync/internal/infrastructure/config"
)

func newTestServer(t *testing.T) (*Server, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	mux := runtime.NewServeMux()
	require.NoError(t, mux.HandlePath(http.MethodGet, "/v1/boom", func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", HTTPPort: 0, GRPCPort: 0}}
	return NewServer(cfg, logger, mux), hook
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"SERVING"}`, rec.Body.String())

	srv.SetServing(false)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAccessLogLevels(t *testing.T) {
	srv, hook := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz?verbose=1", nil)
	req.Header.Set("X-Forwarded-For", " , 10.0.0.7, 10.0.0.8")
	h.ServeHTTP(httptest.NewRecorder(), req)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "10.0.0.7", entry.Data["client_ip"])
	assert.Equal(t, "verbose=1", entry.Data["query"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/boom", nil))
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/missing", nil))
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/types", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&config.Config{Log: config.LogConfig{Level: "debug", Format: "text"}})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	_, err = NewLogger(&config.Config{Log: config.LogConfig{Level: "loud"}})
	assert.Error(t, err)
}

func TestInterceptorLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetOutput(io.Discard)
	InterceptorLogger(logger).Log(t.Context(), logging.LevelWarn, "finished call", "grpc.method", "Check", "grpc.code", "OK")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "Check", entry.Data["grpc.method"])
}
