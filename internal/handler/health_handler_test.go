package handler_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	resp := do(t, ts.handler, http.MethodGet, "/api/v1/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "ok")
	require.NotEmpty(t, resp.Header().Get("X-Request-Id"))

	resp = do(t, ts.handler, http.MethodGet, "/api/v1/readyz", nil, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"cache":"ok"`)
}

func TestReadyReportsDegradedDependency(t *testing.T) {
	ts := newTestServer(t, serverOptions{readyErr: errors.New("connection refused")})

	resp := do(t, ts.handler, http.MethodGet, "/api/v1/readyz", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Contains(t, resp.Body.String(), "degraded")
	require.Contains(t, resp.Body.String(), "connection refused")
}
