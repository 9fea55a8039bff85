package httpstatus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/macrorun/internal/state"
)

func newTestServer() *Server {
	mgr := state.New("demo.iim", 5, 1, 10)
	mgr.Start()
	return New(mgr)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleState(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "total_lines")
}

func TestHandleSnapshots_EmptyByDefault(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/snapshots", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())
}

func TestHandleStopwatchCSV(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/stopwatch.csv", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
}
