package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.True(t, IsConnectionError(errors.New("dial tcp: connection refused")))
	assert.True(t, IsConnectionError(errors.New("lookup example.invalid: no such host")))
	assert.False(t, IsConnectionError(errors.New("bridge: find returned 404")))
}

func newFakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/navigate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	})
	mux.HandleFunc("/find", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "el-1"})
	})
	mux.HandleFunc("/click", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	})
	mux.HandleFunc("/currentUrl", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://example.test"})
	})
	return httptest.NewServer(mux)
}

func portOf(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	parts := strings.Split(srv.URL, ":")
	port, err := strconv.Atoi(parts[len(parts)-1])
	require.NoError(t, err)
	return port
}

func TestHTTPBrowserBridge_NavigateFindClick(t *testing.T) {
	srv := newFakeDaemon(t)
	defer srv.Close()

	b := NewHTTPBrowserBridge(portOf(t, srv))
	ctx := context.Background()

	require.NoError(t, b.Navigate(ctx, "https://example.test"))

	el, err := b.FindElement(ctx, "NAME:q")
	require.NoError(t, err)
	assert.Equal(t, "el-1", el.ID)

	require.NoError(t, b.Click(ctx, el))

	url, err := b.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test", url)
}

func TestHTTPBrowserBridge_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b := NewHTTPBrowserBridge(portOf(t, srv))
	err := b.Navigate(context.Background(), "https://example.test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestIsServerRunning(t *testing.T) {
	srv := newFakeDaemon(t)
	defer srv.Close()
	assert.True(t, IsServerRunning(portOf(t, srv)))
	assert.False(t, IsServerRunning(1)) // unlikely to have anything bound on port 1
}
