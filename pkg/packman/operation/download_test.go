package operation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadFile(t *testing.T) {
	t.Parallel()
	body := strings.Repeat("x", 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	f := newFixture(t)
	op, err := New("packman", f.cfg)
	require.NoError(t, err)
	defer op.Close()

	var last float64
	path, err := op.DownloadFile(context.Background(), srv.URL+"/files/Mod-1.2.zip", func(p float64) { last = p })
	require.NoError(t, err)

	assert.Equal(t, body, readFile(t, path))
	assert.True(t, strings.HasSuffix(path, ".zip"))
	assert.Equal(t, path, op.LastPath())
	assert.Contains(t, op.TempPaths(), path)
	assert.Equal(t, 1.0, last)
}

func TestDownloadRetriesTemporaryFailures(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newFixture(t)
	f.cfg.Retries = 3
	op, err := New("packman", f.cfg)
	require.NoError(t, err)
	defer op.Close()

	path, err := op.DownloadFile(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", readFile(t, path))
	assert.Equal(t, int32(2), hits.Load())
}

func TestDownloadDoesNotRetryNotFound(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newFixture(t)
	f.cfg.Retries = 3
	op, err := New("packman", f.cfg)
	require.NoError(t, err)
	defer op.Close()

	_, err = op.DownloadFile(context.Background(), srv.URL, nil)
	var status *HTTPStatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotFound, status.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestURLExt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/a/Mod.zip", ".zip"},
		{"https://example.com/a/Mod.tar.gz?x=1", ".tar.gz"},
		{"https://example.com/download/123", ""},
		{"https://example.com/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, urlExt(tt.url))
		})
	}
}
