package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testLimiters() map[string]*rate.Limiter {
	// httptest hosts are not in the default table; keep tests unthrottled.
	return map[string]*rate.Limiter{}
}

func TestDownload_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fillaridata-test", r.Header.Get("User-Agent"))
		w.Write([]byte("payload")) //nolint:errcheck
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{UserAgent: "fillaridata-test", RateLimiters: testLimiters()})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestDownload_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{RateLimiters: testLimiters()})
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDoWithRetry_NoBackoffAfterFinalAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 1, RateLimiters: testLimiters()})

	start := time.Now()
	_, err := f.Download(context.Background(), srv.URL)
	elapsed := time.Since(start)

	require.Error(t, err)
	// A single allowed attempt must fail immediately, not sleep a backoff
	// it will never use.
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestNewHTTPFetcher_NormalizesOptions(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{MaxRetries: -3})
	assert.Equal(t, 3, f.opts.MaxRetries, "non-positive retry counts fall back to the default")
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, "fillaridata/1.0", f.opts.UserAgent)
}

func TestDoWithRetry_RecoversFromTransientError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 2, RateLimiters: testLimiters()})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, 2, calls)
}
