package subscription

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
)

// fastPolicy keeps the full attempt budget but waits a millisecond between attempts
func fastPolicy() Policy {
	return Policy{
		MaxAttempts:     50,
		InitialInterval: time.Millisecond,
		Multiplier:      1,
		MaxInterval:     time.Millisecond,
	}
}

// flakyServer fails the first `failures` requests with status, then serves body
func flakyServer(t *testing.T, failures int32, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failures {
			w.WriteHeader(status)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFetcher_SucceedsOnLastAttempt(t *testing.T) {
	srv, calls := flakyServer(t, 49, http.StatusServiceUnavailable, "<p>hello</p>")
	f := NewFetcher(srv.Client(), fastPolicy(), nil, zap.NewNop())

	body, err := f.Fetch(context.Background(), domain.DownloadTask{URL: srv.URL + "/section.html"})

	require.NoError(t, err)
	assert.Equal(t, "<p>hello</p>", string(body))
	assert.Equal(t, int32(50), atomic.LoadInt32(calls))
}

func TestFetcher_ExhaustsAttemptBudget(t *testing.T) {
	srv, calls := flakyServer(t, 50, http.StatusBadGateway, "never")
	f := NewFetcher(srv.Client(), fastPolicy(), nil, zap.NewNop())

	_, err := f.Fetch(context.Background(), domain.DownloadTask{URL: srv.URL + "/video.mp4"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)

	var retryErr *domain.RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 50, retryErr.Attempts)

	var transient *domain.TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, http.StatusBadGateway, transient.StatusCode)
	assert.Equal(t, int32(50), atomic.LoadInt32(calls))
}

func TestFetcher_DoesNotRetryPermanentStatus(t *testing.T) {
	srv, calls := flakyServer(t, 100, http.StatusBadRequest, "")
	f := NewFetcher(srv.Client(), fastPolicy(), nil, zap.NewNop())

	_, err := f.Fetch(context.Background(), domain.DownloadTask{URL: srv.URL + "/video.mp4"})

	var statusErr *domain.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.NotErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestFetcher_StreamsToDestination(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assert.Equal(t, "bytes=0-", r.Header.Get("Range"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "video.mp4")
	// A stale partial file from an earlier attempt must be replaced
	require.NoError(t, os.WriteFile(dest, []byte("stale partial content that is longer"), 0644))

	header := http.Header{}
	header.Set("Authorization", "Bearer tok")
	header.Set("Range", "bytes=0-")

	f := NewFetcher(srv.Client(), fastPolicy(), nil, zap.NewNop())
	body, err := f.Fetch(context.Background(), domain.DownloadTask{
		URL:         srv.URL + "/video.mp4",
		Destination: dest,
		Header:      header,
	})

	require.NoError(t, err)
	assert.Nil(t, body)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetcher_RetriesConnectionResetMidBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) > 1 {
			w.Write([]byte("full"))
			return
		}

		// Promise 4000 bytes, send 12, then reset the connection
		conn, buf, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 4000\r\n\r\n")
		buf.WriteString("partial-data")
		require.NoError(t, buf.Flush())
		require.NoError(t, conn.(*net.TCPConn).SetLinger(0))
		conn.Close()
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "video.mp4")
	f := NewFetcher(srv.Client(), fastPolicy(), nil, zap.NewNop())

	_, err := f.Fetch(context.Background(), domain.DownloadTask{
		URL:         srv.URL + "/video.mp4",
		Destination: dest,
	})

	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "full", string(data))
}

func TestFetcher_LogsCaptionTasks(t *testing.T) {
	srv, _ := flakyServer(t, 0, http.StatusOK, "WEBVTT")
	core, logs := observer.New(zap.DebugLevel)
	f := NewFetcher(srv.Client(), fastPolicy(), nil, zap.New(core))

	dir := t.TempDir()
	for _, task := range []domain.DownloadTask{
		{URL: srv.URL + "/v/video.mp4", Destination: filepath.Join(dir, "video.mp4")},
		{URL: srv.URL + "/v/en.vtt", Destination: filepath.Join(dir, "en.vtt"), Caption: true},
	} {
		_, err := f.Fetch(context.Background(), task)
		require.NoError(t, err)
	}

	entries := logs.FilterMessage("asset downloaded").All()
	require.Len(t, entries, 2)
	assert.Equal(t, false, entries[0].ContextMap()["caption"])
	assert.Equal(t, true, entries[1].ContextMap()["caption"])
	assert.Equal(t, filepath.Join(dir, "en.vtt"), entries[1].ContextMap()["destination"])
}

func TestFetcher_SendsSessionCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(c.Value))
	}))
	defer srv.Close()

	jar, err := NewCookieJar()
	require.NoError(t, err)
	site := mustParseURL(t, srv.URL+"/api/products/1/2/3")
	require.NoError(t, jar.Merge(site, []*http.Cookie{{Name: "session", Value: "abc", Path: "/"}}))

	f := NewFetcher(srv.Client(), fastPolicy(), jar, zap.NewNop())
	body, err := f.Fetch(context.Background(), domain.DownloadTask{URL: srv.URL + "/assets/page.html"})

	require.NoError(t, err)
	assert.Equal(t, "abc", string(body))
}

func TestFetcher_StopsOnContextCancel(t *testing.T) {
	srv, _ := flakyServer(t, 1000, http.StatusServiceUnavailable, "")
	policy := Policy{MaxAttempts: 50, InitialInterval: time.Hour, Multiplier: 1, MaxInterval: time.Hour}
	f := NewFetcher(srv.Client(), policy, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, domain.DownloadTask{URL: srv.URL + "/video.mp4"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifyStatus(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		status        int
		retryAfter    string
		wantTransient bool
		wantDelay     time.Duration
	}{
		{name: "ok", status: 200},
		{name: "partial content", status: 206},
		{name: "forbidden is retried", status: 403, wantTransient: true},
		{name: "not found is retried", status: 404, wantTransient: true},
		{name: "cloudflare 522", status: 522, wantTransient: true},
		{name: "cloudflare 523 is not", status: 523},
		{name: "bad request", status: 400},
		{name: "429 with seconds", status: 429, retryAfter: "7", wantTransient: true, wantDelay: 7 * time.Second},
		{name: "503 with date", status: 503, retryAfter: "Mon, 01 Jan 2024 12:00:30 GMT", wantTransient: true, wantDelay: 30 * time.Second},
		{name: "500 ignores retry-after", status: 500, retryAfter: "7", wantTransient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
			if tt.retryAfter != "" {
				resp.Header.Set("Retry-After", tt.retryAfter)
			}

			err := classifyStatus("https://example.com/x", resp, now)
			if tt.status < 300 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, domain.IsTransient(err))
			delay, _ := domain.GetRetryAfter(err)
			assert.Equal(t, tt.wantDelay, delay)
		})
	}
}

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "connection reset", err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}, wantCode: "ECONNRESET"},
		{name: "connection refused", err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, wantCode: "ECONNREFUSED"},
		{name: "broken pipe", err: &net.OpError{Op: "write", Err: syscall.EPIPE}, wantCode: "EPIPE"},
		{name: "network unreachable", err: &net.OpError{Op: "dial", Err: syscall.ENETUNREACH}, wantCode: "ENETUNREACH"},
		{name: "address in use", err: &net.OpError{Op: "dial", Err: syscall.EADDRINUSE}, wantCode: "EADDRINUSE"},
		{name: "dns not found", err: &net.DNSError{Err: "no such host", Name: "x.invalid", IsNotFound: true}, wantCode: "ENOTFOUND"},
		{name: "dns temporary", err: &net.DNSError{Err: "try again", Name: "x", IsTemporary: true}, wantCode: "EAI_AGAIN"},
		{name: "other", err: errors.New("boom"), wantCode: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyNetworkError(tt.err)
			var te *domain.TransientError
			if tt.wantCode == "" {
				assert.False(t, errors.As(err, &te))
				return
			}
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.wantCode, te.Code)
		})
	}
}

func TestPolicy_WithDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, DefaultPolicy(), p)

	p = Policy{MaxAttempts: 3, InitialInterval: time.Second, Multiplier: 2, MaxInterval: time.Millisecond}.withDefaults()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.MaxInterval)
}
