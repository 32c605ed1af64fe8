package subscription

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
	"github.com/vertextoedge/subscription-archiver/internal/port"
)

// Policy controls how requests are retried.
// The delay before each retry is the computed exponential backoff, or the
// server-provided Retry-After when present, without jitter.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultPolicy returns the default retry policy
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     50,
		InitialInterval: time.Second,
		Multiplier:      2,
		MaxInterval:     10 * time.Minute,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0
	return b
}

// Status codes that are retried
var retryStatusCodes = map[int]bool{
	403: true, 404: true, 408: true, 413: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
	520: true, 521: true, 522: true, 524: true,
}

// Status codes whose Retry-After header replaces the computed delay
var retryAfterStatusCodes = map[int]bool{
	413: true, 429: true, 503: true,
}

// Only idempotent verbs are retried
var retryMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPut:     true,
	http.MethodHead:    true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// classifyStatus maps a response status to nil, a TransientError or an HTTPStatusError
func classifyStatus(rawURL string, resp *http.Response, now time.Time) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	if retryStatusCodes[code] {
		te := &domain.TransientError{StatusCode: code}
		if retryAfterStatusCodes[code] {
			te.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), now)
		}
		return te
	}
	return &domain.HTTPStatusError{URL: rawURL, StatusCode: code}
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// classifyNetworkError wraps retryable network failures in a TransientError
func classifyNetworkError(err error) error {
	if err == nil {
		return nil
	}
	if code := networkCode(err); code != "" {
		return &domain.TransientError{Code: code, Err: err}
	}
	return err
}

func networkCode(err error) string {
	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return "ECONNRESET"
	case errors.Is(err, syscall.EADDRINUSE):
		return "EADDRINUSE"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, syscall.EPIPE):
		return "EPIPE"
	case errors.Is(err, syscall.ENETUNREACH):
		return "ENETUNREACH"
	case errors.Is(err, syscall.ETIMEDOUT):
		return "ETIMEDOUT"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTemporary || dnsErr.IsTimeout {
			return "EAI_AGAIN"
		}
		return "ENOTFOUND"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}
	return ""
}

// request describes one HTTP exchange executed under the retry policy
type request struct {
	method string
	url    string
	header http.Header
	jar    port.SessionJar
	// handle consumes a successful response; it runs once per attempt
	handle func(resp *http.Response) ([]byte, error)
}

// retrier executes requests with the retry policy
type retrier struct {
	httpClient *http.Client
	policy     Policy
	logger     *zap.Logger
}

func newRetrier(httpClient *http.Client, policy Policy, logger *zap.Logger) *retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retrier{
		httpClient: httpClient,
		policy:     policy.withDefaults(),
		logger:     logger,
	}
}

// do runs the request until it succeeds, fails permanently or exhausts the attempt budget
func (r *retrier) do(ctx context.Context, req request) ([]byte, error) {
	if req.method == "" {
		req.method = http.MethodGet
	}

	attempts := 0
	operation := func() ([]byte, error) {
		attempts++
		body, err := r.attempt(ctx, req)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil || !retryMethods[req.method] || !domain.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		if delay, ok := domain.GetRetryAfter(err); ok {
			return nil, errors.Join(err, &backoff.RetryAfterError{Duration: delay})
		}
		return nil, err
	}

	notify := func(err error, delay time.Duration) {
		r.logger.Warn("retrying request",
			zap.String("url", req.url),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.policy.newBackOff()),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Err
		}
		if domain.IsTransient(err) {
			return nil, &domain.RetryError{URL: req.url, Attempts: attempts, Err: err}
		}
		return nil, err
	}
	return body, nil
}

func (r *retrier) attempt(ctx context.Context, req request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range req.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.jar != nil {
		for _, c := range req.jar.Cookies(httpReq.URL) {
			httpReq.AddCookie(c)
		}
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyNetworkError(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(req.url, resp, time.Now()); err != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, err
	}

	if req.handle == nil {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, classifyNetworkError(err)
		}
		return body, nil
	}

	body, err := req.handle(resp)
	if err != nil {
		return nil, classifyNetworkError(err)
	}
	return body, nil
}
