package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
	"github.com/vertextoedge/subscription-archiver/internal/port"
	"github.com/vertextoedge/subscription-archiver/internal/util/ratelimiter"
)

// Client talks to the subscription service's authentication and catalog endpoints
type Client struct {
	authURL    string
	baseURL    string
	httpClient *http.Client
	retrier    *retrier
	jar        port.SessionJar
	limiter    *ratelimiter.Limiter
	logger     *zap.Logger
}

// Ensure Client implements the catalog ports
var (
	_ port.Authenticator = (*Client)(nil)
	_ port.CatalogClient = (*Client)(nil)
)

// ClientConfig contains client configuration
type ClientConfig struct {
	AuthURL string
	BaseURL string
	Policy  Policy
	// RequestInterval spaces consecutive section detail requests; zero disables it
	RequestInterval time.Duration
	HTTPClient      *http.Client
}

// NewClient creates a new subscription service client.
// jar is read for every section detail request but never written by the client.
func NewClient(cfg *ClientConfig, jar port.SessionJar, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	c := &Client{
		authURL:    strings.TrimRight(cfg.AuthURL, "/"),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		retrier:    newRetrier(httpClient, cfg.Policy, logger),
		jar:        jar,
		logger:     logger,
	}
	if cfg.RequestInterval > 0 {
		c.limiter = ratelimiter.New(cfg.RequestInterval)
		logger.Debug("section detail requests spaced",
			zap.Duration("interval", c.limiter.Interval()))
	}
	return c
}

// NewHTTPClient returns the transport shared by API and asset requests.
// It has no Jar: session cookies are attached and merged explicitly.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   0, // No timeout for streamed downloads
	}
}

func authHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

// Authenticate exchanges credentials for tokens. It is not retried.
func (c *Client) Authenticate(ctx context.Context, creds domain.Credentials) (domain.Tokens, error) {
	payload, err := json.Marshal(tokenRequest{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("failed to encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+tokenPath, bytes.NewReader(payload))
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Tokens{}, &domain.AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Tokens{}, &domain.AuthError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("credentials rejected: %s", strings.TrimSpace(string(msg))),
		}
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return domain.Tokens{}, &domain.AuthError{Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if tokenResp.Data.Access == "" {
		return domain.Tokens{}, &domain.AuthError{Err: errors.New("no access token in response")}
	}

	return domain.Tokens{Access: tokenResp.Data.Access, Refresh: tokenResp.Data.Refresh}, nil
}

// Summary fetches a product summary
func (c *Client) Summary(ctx context.Context, token, productID string) (*domain.ProductSummary, error) {
	urlStr := c.baseURL + fmt.Sprintf(summaryPath, url.PathEscape(productID))

	body, err := c.retrier.do(ctx, request{
		method: http.MethodGet,
		url:    urlStr,
		header: authHeader(token),
	})
	if err != nil {
		return nil, err
	}

	var resp summaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode summary response: %w", err)
	}
	if len(resp.Data) == 0 || bytes.Equal(resp.Data, []byte("null")) {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}

	return domain.ParseProductSummary(resp.Data)
}

// SectionDetail fetches the asset descriptor of a section with the current session cookies.
// The returned URL is the site root, so cookies without a Path attribute apply site-wide.
func (c *Client) SectionDetail(ctx context.Context, token, productID string, chapterID, sectionID domain.ID) (*domain.AssetDescriptor, []*http.Cookie, *url.URL, error) {
	urlStr := c.baseURL + fmt.Sprintf(sectionPath,
		url.PathEscape(productID), url.PathEscape(chapterID.String()), url.PathEscape(sectionID.String()))
	site, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil, nil, nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, nil, err
		}
	}

	var cookies []*http.Cookie
	body, err := c.retrier.do(ctx, request{
		method: http.MethodGet,
		url:    urlStr,
		header: authHeader(token),
		jar:    c.jar,
		handle: func(resp *http.Response) ([]byte, error) {
			cookies = resp.Cookies()
			return io.ReadAll(resp.Body)
		},
	})
	if err != nil {
		return nil, nil, nil, err
	}

	var detail domain.AssetDescriptor
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to decode section detail: %w", err)
	}
	if detail.URL == "" {
		return nil, nil, nil, domain.ErrEmptyAssetURL
	}

	return &detail, cookies, site, nil
}
