package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/subscription-archiver/internal/adapter/filesystem"
	"github.com/vertextoedge/subscription-archiver/internal/adapter/subscription"
	"github.com/vertextoedge/subscription-archiver/internal/domain"
	"github.com/vertextoedge/subscription-archiver/internal/port"
	"github.com/vertextoedge/subscription-archiver/internal/service/document"
)

const testToken = "test-access-token"

// sectionFixture is the detail response of one section.
// Asset paths are relative to the fake server.
type sectionFixture struct {
	asset    string
	captions []string
	cookie   *http.Cookie
}

type assetRequest struct {
	path    string
	cookies []string
	auth    string
	rng     string
}

// fakeService stands in for the subscription API and its CDN
type fakeService struct {
	srv *httptest.Server

	mu            sync.Mutex
	summaries     map[string]string
	sections      map[string]sectionFixture
	assets        map[string]string
	summaryCalls  map[string]int
	detailCalls   []string
	assetRequests []assetRequest
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	fs := &fakeService{
		summaries:    map[string]string{},
		sections:     map[string]sectionFixture{},
		assets:       map[string]string{},
		summaryCalls: map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth-v1/users/tokens", fs.handleToken)
	mux.HandleFunc("GET /api/products/{id}/summary", fs.handleSummary)
	mux.HandleFunc("GET /api/products/{id}/{chapter}/{section}", fs.handleSection)
	mux.HandleFunc("GET /assets/", fs.handleAsset)

	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeService) addSummary(id, summary string) {
	fs.summaries[id] = summary
}

func (fs *fakeService) addSection(productID, chapterID, sectionID string, fixture sectionFixture) {
	fs.sections[productID+"/"+chapterID+"/"+sectionID] = fixture
}

func (fs *fakeService) addAsset(path, body string) {
	fs.assets[path] = body
}

func (fs *fakeService) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	fmt.Fprintf(w, `{"data":{"access":%q,"refresh":"refresh-token"}}`, testToken)
}

func (fs *fakeService) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	fs.mu.Lock()
	fs.summaryCalls[id]++
	summary, ok := fs.summaries[id]
	fs.mu.Unlock()

	if !ok {
		w.Write([]byte(`{"data":null}`))
		return
	}
	fmt.Fprintf(w, `{"data":%s}`, summary)
}

func (fs *fakeService) handleSection(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("id") + "/" + r.PathValue("chapter") + "/" + r.PathValue("section")

	fs.mu.Lock()
	fs.detailCalls = append(fs.detailCalls, key)
	fixture, ok := fs.sections[key]
	fs.mu.Unlock()

	if !ok || r.Header.Get("Authorization") != "Bearer "+testToken {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if fixture.cookie != nil {
		http.SetCookie(w, fixture.cookie)
	}

	base := "http://" + r.Host
	captions := make([]domain.Caption, 0, len(fixture.captions))
	for _, c := range fixture.captions {
		captions = append(captions, domain.Caption{Location: base + c})
	}
	json.NewEncoder(w).Encode(map[string]any{
		"data":     base + fixture.asset,
		"captions": captions,
	})
}

func (fs *fakeService) handleAsset(w http.ResponseWriter, r *http.Request) {
	var names []string
	for _, c := range r.Cookies() {
		names = append(names, c.Name)
	}
	sort.Strings(names)

	fs.mu.Lock()
	fs.assetRequests = append(fs.assetRequests, assetRequest{
		path:    r.URL.Path,
		cookies: names,
		auth:    r.Header.Get("Authorization"),
		rng:     r.Header.Get("Range"),
	})
	body, ok := fs.assets[r.URL.Path]
	fs.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Write([]byte(body))
}

func (fs *fakeService) requestsFor(path string) []assetRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []assetRequest
	for _, r := range fs.assetRequests {
		if r.path == path {
			out = append(out, r)
		}
	}
	return out
}

func (fs *fakeService) summaryCount(id string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.summaryCalls[id]
}

func (fs *fakeService) detailCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.detailCalls)
}

// fakeRenderer writes a placeholder PDF and records its calls
type fakeRenderer struct {
	mu    sync.Mutex
	calls []renderCall
	err   error
}

type renderCall struct {
	html string
	path string
	opts port.RenderOptions
}

func (r *fakeRenderer) Render(ctx context.Context, html, outputPath string, opts port.RenderOptions) error {
	r.mu.Lock()
	r.calls = append(r.calls, renderCall{html: html, path: outputPath, opts: opts})
	r.mu.Unlock()
	if r.err != nil {
		return &domain.RenderError{Path: outputPath, Err: r.err}
	}
	return os.WriteFile(outputPath, []byte("%PDF-fake"), 0644)
}

func (r *fakeRenderer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type testEnv struct {
	service  *fakeService
	archiver *Archiver
	jar      *subscription.CookieJar
	archive  *filesystem.Manager
	renderer *fakeRenderer
}

func testPolicy() subscription.Policy {
	return subscription.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		Multiplier:      1,
		MaxInterval:     time.Millisecond,
	}
}

func newTestEnv(t *testing.T, fs *fakeService, cfg *Config, ledger port.Ledger) *testEnv {
	t.Helper()

	jar, err := subscription.NewCookieJar()
	require.NoError(t, err)

	// Separate clients: catalog requests must carry the token Login obtained
	clientConfig := &subscription.ClientConfig{
		AuthURL:    fs.srv.URL,
		BaseURL:    fs.srv.URL,
		Policy:     testPolicy(),
		HTTPClient: fs.srv.Client(),
	}
	auth := subscription.NewClient(clientConfig, nil, zap.NewNop())
	catalog := subscription.NewClient(clientConfig, jar, zap.NewNop())
	fetcher := subscription.NewFetcher(fs.srv.Client(), testPolicy(), jar, zap.NewNop())

	archive, err := filesystem.NewManager(filepath.Join(t.TempDir(), "downloads"))
	require.NoError(t, err)

	renderer := &fakeRenderer{}
	a := New(cfg, Deps{
		Auth:      auth,
		Catalog:   catalog,
		Jar:       jar,
		Fetcher:   fetcher,
		Archive:   archive,
		Assembler: document.NewAssembler("<html>{title}{body}</html>", ""),
		Renderer:  renderer,
		Ledger:    ledger,
	}, zap.NewNop())

	require.NoError(t, a.Login(context.Background(), domain.Credentials{Username: "user", Password: "secret"}))

	return &testEnv{service: fs, archiver: a, jar: jar, archive: archive, renderer: renderer}
}
