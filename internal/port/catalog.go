package port

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
)

// Authenticator exchanges credentials for tokens once per run
type Authenticator interface {
	Authenticate(ctx context.Context, creds domain.Credentials) (domain.Tokens, error)
}

// CatalogClient defines the metadata endpoints of the subscription service
type CatalogClient interface {
	// Summary returns the product summary, including its table of contents.
	// token is the access token returned by Authenticator.
	Summary(ctx context.Context, token, productID string) (*domain.ProductSummary, error)

	// SectionDetail returns the section's assets and the cookies set by the response
	// Returns: descriptor, Set-Cookie cookies in header order, the site URL to merge them against, error
	SectionDetail(ctx context.Context, token, productID string, chapterID, sectionID domain.ID) (*domain.AssetDescriptor, []*http.Cookie, *url.URL, error)
}

// SessionJar is the run-wide cookie store
type SessionJar interface {
	// Merge applies cookies one at a time, in order, stopping at the first rejection
	Merge(site *url.URL, cookies []*http.Cookie) error

	// Cookies returns the cookies to send to u
	Cookies(u *url.URL) []*http.Cookie

	// Merged returns how many cookies have been applied so far
	Merged() int
}

// AssetFetcher performs one retrying fetch.
// When task.Destination is empty the body is returned, otherwise it is written to disk.
type AssetFetcher interface {
	Fetch(ctx context.Context, task domain.DownloadTask) ([]byte, error)
}
