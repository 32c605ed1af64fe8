package domain

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// DownloadTask is one resolved asset fetch.
// An empty Destination means the body is buffered instead of written to disk.
type DownloadTask struct {
	URL         string
	Destination string
	Header      http.Header
	Caption     bool
}

// Buffered returns true if the task collects its body in memory
func (t *DownloadTask) Buffered() bool {
	return t.Destination == ""
}

// IsHTMLAsset classifies an asset URL by its path extension
func IsHTMLAsset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Path, ".html")
}

// AssetFileName returns the base name of the asset URL's path
func AssetFileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "", ErrInvalidInput
	}
	return name, nil
}

// TextFragment is the HTML body of a text section
type TextFragment string

// TextFragments collects the fragments of a single product in traversal order.
// A new collection is created for every product.
type TextFragments struct {
	items []TextFragment
}

// NewTextFragments returns an empty collection
func NewTextFragments() *TextFragments {
	return &TextFragments{}
}

// Add appends a fragment
func (f *TextFragments) Add(fragment TextFragment) {
	f.items = append(f.items, fragment)
}

// Len returns the number of collected fragments
func (f *TextFragments) Len() int {
	return len(f.items)
}

// Items returns the fragments in collection order
func (f *TextFragments) Items() []TextFragment {
	return f.items
}
