package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Content types a section may carry
const (
	ContentTypeText  = "text"
	ContentTypeVideo = "video"
)

// ProductTypeBooks is the product type whose assets are stored flat
const ProductTypeBooks = "books"

// Credentials identify the subscriber
type Credentials struct {
	Username string
	Password string
}

// Tokens are returned by authentication.
// Refresh is captured but never used during a run.
type Tokens struct {
	Access  string
	Refresh string
}

// ID is a catalog identifier that may be encoded as a JSON string or number
type ID string

// UnmarshalJSON accepts both quoted and bare identifiers
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier as used in URLs
func (id ID) String() string {
	return string(id)
}

// Section is the smallest addressable unit of content
type Section struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	ContentType string `json:"contentType"`
}

// IsSupported reports whether the section's content type can be archived
func (s *Section) IsSupported() bool {
	return s.ContentType == ContentTypeText || s.ContentType == ContentTypeVideo
}

// IsVideo returns true for video sections
func (s *Section) IsVideo() bool {
	return s.ContentType == ContentTypeVideo
}

// Chapter groups sections in catalog order
type Chapter struct {
	ID       ID        `json:"id"`
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// TOC is the table of contents of a product
type TOC struct {
	Chapters []Chapter `json:"chapters"`
}

// ProductSummary describes a product and its table of contents.
// Raw holds the summary exactly as returned by the remote service.
type ProductSummary struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
	TOC   TOC    `json:"toc"`

	Raw json.RawMessage `json:"-"`
}

// IsFlat reports whether section assets land directly in the product directory
func (p *ProductSummary) IsFlat() bool {
	return p.Type == ProductTypeBooks
}

// SectionCount returns the number of sections across all chapters
func (p *ProductSummary) SectionCount() int {
	n := 0
	for _, ch := range p.TOC.Chapters {
		n += len(ch.Sections)
	}
	return n
}

// ParseProductSummary decodes a summary and keeps the raw bytes for persistence
func ParseProductSummary(raw json.RawMessage) (*ProductSummary, error) {
	var summary ProductSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode product summary: %w", err)
	}
	summary.Raw = append(json.RawMessage(nil), raw...)
	return &summary, nil
}

// Caption is a caption asset attached to a section
type Caption struct {
	Location string `json:"location"`
}

// AssetDescriptor lists the assets of one section
type AssetDescriptor struct {
	URL      string    `json:"data"`
	Captions []Caption `json:"captions"`
}
