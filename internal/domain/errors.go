package domain

import (
	"errors"
	"fmt"
	"time"
)

// Common domain errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// Configuration errors
	ErrMissingCredentials = errors.New("missing username and password")

	// Catalog errors
	ErrUnsupportedContent = errors.New("content is not supported")
	ErrEmptyAssetURL      = errors.New("section detail has no asset url")

	// Download errors
	ErrRetriesExhausted = errors.New("retry budget exhausted")
)

// ConfigError is a fatal pre-flight configuration problem
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// AuthError means the remote service rejected the credentials
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransientError represents a status or network failure that may be retried.
// RetryAfter is set when the server asked for a specific delay.
type TransientError struct {
	StatusCode int
	Code       string
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("transient status %d", e.StatusCode)
	case e.Err != nil && e.Code != "":
		return fmt.Sprintf("transient %s: %v", e.Code, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	}
	return "transient error"
}

// Unwrap returns the underlying error
func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient returns true if the error should be retried
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// GetRetryAfter returns the server-provided delay if any
func GetRetryAfter(err error) (time.Duration, bool) {
	var te *TransientError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter, true
	}
	return 0, false
}

// HTTPStatusError is a non-retryable HTTP status
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.StatusCode, e.URL)
}

// RetryError wraps the last failure of a task that used up its attempts
type RetryError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

// Unwrap returns both the exhaustion marker and the last cause
func (e *RetryError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// UnsupportedContentError is raised for sections outside {text, video}
type UnsupportedContentError struct {
	SectionID   ID
	ContentType string
}

func (e *UnsupportedContentError) Error() string {
	return fmt.Sprintf("section %s: content type %q is not supported", e.SectionID, e.ContentType)
}

// Unwrap returns ErrUnsupportedContent
func (e *UnsupportedContentError) Unwrap() error {
	return ErrUnsupportedContent
}

// CookieApplyError means the session jar rejected a cookie
type CookieApplyError struct {
	Name string
	Err  error
}

func (e *CookieApplyError) Error() string {
	return fmt.Sprintf("failed to apply cookie %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error
func (e *CookieApplyError) Unwrap() error {
	return e.Err
}

// SummaryFetchError is the only failure isolated to its product
type SummaryFetchError struct {
	ProductID string
	Err       error
}

func (e *SummaryFetchError) Error() string {
	return fmt.Sprintf("failed to fetch summary for product %s: %v", e.ProductID, e.Err)
}

// Unwrap returns the underlying error
func (e *SummaryFetchError) Unwrap() error {
	return e.Err
}

// IsSummaryFetch returns true for summary fetch failures
func IsSummaryFetch(err error) bool {
	var se *SummaryFetchError
	return errors.As(err, &se)
}

// RenderError is a failure of the document rendering step
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *RenderError) Unwrap() error {
	return e.Err
}

// SectionError locates a failure inside a product's table of contents
type SectionError struct {
	ProductID string
	ChapterID ID
	SectionID ID
	Err       error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("product %s chapter %s section %s: %v", e.ProductID, e.ChapterID, e.SectionID, e.Err)
}

// Unwrap returns the underlying error
func (e *SectionError) Unwrap() error {
	return e.Err
}
