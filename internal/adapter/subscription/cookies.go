package subscription

import (
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
	"github.com/vertextoedge/subscription-archiver/internal/port"
)

var (
	errCookieDomain       = errors.New("cookie not in this host's domain")
	errCookiePublicSuffix = errors.New("cookie domain is a public suffix")
)

// CookieJar is the single session cookie store of a run.
// It is only written at the per-section merge point and never reset.
type CookieJar struct {
	jar    *cookiejar.Jar
	merged int
}

// Ensure CookieJar implements port.SessionJar
var _ port.SessionJar = (*CookieJar)(nil)

// NewCookieJar creates an empty jar
func NewCookieJar() (*CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &CookieJar{jar: jar}, nil
}

// Merge applies cookies in order; the first rejected cookie aborts the merge
func (j *CookieJar) Merge(site *url.URL, cookies []*http.Cookie) error {
	for _, c := range cookies {
		if err := j.apply(site, c); err != nil {
			return err
		}
	}
	return nil
}

func (j *CookieJar) apply(site *url.URL, c *http.Cookie) error {
	if err := c.Valid(); err != nil {
		return &domain.CookieApplyError{Name: c.Name, Err: err}
	}
	if c.Domain != "" {
		if err := checkDomain(site.Hostname(), c.Domain); err != nil {
			return &domain.CookieApplyError{Name: c.Name, Err: err}
		}
	}
	j.jar.SetCookies(site, []*http.Cookie{c})
	j.merged++
	return nil
}

// checkDomain rejects cookies whose Domain attribute the host may not set
func checkDomain(host, domainAttr string) error {
	host = strings.ToLower(host)
	d := strings.ToLower(strings.TrimPrefix(domainAttr, "."))

	if host != d && !strings.HasSuffix(host, "."+d) {
		return errCookieDomain
	}
	if suffix, _ := publicsuffix.PublicSuffix(d); suffix == d && host != d {
		return errCookiePublicSuffix
	}
	return nil
}

// Cookies returns the cookies to send to u
func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// Merged returns how many cookies have been applied during the run
func (j *CookieJar) Merged() int {
	return j.merged
}
