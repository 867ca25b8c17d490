package authsdk

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	CSRFCookieName = "XSRF-TOKEN"
	CSRFHeaderName = "X-CSRF-Token"

	// APIPrefix is where the account routes are mounted.
	APIPrefix = "/api/auth"
)

// SDKClient is a client for the accounts service. It holds a cookie jar, so
// one SDKClient is one browser-like session.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// SkipCSRF stops the client from attaching the CSRF header, so tests can
	// check the server rejects such requests.
	SkipCSRF bool
}

// NewSDKClient creates a new client with an empty cookie jar.
func NewSDKClient(baseURL string) *SDKClient {
	jar, _ := cookiejar.New(nil) // only fails on a non-nil Options with a bad PublicSuffixList

	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
	}
}

// Cookie returns the value of the named cookie the jar would send to the
// service, or "".
func (c *SDKClient) Cookie(name string) string {
	if c.HTTPClient.Jar == nil {
		return ""
	}
	u, err := url.Parse(c.BaseURL + "/")
	if err != nil {
		return ""
	}
	for _, ck := range c.HTTPClient.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}
