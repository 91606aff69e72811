package httpclient

import (
	"errors"
	"net/http"
	"time"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16
	MaxRedirects           = 5
)

// ErrTooManyRedirects is returned when an upstream bounces more than MaxRedirects times.
var ErrTooManyRedirects = errors.New("httpclient: too many redirects")

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: MaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
		},
		CheckRedirect: limitRedirects(MaxRedirects),
	}
}

// Default returns the shared tuned HTTP client for playlist, segment and subscription fetches.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and a copy of Default's transport.
func WithTimeout(timeout time.Duration) *http.Client {
	t, ok := defaultClient.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout, CheckRedirect: limitRedirects(MaxRedirects)}
	}
	return &http.Client{
		Timeout:       timeout,
		Transport:     t.Clone(),
		CheckRedirect: limitRedirects(MaxRedirects),
	}
}

// ForSpider returns a client for candidate mirror downloads: no keep-alive pooling
// (requests send Connection: close anyway) and at most MaxRedirects hops.
// The per-attempt timeout is applied by the caller's context.
func ForSpider() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			DisableKeepAlives: true,
		},
		CheckRedirect: limitRedirects(MaxRedirects),
	}
}

func limitRedirects(n int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= n {
			return ErrTooManyRedirects
		}
		return nil
	}
}
