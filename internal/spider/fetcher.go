package spider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/idna"

	"github.com/snapetech/tvboxproxy/internal/httpclient"
	"github.com/snapetech/tvboxproxy/internal/safeurl"
)

const (
	// MinBinarySize is the smallest payload accepted as a spider JAR.
	MinBinarySize = 1000
	// maxBinarySize caps a single download.
	maxBinarySize = 64 << 20
)

var (
	ErrTooSmall           = errors.New("spider: payload too small")
	ErrBadMagic           = errors.New("spider: payload is not a zip archive")
	ErrCandidateExhausted = errors.New("spider: candidate exhausted")
)

var zipMagic = []byte{0x50, 0x4B}

// StatusError is a non-2xx upstream answer. Edge names the Cloudflare header
// that identified a CDN challenge or block, if any.
type StatusError struct {
	URL  string
	Code int
	Edge string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("spider: %s: HTTP %d %s", safeurl.RedactURL(e.URL), e.Code, http.StatusText(e.Code))
	if e.Edge != "" {
		msg += " (cloudflare " + e.Edge + ")"
	}
	return msg
}

// cfHeaders mark a response produced by Cloudflare rather than the mirror itself.
var cfHeaders = []string{"CF-RAY", "CF-Cache-Status", "CF-Request-ID", "CF-Worker"}

// cloudflareMarker returns "<header>=<value>" for the first Cloudflare marker in h.
func cloudflareMarker(h http.Header) string {
	for _, k := range cfHeaders {
		if v := h.Get(k); v != "" {
			return k + "=" + v
		}
	}
	if srv := h.Get("Server"); strings.Contains(strings.ToLower(srv), "cloudflare") {
		return "Server=" + srv
	}
	return ""
}

const (
	uaCurl    = "curl/7.68.0"
	uaDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	uaDeco    = "DecoTV/1.0"
	uaMobile  = "Mozilla/5.0 (Linux; Android 11; SM-G973F) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Mobile Safari/537.36"
)

// Fetcher downloads and validates candidate binaries.
type Fetcher struct {
	Client *http.Client
	// Backoff is multiplied by the 1-based attempt number between attempts.
	Backoff time.Duration
	// Sleep waits d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// MaxBytes rejects larger payloads; maxBinarySize when zero.
	MaxBytes int64
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = httpclient.ForSpider()
	}
	return &Fetcher{Client: client, Backoff: time.Second, Sleep: sleepCtx, MaxBytes: maxBinarySize}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fetch tries rawURL up to retries+1 times, each bounded by timeout. Network errors,
// non-2xx answers, short payloads and non-zip payloads are all retried after
// attempt×Backoff. When every attempt fails the error wraps ErrCandidateExhausted
// and the last cause. A done ctx stops immediately and returns ctx.Err() wrapped.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration, retries int) ([]byte, error) {
	if retries < 0 {
		retries = 0
	}
	var last error
	for attempt := 1; attempt <= retries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("spider: fetch %s: %w", safeurl.RedactURL(rawURL), err)
		}
		b, err := f.fetchOnce(ctx, rawURL, timeout)
		if err == nil {
			err = Validate(b)
		}
		if err == nil {
			return b, nil
		}
		last = err
		log.WithFields(log.Fields{
			"url":     safeurl.RedactURL(rawURL),
			"attempt": fmt.Sprintf("%d/%d", attempt, retries+1),
		}).Warnf("spider: candidate attempt failed: %v", err)
		if attempt <= retries {
			if err := f.Sleep(ctx, time.Duration(attempt)*f.Backoff); err != nil {
				return nil, fmt.Errorf("spider: fetch %s: %w", safeurl.RedactURL(rawURL), err)
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrCandidateExhausted, retries+1, last)
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "close")
	req.Header.Set("User-Agent", userAgentFor(rawURL))
	req.Close = true

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode, Edge: cloudflareMarker(resp.Header)}
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = maxBinarySize
	}
	return httpclient.ReadAllLimit(resp.Body, limit)
}

// Validate checks the minimum size and the zip local-file-header magic.
func Validate(b []byte) error {
	if len(b) < MinBinarySize {
		return fmt.Errorf("%w: %d bytes", ErrTooSmall, len(b))
	}
	if !bytes.HasPrefix(b, zipMagic) {
		return ErrBadMagic
	}
	return nil
}

// userAgentFor picks a User-Agent by host substring. Mirror proxies of the form
// https://proxy.host/https://raw.githubusercontent.com/... are matched on the
// wrapped host too.
func userAgentFor(rawURL string) string {
	hosts := strings.Join(uaHosts(rawURL), " ")
	switch {
	case strings.Contains(hosts, "github"):
		return uaCurl
	case strings.Contains(hosts, "gitee"), strings.Contains(hosts, "gitcode"):
		return uaDesktop
	case strings.Contains(hosts, "jsdelivr"), strings.Contains(hosts, "fastly"):
		return uaDeco
	}
	return uaMobile
}

func uaHosts(rawURL string) []string {
	var hosts []string
	for i := 0; i < 2 && rawURL != ""; i++ {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			break
		}
		hosts = append(hosts, normalizeHost(u.Hostname()))
		rawURL = strings.TrimPrefix(u.Path, "/")
		if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
			break
		}
	}
	return hosts
}

func normalizeHost(h string) string {
	if a, err := idna.Lookup.ToASCII(h); err == nil {
		h = a
	}
	return strings.ToLower(h)
}
