package hls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bluele/gcache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/snapetech/tvboxproxy/internal/httpclient"
	"github.com/snapetech/tvboxproxy/internal/metrics"
	"github.com/snapetech/tvboxproxy/internal/safeurl"
)

const (
	DefaultSegmentCacheSize = 500
	DefaultSegmentCacheTTL  = 15 * time.Minute

	maxSegmentBytes = 64 << 20
	segmentUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// UpstreamError is a non-2xx answer from a playlist or segment origin.
type UpstreamError struct {
	URL  string
	Code int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: HTTP %d", safeurl.RedactURL(e.URL), e.Code)
}

// SegmentCache holds recently fetched segment bytes keyed by upstream URL, with
// LRU eviction at capacity and a fixed TTL. Concurrent misses for one URL share a
// single upstream request. Cached slices must not be modified by callers.
type SegmentCache struct {
	cache  gcache.Cache
	flight singleflight.Group
	client *http.Client
	sem    *httpclient.HostSemaphore

	maxBytes int64
}

func NewSegmentCache(size int, ttl time.Duration, client *http.Client) *SegmentCache {
	if size <= 0 {
		size = DefaultSegmentCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultSegmentCacheTTL
	}
	if client == nil {
		client = httpclient.Default()
	}
	return &SegmentCache{
		cache:  gcache.New(size).LRU().Expiration(ttl).Build(),
		client:   client,
		sem:      httpclient.GlobalHostSem,
		maxBytes: maxSegmentBytes,
	}
}

// Contains reports whether url is cached and unexpired.
func (c *SegmentCache) Contains(url string) bool {
	return c.cache.Has(url)
}

// Len is the number of unexpired entries.
func (c *SegmentCache) Len() int {
	return c.cache.Len(true)
}

// Lookup returns cached bytes without fetching.
func (c *SegmentCache) Lookup(url string) ([]byte, bool) {
	v, err := c.cache.GetIFPresent(url)
	if err != nil {
		return nil, false
	}
	return v.([]byte), true
}

// GetOrFetch serves url from cache or downloads and stores it.
func (c *SegmentCache) GetOrFetch(ctx context.Context, url string) ([]byte, error) {
	b, _, err := c.get(ctx, url)
	return b, err
}

// GetOrFetchHit is GetOrFetch that also reports whether the cache answered.
func (c *SegmentCache) GetOrFetchHit(ctx context.Context, url string) ([]byte, bool, error) {
	return c.get(ctx, url)
}

func (c *SegmentCache) get(ctx context.Context, url string) ([]byte, bool, error) {
	if b, ok := c.Lookup(url); ok {
		metrics.SegmentCache.WithLabelValues("hit").Inc()
		return b, true, nil
	}
	metrics.SegmentCache.WithLabelValues("miss").Inc()
	ch := c.flight.DoChan(url, func() (any, error) {
		// Detached so one cancelled waiter does not fail the others.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpclient.DefaultTimeout)
		defer cancel()
		b, err := c.fetch(fctx, url)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(url, b); err != nil {
			log.Debugf("hls: segment cache set: %v", err)
		}
		return b, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			metrics.SegmentCache.WithLabelValues("error").Inc()
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *SegmentCache) fetch(ctx context.Context, url string) ([]byte, error) {
	release, err := c.sem.AcquireContext(ctx, url)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	defer func() { metrics.UpstreamDuration.WithLabelValues("segment").Observe(time.Since(start).Seconds()) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", segmentUA)
	resp, err := httpclient.DoWithRetry(ctx, c.client, req, httpclient.LiveRetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", safeurl.RedactURL(url), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{URL: url, Code: resp.StatusCode}
	}
	b, err := httpclient.ReadAllLimit(resp.Body, c.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("segment %s: read: %w", safeurl.RedactURL(url), err)
	}
	return b, nil
}

// IsTimeout reports whether err came from a deadline rather than the upstream's answer.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
