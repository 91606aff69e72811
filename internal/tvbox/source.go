package tvbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/snapetech/tvboxproxy/internal/httpclient"
	"github.com/snapetech/tvboxproxy/internal/metrics"
	"github.com/snapetech/tvboxproxy/internal/safeurl"
)

const (
	DefaultTTL   = 10 * time.Minute
	fetchTimeout = 30 * time.Second
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

var subscriptionRetry = httpclient.RetryPolicy{
	Retry429:   true,
	Max429Wait: 5 * time.Second,
	Retry5xx:   true,
	Backoff5xx: time.Second,
}

type cachedSubscription struct {
	sub Subscription
	at  time.Time

	// Validators for the next conditional request.
	etag         string
	lastModified string
}

// Source fetches subscriptions and caches each URL's parsed result for TTL.
type Source struct {
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cachedSubscription
	flight  singleflight.Group
}

func NewSource(client *http.Client, ttl time.Duration) *Source {
	if client == nil {
		client = httpclient.WithTimeout(fetchTimeout)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Source{
		client:  client,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedSubscription),
	}
}

// Get returns the subscription at url, from cache unless force is set or the
// entry is older than TTL. A stale entry is revalidated with If-None-Match /
// If-Modified-Since and reused on 304. The result is a copy the caller may modify.
func (s *Source) Get(ctx context.Context, url string, force bool) (Subscription, error) {
	s.mu.Lock()
	prev, ok := s.entries[url]
	s.mu.Unlock()
	if ok && !force && s.now().Sub(prev.at) < s.ttl {
		metrics.SubscriptionFetches.WithLabelValues("cached").Inc()
		return prev.sub.Clone(), nil
	}
	var validators *cachedSubscription
	if ok && !force {
		validators = &prev
	}
	// Shared by concurrent callers, so the fetch runs on its own budget.
	ch := s.flight.DoChan(url, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		e, err := s.fetch(fctx, url, validators)
		if errors.Is(err, errNotModified) {
			metrics.SubscriptionFetches.WithLabelValues("revalidated").Inc()
			e = prev
			err = nil
		} else if err == nil {
			metrics.SubscriptionFetches.WithLabelValues("ok").Inc()
		}
		if err != nil {
			return nil, err
		}
		e.at = s.now()
		s.mu.Lock()
		s.entries[url] = e
		s.mu.Unlock()
		return e.sub, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			metrics.SubscriptionFetches.WithLabelValues("error").Inc()
			return Subscription{}, res.Err
		}
		return res.Val.(Subscription).Clone(), nil
	case <-ctx.Done():
		return Subscription{}, ctx.Err()
	}
}

// errNotModified reports a 304 to a conditional subscription request.
var errNotModified = errors.New("tvbox: subscription not modified")

func (s *Source) fetch(ctx context.Context, url string, prev *cachedSubscription) (cachedSubscription, error) {
	if !safeurl.IsHTTPOrHTTPS(url) {
		return cachedSubscription{}, fmt.Errorf("tvbox: subscription url must be http(s): %q", url)
	}
	log.Infof("tvbox: fetching subscription %s", safeurl.RedactURL(url))
	start := time.Now()
	defer func() { metrics.UpstreamDuration.WithLabelValues("subscription").Observe(time.Since(start).Seconds()) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return cachedSubscription{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Encoding", "br, gzip")
	if prev != nil {
		if prev.etag != "" {
			req.Header.Set("If-None-Match", prev.etag)
		}
		if prev.lastModified != "" {
			req.Header.Set("If-Modified-Since", prev.lastModified)
		}
	}
	resp, err := httpclient.DoWithRetry(ctx, s.client, req, subscriptionRetry)
	if err != nil {
		return cachedSubscription{}, fmt.Errorf("tvbox: fetch subscription: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified && prev != nil {
		log.Debugf("tvbox: subscription %s not modified", safeurl.RedactURL(url))
		return cachedSubscription{}, errNotModified
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return cachedSubscription{}, fmt.Errorf("tvbox: fetch subscription: HTTP %d", resp.StatusCode)
	}
	body, err := httpclient.ReadBody(resp, 0)
	if err != nil {
		return cachedSubscription{}, fmt.Errorf("tvbox: read subscription: %w", err)
	}
	sub, err := ParseSubscription(body)
	if err != nil {
		return cachedSubscription{}, err
	}
	log.WithFields(log.Fields{"sites": len(sub.Sites), "parses": len(sub.Parses)}).Info("tvbox: subscription parsed")
	return cachedSubscription{
		sub:          sub,
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
