package hls

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/snapetech/tvboxproxy/internal/metrics"
	"github.com/snapetech/tvboxproxy/internal/safeurl"
)

const (
	DefaultPreloadCount = 5
	preloadTimeout      = 30 * time.Second
	preloadParallel     = 4
)

// Preloader warms the segment cache in the background. Warm-ups are detached from
// any request: they are rate limited, never reported to callers, and only logged
// at debug level on failure.
type Preloader struct {
	cache   *SegmentCache
	count   int
	limiter *rate.Limiter
	wg      sync.WaitGroup
}

// NewPreloader warms up to count segments per playlist at no more than rps fetches per second.
func NewPreloader(cache *SegmentCache, count int, rps float64) *Preloader {
	if count < 0 {
		count = DefaultPreloadCount
	}
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Preloader{
		cache:   cache,
		count:   count,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Warm schedules the first segments of an already rewritten playlist.
func (p *Preloader) Warm(rewritten string) {
	p.WarmURLs(ProxiedSegmentURLs(rewritten, p.count))
}

// WarmURLs schedules upstream segment URLs for background fetching.
func (p *Preloader) WarmURLs(urls []string) {
	if len(urls) == 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(urls)
	}()
}

// Wait blocks until scheduled warm-ups finish. For tests and shutdown.
func (p *Preloader) Wait() { p.wg.Wait() }

func (p *Preloader) run(urls []string) {
	ctx, cancel := context.WithTimeout(context.Background(), preloadTimeout)
	defer cancel()
	var g errgroup.Group
	g.SetLimit(preloadParallel)
	for _, u := range urls {
		if p.cache.Contains(u) {
			metrics.Preloads.WithLabelValues("skipped").Inc()
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			log.Debugf("hls: preload stopped: %v", err)
			break
		}
		u := u
		g.Go(func() error {
			if _, err := p.cache.GetOrFetch(ctx, u); err != nil {
				metrics.Preloads.WithLabelValues("error").Inc()
				log.Debugf("hls: preload %s: %v", safeurl.RedactURL(u), err)
				return nil
			}
			metrics.Preloads.WithLabelValues("ok").Inc()
			return nil
		})
	}
	_ = g.Wait()
}

// ProxiedSegmentURLs decodes the upstream URLs of the first n proxied segment
// lines in a rewritten playlist. Nested playlists are skipped.
func ProxiedSegmentURLs(rewritten string, n int) []string {
	var out []string
	for _, line := range strings.Split(rewritten, "\n") {
		if len(out) >= n {
			break
		}
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		u, err := url.Parse(t)
		if err != nil {
			continue
		}
		orig := u.Query().Get("url")
		if orig == "" || !IsSegmentURL(orig) {
			continue
		}
		out = append(out, orig)
	}
	return out
}
