package spider

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/snapetech/tvboxproxy/internal/metrics"
	"github.com/snapetech/tvboxproxy/internal/safeurl"
)

// Options configures a Manager. Zero durations take the package defaults.
type Options struct {
	Candidates    []string // DefaultCandidates when nil
	Disk          *DiskCache
	Fetcher       *Fetcher
	SuccessTTL    time.Duration // 24h
	FailureTTL    time.Duration // 10m
	ResetInterval time.Duration // 2h
	FetchTimeout  time.Duration // 3s per attempt
	Retries       int           // extra attempts per candidate
	// NetworkBudget bounds one shared network pass. Zero derives it from the
	// candidate count, FetchTimeout, Retries and the fetcher's backoff.
	NetworkBudget time.Duration
	Now           func() time.Time
}

// Manager resolves the spider binary through disk, memory, candidates and fallback.
// Safe for concurrent use. The mutex is never held across network I/O.
type Manager struct {
	opts Options

	mu       sync.Mutex
	current  Record
	failures *FailureTracker

	flight singleflight.Group
}

func NewManager(opts Options) *Manager {
	if opts.Candidates == nil {
		opts.Candidates = DefaultCandidates()
	}
	if opts.SuccessTTL <= 0 {
		opts.SuccessTTL = 24 * time.Hour
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = 10 * time.Minute
	}
	if opts.ResetInterval <= 0 {
		opts.ResetInterval = 2 * time.Hour
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 3 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Disk == nil {
		opts.Disk = NewDiskCache(".cache", opts.SuccessTTL)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewFetcher(nil)
	}
	return &Manager{
		opts:     opts,
		failures: NewFailureTracker(opts.ResetInterval, opts.Now()),
	}
}

// Resolve returns a usable binary. It never fails: when every candidate is
// unreachable or invalid, or ctx ends first, the embedded fallback is returned.
// forceRefresh skips both cache tiers.
func (m *Manager) Resolve(ctx context.Context, forceRefresh bool) Record {
	now := m.opts.Now()

	m.mu.Lock()
	if m.failures.ShouldReset(now) {
		m.failures.Reset(now)
		metrics.SpiderFailedSet.Set(0)
		log.Info("spider: failed-candidate set reset")
	}
	m.mu.Unlock()

	if !forceRefresh {
		if r, ok := m.opts.Disk.Load(); ok {
			m.setCurrent(r)
			metrics.SpiderResolves.WithLabelValues("disk").Inc()
			log.WithFields(log.Fields{"origin": r.OriginURL, "checksum": r.Checksum}).Debug("spider: served from disk cache")
			return r
		}
		if r, ok := m.fromMemory(now); ok {
			metrics.SpiderResolves.WithLabelValues("memory").Inc()
			return r
		}
	}

	if err := ctx.Err(); err != nil {
		return m.Fallback()
	}
	// The pass is shared by every waiter, so it runs on its own budget and
	// outlives any single caller giving up.
	ch := m.flight.DoChan("resolve", func() (any, error) {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.networkBudget())
		defer cancel()
		return m.resolveNetwork(nctx), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Record)
	case <-ctx.Done():
		log.Warnf("spider: resolve abandoned: %v", ctx.Err())
		return m.Fallback()
	}
}

// Current returns the in-memory record without any I/O. Binary is nil before the first resolution.
func (m *Manager) Current() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Fallback builds a fallback record without touching shared state.
func (m *Manager) Fallback() Record {
	return FallbackRecord(m.opts.Now(), 0)
}

// FailedCandidates reports the size of the failed-candidate set.
func (m *Manager) FailedCandidates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures.Len()
}

func (m *Manager) fromMemory(now time.Time) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current.freshAt(now, m.opts.SuccessTTL, m.opts.FailureTTL) {
		return Record{}, false
	}
	r := m.current
	r.Cached = true
	return r, true
}

func (m *Manager) setCurrent(r Record) {
	m.mu.Lock()
	m.current = r
	m.mu.Unlock()
	metrics.SpiderBytes.Set(float64(r.SizeBytes))
}

func (m *Manager) resolveNetwork(ctx context.Context) Record {
	m.mu.Lock()
	candidates := m.failures.Filter(m.opts.Candidates)
	m.mu.Unlock()

	log.Infof("spider: trying %d of %d candidates", len(candidates), len(m.opts.Candidates))
	tried := 0
	for _, u := range candidates {
		if ctx.Err() != nil {
			break
		}
		tried++
		b, err := m.opts.Fetcher.Fetch(ctx, u, m.opts.FetchTimeout, m.opts.Retries)
		if err != nil {
			if !errors.Is(err, ErrCandidateExhausted) {
				// ctx ended mid-candidate; the candidate is not to blame.
				break
			}
			m.mu.Lock()
			m.failures.MarkFailed(u)
			n := m.failures.Len()
			m.mu.Unlock()
			metrics.SpiderFailedSet.Set(float64(n))
			metrics.SpiderCandidateFailures.WithLabelValues(hostOf(u)).Inc()
			continue
		}

		r := newRecord(b, u, true, m.opts.Now(), tried)
		m.mu.Lock()
		m.failures.MarkSucceeded(u)
		m.mu.Unlock()
		m.setCurrent(r)
		if err := m.opts.Disk.Save(r); err != nil {
			log.Warnf("spider: save to disk: %v", err)
		}
		metrics.SpiderResolves.WithLabelValues("network").Inc()
		log.WithFields(log.Fields{
			"origin":   safeurl.RedactURL(u),
			"bytes":    r.SizeBytes,
			"checksum": r.Checksum,
			"tried":    tried,
		}).Info("spider: fetched")
		return r
	}

	r := FallbackRecord(m.opts.Now(), tried)
	if err := ctx.Err(); err != nil {
		// Cut short, not exhausted: leave the memory tier alone.
		log.WithFields(log.Fields{"tried": tried}).Warnf("spider: network pass stopped: %v", err)
		return r
	}
	m.setCurrent(r)
	metrics.SpiderResolves.WithLabelValues("fallback").Inc()
	log.WithFields(log.Fields{"tried": tried, "checksum": r.Checksum}).Warn("spider: all candidates failed, using fallback")
	return r
}

// networkBudget is the worst-case duration of one pass over every candidate.
func (m *Manager) networkBudget() time.Duration {
	if m.opts.NetworkBudget > 0 {
		return m.opts.NetworkBudget
	}
	attempts := m.opts.Retries + 1
	perCandidate := time.Duration(attempts) * m.opts.FetchTimeout
	// attempt×Backoff is slept after each failed attempt but the last.
	perCandidate += m.opts.Fetcher.Backoff * time.Duration(attempts*(attempts-1)/2)
	n := len(m.opts.Candidates)
	if n == 0 {
		n = 1
	}
	return time.Duration(n)*perCandidate + time.Second
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return "unknown"
}
