// Package metrics holds the process-wide Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tvbox"

var (
	// SpiderResolves counts spider resolutions by how they were satisfied:
	// disk, memory, network or fallback.
	SpiderResolves = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "spider",
		Name:      "resolves_total",
		Help:      "Spider resource resolutions by tier that satisfied them.",
	}, []string{"tier"})

	SpiderCandidateFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "spider",
		Name:      "candidate_failures_total",
		Help:      "Candidate mirrors that exhausted their retries.",
	}, []string{"host"})

	SpiderFailedSet = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "spider",
		Name:      "failed_candidates",
		Help:      "Current size of the failed-candidate set.",
	})

	SpiderBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "spider",
		Name:      "binary_bytes",
		Help:      "Size of the spider binary currently held in memory.",
	})

	PlaylistRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "playlist_requests_total",
		Help:      "Playlist proxy requests by outcome.",
	}, []string{"outcome"})

	AdSegmentsRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "ad_segments_removed_total",
		Help:      "Media segments dropped by the ad filter.",
	})

	AdTagsRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "ad_tags_removed_total",
		Help:      "Cue, daterange and part tags dropped by the ad filter.",
	})

	SegmentCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "segment_cache_total",
		Help:      "Segment cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	Preloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "preloads_total",
		Help:      "Background segment warm-ups by result (ok, error, skipped).",
	}, []string{"result"})

	SubscriptionFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "subscription",
		Name:      "fetches_total",
		Help:      "Upstream subscription fetches by result (ok, cached, revalidated, error).",
	}, []string{"result"})

	UpstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_seconds",
		Help:      "Latency of outbound requests by kind.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 5, 10},
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		SpiderResolves,
		SpiderCandidateFailures,
		SpiderFailedSet,
		SpiderBytes,
		PlaylistRequests,
		AdSegmentsRemoved,
		AdTagsRemoved,
		SegmentCache,
		Preloads,
		SubscriptionFetches,
		UpstreamDuration,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
