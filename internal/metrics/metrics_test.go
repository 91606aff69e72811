package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_exposesCollectors(t *testing.T) {
	SpiderResolves.WithLabelValues("network").Inc()
	AdSegmentsRemoved.Add(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tvbox_spider_resolves_total{tier="network"}`)
	assert.Contains(t, string(body), "tvbox_hls_ad_segments_removed_total")
}

func TestHandler_labelledCounters(t *testing.T) {
	SegmentCache.WithLabelValues("hit").Inc()
	Preloads.WithLabelValues("ok").Inc()
	UpstreamDuration.WithLabelValues("segment").Observe(0.2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `tvbox_hls_segment_cache_total{result="hit"}`)
	assert.Contains(t, body, `tvbox_hls_preloads_total{result="ok"}`)
	assert.Contains(t, body, `tvbox_upstream_request_seconds_bucket{kind="segment"`)
}
