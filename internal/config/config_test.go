package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_defaults(t *testing.T) {
	os.Clearenv()
	c := Load()
	assert.Equal(t, ":3000", c.Addr)
	assert.Equal(t, "http://127.0.0.1:3000", c.PublicURL)
	assert.Equal(t, "http://127.0.0.1", c.SubscriptionURL)
	assert.Equal(t, 10*time.Minute, c.SubscriptionTTL)
	assert.Equal(t, ".cache", c.CacheDir)
	assert.Equal(t, 24*time.Hour, c.SpiderSuccessTTL)
	assert.Equal(t, 10*time.Minute, c.SpiderFailureTTL)
	assert.Equal(t, 2*time.Hour, c.SpiderResetInterval)
	assert.Equal(t, 3*time.Second, c.SpiderFetchTimeout)
	assert.Equal(t, 1, c.SpiderRetries)
	assert.Equal(t, 10*time.Second, c.SpiderDeadline)
	assert.Equal(t, SpiderURLProxy, c.SpiderURLMode)
	assert.Equal(t, 500, c.SegmentCacheSize)
	assert.Equal(t, 15*time.Minute, c.SegmentCacheTTL)
	assert.Equal(t, 5, c.PreloadCount)
	assert.Equal(t, 3, c.PredictCount)
	assert.Equal(t, 10.0, c.PreloadRPS)
	assert.Equal(t, "info", c.LogLevel)
	assert.Empty(t, c.LogFile)
	assert.Empty(t, c.CandidatesFile)
}

func TestLoad_overrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("TVBOX_ADDR", ":8080")
	t.Setenv("TVBOX_PUBLIC_URL", "http://tv.lan:8080/")
	t.Setenv("TVBOX_SUBSCRIPTION_URL", "https://sub.example/tv.json")
	t.Setenv("TVBOX_SPIDER_SUCCESS_TTL", "1h")
	t.Setenv("TVBOX_SPIDER_RETRIES", "3")
	t.Setenv("TVBOX_SPIDER_URL_MODE", "Direct")
	t.Setenv("TVBOX_SEGMENT_CACHE_SIZE", "42")
	t.Setenv("TVBOX_PRELOAD_RPS", "2.5")
	t.Setenv("TVBOX_CANDIDATES_FILE", "/etc/tvbox/candidates.yaml")

	c := Load()
	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, "http://tv.lan:8080", c.PublicURL, "trailing slash trimmed")
	assert.Equal(t, "https://sub.example/tv.json", c.SubscriptionURL)
	assert.Equal(t, time.Hour, c.SpiderSuccessTTL)
	assert.Equal(t, 3, c.SpiderRetries)
	assert.Equal(t, SpiderURLDirect, c.SpiderURLMode)
	assert.Equal(t, 42, c.SegmentCacheSize)
	assert.Equal(t, 2.5, c.PreloadRPS)
	assert.Equal(t, "/etc/tvbox/candidates.yaml", c.CandidatesFile)
}

func TestLoad_parsesURLFallback(t *testing.T) {
	os.Clearenv()
	t.Setenv("PARSES_URL", "https://legacy.example/api")
	c := Load()
	assert.Equal(t, "https://legacy.example/api", c.SubscriptionURL)

	t.Setenv("TVBOX_SUBSCRIPTION_URL", "https://new.example/api")
	c = Load()
	assert.Equal(t, "https://new.example/api", c.SubscriptionURL, "TVBOX_SUBSCRIPTION_URL wins")
}

func TestLoad_invalidFallsBack(t *testing.T) {
	os.Clearenv()
	t.Setenv("TVBOX_SPIDER_SUCCESS_TTL", "forever")
	t.Setenv("TVBOX_SPIDER_FAILURE_TTL", "-5m")
	t.Setenv("TVBOX_SPIDER_RETRIES", "-1")
	t.Setenv("TVBOX_SEGMENT_CACHE_SIZE", "zero")
	t.Setenv("TVBOX_PREDICT_COUNT", "-2")
	t.Setenv("TVBOX_PRELOAD_RPS", "0")
	t.Setenv("TVBOX_SPIDER_URL_MODE", "sideways")

	c := Load()
	assert.Equal(t, 24*time.Hour, c.SpiderSuccessTTL)
	assert.Equal(t, 10*time.Minute, c.SpiderFailureTTL)
	assert.Equal(t, 1, c.SpiderRetries)
	assert.Equal(t, 500, c.SegmentCacheSize)
	assert.Equal(t, 0, c.PredictCount)
	assert.Equal(t, 10.0, c.PreloadRPS)
	assert.Equal(t, SpiderURLProxy, c.SpiderURLMode)
}

func TestLoad_zeroRetriesAllowed(t *testing.T) {
	os.Clearenv()
	t.Setenv("TVBOX_SPIDER_RETRIES", "0")
	c := Load()
	assert.Equal(t, 0, c.SpiderRetries)
}

func TestConfig_proxyURLs(t *testing.T) {
	c := &Config{PublicURL: "http://box:3000"}
	assert.Equal(t, "http://box:3000/api/proxy/spider.jar", c.SpiderProxyURL())
	assert.Equal(t, "http://box:3000/api/proxy/m3u8?url=", c.PlaylistProxyBase())
	assert.Equal(t, "http://box:3000/api/proxy/ts?url=", c.SegmentProxyBase())
}
