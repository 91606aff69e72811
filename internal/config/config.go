package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Spider URL modes for the "spider" field of /api/tvbox.
const (
	SpiderURLProxy  = "proxy"  // always <PublicURL>/api/proxy/spider.jar;md5;<checksum>
	SpiderURLDirect = "direct" // upstream origin;md5;<checksum> when the last resolve succeeded
)

// Config holds server, spider resolution and segment proxy settings.
// Load from env; call LoadEnvFile(".env") first to pick up a local .env.
type Config struct {
	// Server
	Addr            string // listen address, e.g. :3000
	PublicURL       string // how clients reach us, e.g. http://192.168.1.10:3000
	SubscriptionURL string // default upstream TVBox subscription
	SubscriptionTTL time.Duration

	// Spider resource
	CacheDir            string // holds spider.jar + spider.json
	SpiderSuccessTTL    time.Duration
	SpiderFailureTTL    time.Duration
	SpiderResetInterval time.Duration // failed-candidate set is cleared after this
	SpiderFetchTimeout  time.Duration // per attempt
	SpiderRetries       int           // extra attempts per candidate
	SpiderDeadline      time.Duration // outer deadline used by /api/tvbox
	SpiderURLMode       string        // SpiderURLProxy | SpiderURLDirect
	CandidatesFile      string        // optional YAML override of the mirror tiers

	// Segment proxy
	SegmentCacheSize int
	SegmentCacheTTL  time.Duration
	PreloadCount     int     // rewritten segments warmed after a playlist is served
	PredictCount     int     // numeric successors warmed after a segment miss; 0 disables
	PreloadRPS       float64 // warm-up request rate across all hosts

	// Logging
	LogLevel string
	LogFile  string // "" = stderr only
}

// Load reads config from environment. Zero or invalid values fall back to defaults.
func Load() *Config {
	c := &Config{
		Addr:                getEnv("TVBOX_ADDR", ":3000"),
		PublicURL:           strings.TrimRight(getEnv("TVBOX_PUBLIC_URL", "http://127.0.0.1:3000"), "/"),
		SubscriptionURL:     getEnv("TVBOX_SUBSCRIPTION_URL", getEnv("PARSES_URL", "http://127.0.0.1")),
		SubscriptionTTL:     getEnvDuration("TVBOX_SUBSCRIPTION_TTL", 10*time.Minute),
		CacheDir:            getEnv("TVBOX_CACHE_DIR", ".cache"),
		SpiderSuccessTTL:    getEnvDuration("TVBOX_SPIDER_SUCCESS_TTL", 24*time.Hour),
		SpiderFailureTTL:    getEnvDuration("TVBOX_SPIDER_FAILURE_TTL", 10*time.Minute),
		SpiderResetInterval: getEnvDuration("TVBOX_SPIDER_RESET_INTERVAL", 2*time.Hour),
		SpiderFetchTimeout:  getEnvDuration("TVBOX_SPIDER_FETCH_TIMEOUT", 3*time.Second),
		SpiderRetries:       getEnvInt("TVBOX_SPIDER_RETRIES", 1),
		SpiderDeadline:      getEnvDuration("TVBOX_SPIDER_DEADLINE", 10*time.Second),
		SpiderURLMode:       getEnvSpiderURLMode("TVBOX_SPIDER_URL_MODE", SpiderURLProxy),
		CandidatesFile:      os.Getenv("TVBOX_CANDIDATES_FILE"),
		SegmentCacheSize:    getEnvInt("TVBOX_SEGMENT_CACHE_SIZE", 500),
		SegmentCacheTTL:     getEnvDuration("TVBOX_SEGMENT_CACHE_TTL", 15*time.Minute),
		PreloadCount:        getEnvInt("TVBOX_PRELOAD_COUNT", 5),
		PredictCount:        getEnvInt("TVBOX_PREDICT_COUNT", 3),
		PreloadRPS:          getEnvFloat("TVBOX_PRELOAD_RPS", 10),
		LogLevel:            getEnv("TVBOX_LOG_LEVEL", "info"),
		LogFile:             os.Getenv("TVBOX_LOG_FILE"),
	}
	if c.SpiderSuccessTTL <= 0 {
		c.SpiderSuccessTTL = 24 * time.Hour
	}
	if c.SpiderFailureTTL <= 0 {
		c.SpiderFailureTTL = 10 * time.Minute
	}
	if c.SpiderResetInterval <= 0 {
		c.SpiderResetInterval = 2 * time.Hour
	}
	if c.SpiderFetchTimeout <= 0 {
		c.SpiderFetchTimeout = 3 * time.Second
	}
	if c.SpiderRetries < 0 {
		c.SpiderRetries = 1
	}
	if c.SpiderDeadline <= 0 {
		c.SpiderDeadline = 10 * time.Second
	}
	if c.SegmentCacheSize <= 0 {
		c.SegmentCacheSize = 500
	}
	if c.SegmentCacheTTL <= 0 {
		c.SegmentCacheTTL = 15 * time.Minute
	}
	if c.PreloadCount < 0 {
		c.PreloadCount = 5
	}
	if c.PredictCount < 0 {
		c.PredictCount = 0
	}
	if c.PreloadRPS <= 0 {
		c.PreloadRPS = 10
	}
	if c.SubscriptionTTL <= 0 {
		c.SubscriptionTTL = 10 * time.Minute
	}
	return c
}

// SpiderProxyURL is the local binary-proxy endpoint advertised to clients.
func (c *Config) SpiderProxyURL() string {
	return c.PublicURL + "/api/proxy/spider.jar"
}

// PlaylistProxyBase is the prefix a percent-encoded upstream playlist URL is appended to.
func (c *Config) PlaylistProxyBase() string {
	return c.PublicURL + "/api/proxy/m3u8?url="
}

// SegmentProxyBase is the prefix a percent-encoded upstream segment URL is appended to.
func (c *Config) SegmentProxyBase() string {
	return c.PublicURL + "/api/proxy/ts?url="
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvSpiderURLMode accepts "proxy"/"local" and "direct"/"passthrough"/"upstream".
func getEnvSpiderURLMode(key, defaultVal string) string {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "proxy", "local":
		return SpiderURLProxy
	case "direct", "passthrough", "upstream":
		return SpiderURLDirect
	}
	return defaultVal
}
