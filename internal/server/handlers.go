package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/snapetech/tvboxproxy/internal/hls"
	"github.com/snapetech/tvboxproxy/internal/httpclient"
	"github.com/snapetech/tvboxproxy/internal/metrics"
	"github.com/snapetech/tvboxproxy/internal/safeurl"
	"github.com/snapetech/tvboxproxy/internal/tvbox"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	playlistUA          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	spiderMaxAge        = 4 * time.Hour
	segmentMaxAge       = time.Hour
)

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// serveConfig builds the TVBox config document. It never fails: an unreachable
// subscription falls back to the built-in one and the spider to the embedded binary.
func (a *App) serveConfig(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	force := truthy(q.Get("forceSpiderRefresh"))
	mode := q.Get("mode")
	if mode == "" {
		mode = "standard"
	}
	subURL := a.Config.SubscriptionURL
	if s := strings.TrimSpace(q.Get("subscriptionUrl")); s != "" && safeurl.IsHTTPOrHTTPS(s) {
		subURL = s
	}
	rl := reqLog(r).WithFields(log.Fields{"mode": mode, "subscription": safeurl.RedactURL(subURL), "force": force})

	sub, err := a.Subscriptions.Get(r.Context(), subURL, force)
	if err != nil {
		rl.Warnf("config: subscription unavailable, using built-in: %v", err)
		sub = tvbox.DefaultSubscription()
	}

	rec := a.resolveSpider(r.Context(), force)
	spiderValue := a.spiderField(rec)
	if override := strings.TrimSpace(q.Get("spider")); override != "" {
		if safeurl.IsPublicHTTP(override) {
			spiderValue = override
		} else {
			rl.Warnf("config: ignoring spider override %s", safeurl.RedactURL(override))
		}
	}

	doc := tvbox.Build(sub, tvbox.BuildOptions{
		Spider:      spiderValue,
		AdFilterURL: a.Config.PlaylistProxyBase(),
		FilterAdult: tvbox.FilterAdult(q.Get("filter"), q.Get("adult")),
	})
	rl.WithFields(log.Fields{
		"sites":         len(doc.Sites),
		"spider_source": rec.OriginURL,
		"spider_ok":     rec.Succeeded,
	}).Info("config: served")
	writeJSON(w, http.StatusOK, doc)
}

// upstreamStatus maps a failed upstream fetch to the status the client sees.
func upstreamStatus(err error) int {
	if hls.IsTimeout(err) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// servePlaylist fetches, ad-filters and rewrites an upstream playlist.
func (a *App) servePlaylist(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if !safeurl.IsHTTPOrHTTPS(target) {
		metrics.PlaylistRequests.WithLabelValues("bad_request").Inc()
		http.Error(w, "missing or invalid url", http.StatusBadRequest)
		return
	}
	rl := reqLog(r).WithField("url", safeurl.RedactURL(target))

	body, finalURL, err := a.fetchPlaylist(r.Context(), target)
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			return
		}
		status := upstreamStatus(err)
		metrics.PlaylistRequests.WithLabelValues(strconv.Itoa(status)).Inc()
		rl.Warnf("playlist: upstream failed: %v", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	filtered, stats := hls.FilterWithStats(string(body))
	metrics.AdSegmentsRemoved.Add(float64(stats.SegmentsRemoved))
	metrics.AdTagsRemoved.Add(float64(stats.TagsRemoved))
	out := a.Rewriter.Rewrite(filtered, finalURL)
	metrics.PlaylistRequests.WithLabelValues("ok").Inc()
	if stats.SegmentsRemoved > 0 || stats.TagsRemoved > 0 {
		rl.WithFields(log.Fields{"segments": stats.SegmentsRemoved, "tags": stats.TagsRemoved}).Info("playlist: ads removed")
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(out))
	}
	a.Preloader.Warm(out)
}

// fetchPlaylist returns the playlist body and the URL it was finally served from,
// so relative references resolve against the post-redirect location.
func (a *App) fetchPlaylist(ctx context.Context, target string) ([]byte, string, error) {
	start := time.Now()
	defer func() { metrics.UpstreamDuration.WithLabelValues("playlist").Observe(time.Since(start).Seconds()) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", playlistUA)
	req.Header.Set("Accept", "application/vnd.apple.mpegurl, application/x-mpegurl, */*")
	req.Header.Set("Accept-Encoding", "br, gzip")
	resp, err := httpclient.DoWithRetry(ctx, a.Client, req, httpclient.LiveRetryPolicy)
	if err != nil {
		return nil, "", fmt.Errorf("playlist fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &hls.UpstreamError{URL: target, Code: resp.StatusCode}
	}
	body, err := httpclient.ReadBody(resp, 0)
	if err != nil {
		return nil, "", fmt.Errorf("playlist read: %w", err)
	}
	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return body, final, nil
}

// segmentContentType picks the media type from the upstream path; MPEG-TS otherwise.
func segmentContentType(raw string) string {
	p := raw
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".m4s":
		return "video/iso.segment"
	case ".mp4":
		return "video/mp4"
	case ".aac":
		return "audio/aac"
	}
	return "video/mp2t"
}

// serveSegment proxies one media segment through the shared cache. On a miss the
// numerically following segments are warmed in the background.
func (a *App) serveSegment(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if !safeurl.IsHTTPOrHTTPS(target) {
		http.Error(w, "missing or invalid url", http.StatusBadRequest)
		return
	}
	b, hit, err := a.Segments.GetOrFetchHit(r.Context(), target)
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			return
		}
		status := upstreamStatus(err)
		reqLog(r).Warnf("segment: %s: %v", safeurl.RedactURL(target), err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !hit && a.Config.PredictCount > 0 {
		a.Preloader.WarmURLs(hls.PredictNext(target, a.Config.PredictCount))
	}
	cacheState := "MISS"
	if hit {
		cacheState = "HIT"
	}
	w.Header().Set("Content-Type", segmentContentType(target))
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(segmentMaxAge.Seconds())))
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.Header().Set("X-Cache", cacheState)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(b)
	}
}

// serveSpider streams the resolved spider binary, the embedded fallback when
// every mirror is down.
func (a *App) serveSpider(w http.ResponseWriter, r *http.Request) {
	rec := a.resolveSpider(r.Context(), false)
	if len(rec.Binary) == 0 {
		rec = a.Spider.Fallback()
	}
	h := w.Header()
	h.Set("Content-Type", "application/java-archive")
	h.Set("Content-Disposition", `attachment; filename="spider.jar"`)
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(spiderMaxAge.Seconds())))
	h.Set("Content-Length", strconv.Itoa(len(rec.Binary)))
	h.Set("X-Spider-Source", rec.OriginURL)
	h.Set("X-Spider-Checksum", rec.Checksum)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(rec.Binary)
	}
}

type healthReport struct {
	Status              string `json:"status"`
	SpiderSucceeded     bool   `json:"spider_succeeded"`
	SpiderSource        string `json:"spider_source"`
	SpiderChecksum      string `json:"spider_checksum"`
	SegmentCacheEntries int    `json:"segment_cache_entries"`
}

// serveHealth reports "starting" until the first resolution lands, "ok" after.
// It always answers 200 because the spider paths work from the fallback.
func (a *App) serveHealth(w http.ResponseWriter, r *http.Request) {
	rec := a.Spider.Current()
	rep := healthReport{
		Status:              "ok",
		SpiderSucceeded:     rec.Succeeded,
		SpiderSource:        rec.OriginURL,
		SpiderChecksum:      rec.Checksum,
		SegmentCacheEntries: a.Segments.Len(),
	}
	if len(rec.Binary) == 0 {
		rep.Status = "starting"
	}
	writeJSON(w, http.StatusOK, rep)
}
