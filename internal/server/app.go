// Package server is the HTTP boundary: config document, playlist and segment
// proxies, spider binary proxy, health and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/snapetech/tvboxproxy/internal/config"
	"github.com/snapetech/tvboxproxy/internal/hls"
	"github.com/snapetech/tvboxproxy/internal/httpclient"
	"github.com/snapetech/tvboxproxy/internal/spider"
	"github.com/snapetech/tvboxproxy/internal/tvbox"
)

const playlistTimeout = 30 * time.Second

// App holds everything a request may touch. Build one per process with NewApp;
// tests build independent instances.
type App struct {
	Config        *config.Config
	Spider        *spider.Manager
	Segments      *hls.SegmentCache
	Preloader     *hls.Preloader
	Subscriptions *tvbox.Source
	Rewriter      hls.Rewriter

	// Client fetches upstream playlists.
	Client *http.Client
}

// NewApp wires the spider manager, segment cache, preloader and subscription
// source from cfg. It fails only when an explicit candidates file is unreadable.
func NewApp(cfg *config.Config) (*App, error) {
	candidates, err := spider.LoadCandidates(cfg.CandidatesFile)
	if err != nil {
		return nil, err
	}
	mgr := spider.NewManager(spider.Options{
		Candidates:    candidates,
		Disk:          spider.NewDiskCache(cfg.CacheDir, cfg.SpiderSuccessTTL),
		Fetcher:       spider.NewFetcher(nil),
		SuccessTTL:    cfg.SpiderSuccessTTL,
		FailureTTL:    cfg.SpiderFailureTTL,
		ResetInterval: cfg.SpiderResetInterval,
		FetchTimeout:  cfg.SpiderFetchTimeout,
		Retries:       cfg.SpiderRetries,
	})
	segs := hls.NewSegmentCache(cfg.SegmentCacheSize, cfg.SegmentCacheTTL, nil)
	return &App{
		Config:        cfg,
		Spider:        mgr,
		Segments:      segs,
		Preloader:     hls.NewPreloader(segs, cfg.PreloadCount, cfg.PreloadRPS),
		Subscriptions: tvbox.NewSource(nil, cfg.SubscriptionTTL),
		Rewriter: hls.Rewriter{
			SegmentBase:  cfg.SegmentProxyBase(),
			PlaylistBase: cfg.PlaylistProxyBase(),
		},
		Client: httpclient.WithTimeout(playlistTimeout),
	}, nil
}

// resolveSpider runs Resolve under the configured outer deadline. When the
// deadline wins, a fallback record is built here without touching the manager.
func (a *App) resolveSpider(ctx context.Context, force bool) spider.Record {
	ctx, cancel := context.WithTimeout(ctx, a.Config.SpiderDeadline)
	defer cancel()
	done := make(chan spider.Record, 1)
	go func() { done <- a.Spider.Resolve(ctx, force) }()
	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return a.Spider.Fallback()
	}
}

// spiderField is the "spider" value advertised for rec under the configured URL mode.
func (a *App) spiderField(rec spider.Record) string {
	if a.Config.SpiderURLMode == config.SpiderURLDirect && rec.Succeeded {
		return tvbox.SpiderField(rec.OriginURL, rec.Checksum)
	}
	return tvbox.SpiderField(a.Config.SpiderProxyURL(), rec.Checksum)
}
