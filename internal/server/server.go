package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/snapetech/tvboxproxy/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// Router returns the full route table:
//
//	/api/tvbox             config document
//	/api/proxy/m3u8        filtered + rewritten playlist
//	/api/proxy/ts          cached media segment
//	/api/proxy/spider.jar  spider binary
//	/healthz, /metrics
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(cors)
	api.HandleFunc("/tvbox", a.serveConfig).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/proxy/m3u8", a.servePlaylist).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	api.HandleFunc("/proxy/ts", a.serveSegment).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	api.HandleFunc("/proxy/spider.jar", a.serveSpider).Methods(http.MethodGet, http.MethodHead)

	r.HandleFunc("/healthz", a.serveHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully. The spider is
// resolved once in the background so the first client does not pay for it.
func (a *App) Run(ctx context.Context) error {
	go func() {
		rec := a.Spider.Resolve(ctx, false)
		log.WithFields(log.Fields{
			"origin":    rec.OriginURL,
			"succeeded": rec.Succeeded,
			"checksum":  rec.Checksum,
			"bytes":     rec.SizeBytes,
		}).Info("spider: warm-up resolve done")
	}()

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("tvbox-proxy listening on %s (public %s)", a.Config.Addr, a.Config.PublicURL)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("Shutting down tvbox-proxy ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("tvbox-proxy shutdown: %v", err)
		}
		<-serverErr
		a.Preloader.Wait()
		return nil
	}
}
