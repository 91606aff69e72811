// Command tvbox-proxy serves a TVBox config document, a resilient spider binary
// and an ad-filtering HLS proxy.
//
//	serve    Run the HTTP server (default)
//	resolve  Resolve the spider binary once and print where it came from
//	filter   Ad-filter (and optionally rewrite) a playlist file or stdin
//	check    Check the upstream subscription and, optionally, a running server
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/snapetech/tvboxproxy/internal/config"
	"github.com/snapetech/tvboxproxy/internal/health"
	"github.com/snapetech/tvboxproxy/internal/hls"
	"github.com/snapetech/tvboxproxy/internal/server"
)

var Version = "dev"

type globalFlags struct {
	envFile  string
	logLevel string
	logFile  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		g      globalFlags
		cfg    *config.Config
		logOut io.Closer
	)
	root := &cobra.Command{
		Use:           "tvbox-proxy",
		Short:         "TVBox config, spider binary and HLS ad-filter proxy",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(g.envFile); err != nil {
				return fmt.Errorf("load %s: %w", g.envFile, err)
			}
			cfg = config.Load()
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = g.logLevel
			}
			if cmd.Flags().Changed("log-file") {
				cfg.LogFile = g.logFile
			}
			var err error
			logOut, err = setupLogging(cfg.LogLevel, cfg.LogFile)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logOut != nil {
				_ = logOut.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "env file loaded before reading TVBOX_* variables")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (overrides TVBOX_LOG_LEVEL)")
	root.PersistentFlags().StringVar(&g.logFile, "log-file", "", "rotated log file (overrides TVBOX_LOG_FILE)")

	cfgFn := func() *config.Config { return cfg }
	serve := newServeCmd(cfgFn)
	root.AddCommand(serve, newResolveCmd(cfgFn), newFilterCmd(cfgFn), newCheckCmd(cfgFn))
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	var addr, publicURL, subURL, cacheDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if cmd.Flags().Changed("addr") {
				c.Addr = addr
			}
			if cmd.Flags().Changed("public-url") {
				c.PublicURL = publicURL
			}
			if cmd.Flags().Changed("subscription-url") {
				c.SubscriptionURL = subURL
			}
			if cmd.Flags().Changed("cache-dir") {
				c.CacheDir = cacheDir
			}
			app, err := server.NewApp(c)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":3000", "listen address (overrides TVBOX_ADDR)")
	cmd.Flags().StringVar(&publicURL, "public-url", "", "URL clients use to reach this server (overrides TVBOX_PUBLIC_URL)")
	cmd.Flags().StringVar(&subURL, "subscription-url", "", "upstream TVBox subscription (overrides TVBOX_SUBSCRIPTION_URL)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "spider cache directory (overrides TVBOX_CACHE_DIR)")
	return cmd
}

func newResolveCmd(cfg func() *config.Config) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the spider binary once and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := server.NewApp(cfg())
			if err != nil {
				return err
			}
			rec := app.Spider.Resolve(cmd.Context(), force)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "origin:    %s\n", rec.OriginURL)
			fmt.Fprintf(out, "succeeded: %t\n", rec.Succeeded)
			fmt.Fprintf(out, "cached:    %t\n", rec.Cached)
			fmt.Fprintf(out, "checksum:  %s\n", rec.Checksum)
			fmt.Fprintf(out, "bytes:     %d\n", rec.SizeBytes)
			fmt.Fprintf(out, "attempts:  %d\n", rec.AttemptsUsed)
			if !rec.Succeeded {
				log.Warn("all spider candidates failed; serving the embedded fallback")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip the disk and memory caches")
	return cmd
}

func newFilterCmd(cfg func() *config.Config) *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "filter [playlist.m3u8|-]",
		Short: "Remove ads from a playlist; with --base, also rewrite URIs onto this proxy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			b, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			out, st := hls.FilterWithStats(string(b))
			if base != "" {
				c := cfg()
				out = hls.Rewriter{SegmentBase: c.SegmentProxyBase(), PlaylistBase: c.PlaylistProxyBase()}.Rewrite(out, base)
			}
			log.WithFields(log.Fields{"segments": st.SegmentsRemoved, "tags": st.TagsRemoved}).Info("filter: done")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "upstream URL of the playlist; relative URIs resolve against it")
	return cmd
}

func newCheckCmd(cfg func() *config.Config) *cobra.Command {
	var endpoints string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the upstream subscription and optionally a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			n, err := health.CheckSubscription(cmd.Context(), c.SubscriptionURL)
			if err != nil {
				return fmt.Errorf("subscription: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "subscription OK: %d sites\n", n)
			if endpoints == "" {
				return nil
			}
			if err := health.CheckEndpoints(cmd.Context(), endpoints); err != nil {
				return fmt.Errorf("endpoints: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "endpoints OK: %s\n", endpoints)
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoints, "endpoints", "", "base URL of a running server to probe, e.g. http://127.0.0.1:3000")
	return cmd
}
