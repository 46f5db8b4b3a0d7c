// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tenantcast/tenantcast/internal/activity"
	"github.com/tenantcast/tenantcast/internal/config"
	tclog "github.com/tenantcast/tenantcast/internal/log"
	"github.com/tenantcast/tenantcast/internal/player"
	"github.com/tenantcast/tenantcast/internal/session"
	"github.com/tenantcast/tenantcast/internal/signer"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cfg := config.FromEnv()

	showVersion := flag.Bool("version", false, "print version and exit")
	flag.StringVar(&cfg.APIBase, "base", cfg.APIBase, "backend base URL")
	flag.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "bearer key for the credential endpoints")
	flag.StringVar(&cfg.AccountTypeID, "account-type", cfg.AccountTypeID, "account type identifier")
	flag.StringVar(&cfg.TenantDomain, "tenant", cfg.TenantDomain, "tenant domain")
	flag.StringVar(&cfg.PathPrefix, "path", cfg.PathPrefix, "media path or path prefix")
	flag.StringVar(&cfg.PlaylistFile, "playlist", cfg.PlaylistFile, "playlist filename for the folder flow")
	flag.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "acquisition strategy: cookie, token or folder_url")
	flag.IntVar(&cfg.ExpiresIn, "expires-in", cfg.ExpiresIn, "credential lifetime in seconds")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "optional listen address for /metrics")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tenantcast %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	tclog.Configure(tclog.Config{
		Level:   cfg.LogLevel,
		Output:  os.Stderr,
		Service: "tenantcast",
		Version: version,
	})
	logger := tclog.WithComponent("cli")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Str(tclog.FieldEvent, "config.invalid").Msg("invalid configuration")
	}
	strategy, err := signer.ParseStrategy(cfg.Strategy)
	if err != nil {
		logger.Fatal().Err(err).Str(tclog.FieldEvent, "config.invalid").Msg("invalid strategy")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	logger.Info().
		Str(tclog.FieldEvent, "cli.start").
		Str(tclog.FieldBaseURL, cfg.APIBase).
		Str(tclog.FieldTenant, cfg.TenantDomain).
		Str(tclog.FieldStrategy, cfg.Strategy).
		Str("api_key", tclog.MaskSecret(cfg.APIKey)).
		Msg("starting credential flow")

	if err := run(ctx, cfg, strategy); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, strategy signer.Strategy) error {
	client := signer.New(cfg.APIBase, signer.WithTimeout(cfg.HTTPTimeout))
	defer client.HTTPClient().CloseIdleConnections()

	trail := activity.New()
	var machine *session.Machine
	adapter := player.NewAdapter(
		func() player.Engine { return player.NewManifestEngine(client.HTTPClient()) },
		player.WithOnError(func(pe player.PlaybackError) {
			if machine != nil {
				machine.HandlePlaybackError(pe)
			}
		}),
	)
	machine = session.New(client, adapter, trail)
	defer machine.Close()

	err := machine.Submit(ctx, session.Form{
		APIKey:           cfg.APIKey,
		AccountTypeID:    cfg.AccountTypeID,
		TenantDomain:     cfg.TenantDomain,
		Path:             cfg.PathPrefix,
		PlaylistFile:     cfg.PlaylistFile,
		ExpiresInSeconds: cfg.ExpiresIn,
		Strategy:         strategy,
	})

	report(machine.Snapshot(), trail)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// report prints the outcome the way the demo UI presents it: status line,
// media URL and the activity trail, newest first.
func report(st session.State, trail *activity.Log) {
	fmt.Printf("phase:   %s\n", st.Phase)
	fmt.Printf("tenant:  %s\n", st.TenantDomain)
	if st.MediaURL != "" {
		fmt.Printf("media:   %s\n", st.MediaURL)
	}
	if !st.ExpiresAt.IsZero() {
		fmt.Printf("expires: %s\n", st.ExpiresAt.Format(time.RFC3339))
	}
	if st.Message != "" {
		fmt.Printf("status:  %s\n", st.Message)
	}
	if st.ErrorDetail != "" {
		fmt.Printf("error:   %s\n", st.ErrorDetail)
	}
	fmt.Println("activity:")
	for _, e := range trail.Entries() {
		fmt.Println("  " + e.String())
	}
}

func serveMetrics(addr string) {
	logger := tclog.WithComponent("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info().Str(tclog.FieldEvent, "metrics.listen").Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics listener failed")
	}
}
