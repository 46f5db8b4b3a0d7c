// SPDX-License-Identifier: MIT

// tenantcast-stub runs the local credential backend: the three issue
// endpoints, the cookie-setting auth endpoint and a gated HLS tree. It exists
// so the client flow can be exercised without a real CDN behind it.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tenantcast/tenantcast/internal/config"
	tclog "github.com/tenantcast/tenantcast/internal/log"
	"github.com/tenantcast/tenantcast/internal/stub"
)

var version = "v0.3.0"

func main() {
	addr := flag.String("listen", config.ParseString("TC_STUB_LISTEN", ":4000"), "listen address")
	apiKey := flag.String("api-key", config.ParseString("TC_STUB_API_KEY", "demo-key"), "accepted bearer key")
	secret := flag.String("secret", config.ParseString("TC_STUB_SECRET", ""), "signing secret for tokens and cookies")
	logLevel := flag.String("log-level", config.ParseString("TC_LOG_LEVEL", "info"), "log level")
	flag.Parse()

	tclog.Configure(tclog.Config{
		Level:   *logLevel,
		Service: "tenantcast-stub",
		Version: version,
	})
	logger := tclog.WithComponent("main")

	signingSecret := *secret
	if signingSecret == "" {
		signingSecret = uuid.NewString()
		logger.Warn().
			Str(tclog.FieldEvent, "stub.secret_generated").
			Msg("no signing secret configured, generated an ephemeral one")
	}

	handler := stub.New(stub.Options{
		APIKey:        *apiKey,
		SigningSecret: []byte(signingSecret),
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str(tclog.FieldEvent, "stub.listen").
			Str("addr", *addr).
			Str("api_key", tclog.MaskSecret(*apiKey)).
			Msg("stub backend listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("stub backend failed")
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
			os.Exit(1)
		}
		logger.Info().Str(tclog.FieldEvent, "stub.stopped").Msg("stub backend stopped")
	}
}
