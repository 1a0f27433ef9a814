package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/nordbak/jotta-rest-proxy/internal/api"
	"github.com/nordbak/jotta-rest-proxy/internal/auth"
	"github.com/nordbak/jotta-rest-proxy/internal/config"
	"github.com/nordbak/jotta-rest-proxy/internal/jfs"
	"github.com/nordbak/jotta-rest-proxy/internal/logx"
	"github.com/nordbak/jotta-rest-proxy/internal/metrics"
	"github.com/nordbak/jotta-rest-proxy/internal/version"
)

// Test seams — overridden in unit tests. Keep signatures in sync with packages.
var (
	loadConfig  func() (config.Config, error)            = config.Load
	newProvider func(config.Config) (auth.Provider, error) = auth.New
	listenServe func(*http.Server) error                 = (*http.Server).ListenAndServe
	exit        func(int)                                = os.Exit
)

const usage = `
Usage:
  gateway                 start the REST gateway
  gateway version | --version | -v
  gateway help    | --help    | -h

Notes:
  - Configuration comes from configs/settings.yml and/or env vars with
    the JOTTA_REST prefix, e.g.:
      JOTTA_REST_LISTEN, JOTTA_REST_JOTTA_USERNAME,
      JOTTA_REST_JOTTA_PASSWORD or JOTTA_REST_JOTTA_PASSWORD_FILE
  - Logging: LOG_LEVEL, LOG_FORMAT
`

// main wires config -> credentials -> backend client -> REST surface.
// Exit codes: 0 success, 1 runtime error, 2 usage error.
func main() {
	_ = godotenv.Load() // best-effort
	logx.InitFromEnv()

	if len(os.Args) > 1 {
		switch strings.ToLower(os.Args[1]) {
		case "version", "--version", "-v":
			fmt.Printf("jotta-rest-proxy %s\n", version.Info())
			exit(0)
		case "help", "--help", "-h":
			fmt.Print(usage)
			exit(0)
		default:
			fmt.Print(usage)
			exit(2)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("config error")
		exit(1)
	}

	prov, err := newProvider(cfg)
	if err != nil {
		log.Error().Err(err).Msg("auth provider init error")
		exit(1)
	}

	ctx := withSignals(context.Background())

	creds, err := prov.Acquire(ctx)
	if err != nil {
		log.Error().Err(err).Str("action", "auth_acquire").Msg("credential acquisition failed")
		exit(1)
	}

	backend := jfs.NewClient(creds.Username, creds.BasicAuth(), jfs.Options{
		APIBase:       cfg.Jotta.APIBase,
		UploadBase:    cfg.Jotta.UploadBase,
		Mount:         cfg.Jotta.Mount,
		UploadTimeout: cfg.Jotta.UploadTimeout,
	})

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.NewServer(backend).Routes(m),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Str("action", "shutdown").Msg("graceful shutdown failed")
		}
	}()

	log.Info().
		Str("action", "listen").
		Str("addr", cfg.Listen).
		Str("user", cfg.Jotta.Username).
		Bool("metrics", cfg.Metrics.Enabled).
		Msg("gateway started")

	if err := listenServe(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Str("action", "listen").Msg("server error")
		exit(1)
	}
	log.Info().Str("action", "shutdown").Msg("gateway stopped")
}

func withSignals(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx
}
