package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/davidahmann/roomkey/internal/api"
	"github.com/davidahmann/roomkey/internal/auth"
	"github.com/davidahmann/roomkey/internal/config"
	"github.com/davidahmann/roomkey/internal/escalation"
	"github.com/davidahmann/roomkey/internal/issuance"
	"github.com/davidahmann/roomkey/internal/lease"
	"github.com/davidahmann/roomkey/internal/metrics"
	"github.com/davidahmann/roomkey/internal/slack"
	"github.com/davidahmann/roomkey/internal/token"
)

const shutdownTimeout = 10 * time.Second

type listenFn func(*http.Server) error

// serverFactory returns the server and a cleanup func releasing its backing clients.
type serverFactory func(cfg config.Config, log zerolog.Logger) (*http.Server, func(), error)

var (
	runFn  = run
	fatalf = func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
		os.Exit(1)
	}
)

func main() {
	if err := runFn(env.ToMap(os.Environ()), listenAndServe, newServer); err != nil {
		fatalf("roomkey-gateway: %v", err)
	}
}

func run(environ map[string]string, listen listenFn, factory serverFactory) error {
	cfg, err := config.LoadFrom(environ)
	if err != nil {
		return err
	}
	log := cfg.Log.NewLogger()

	srv, cleanup, err := factory(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info().Str("addr", srv.Addr).Msg("roomkey-gateway listening")
	if err := listen(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// listenAndServe serves until SIGINT or SIGTERM, then drains in-flight requests.
func listenAndServe(srv *http.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newServer(cfg config.Config, log zerolog.Logger) (*http.Server, func(), error) {
	if err := cfg.Video.Validate(); err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	minter := token.NewMinter(token.Credentials{
		AccountSID:   cfg.Video.AccountSID,
		APIKeySID:    cfg.Video.APIKeySID,
		APIKeySecret: cfg.Video.APIKeySecret,
	}, cfg.Video.TokenTTL)
	service := issuance.NewService(minter, log, m)

	h := &api.Handler{
		Auth:   newAuthenticator(cfg.Auth, log),
		Issuer: service,
		Log:    log,
	}

	cleanup := func() {}
	if cfg.Slack.Enabled() {
		client, err := slack.NewClient(cfg.Slack.BotToken, cfg.Slack.APIURL, nil, log)
		if err != nil {
			return nil, nil, err
		}
		locker, closeLease := newLease(cfg.Lease, log)
		cleanup = closeLease

		h.Slack = &slack.InteractionHandler{
			SigningSecret: cfg.Slack.SigningSecret,
			Escalator: &escalation.Orchestrator{
				Issuer:      service,
				Sender:      client,
				Surface:     client,
				Notifier:    client,
				JoinBaseURL: cfg.JoinBaseURL,
				Lease:       locker,
				LeaseTTL:    cfg.Lease.TTL,
				Log:         log,
				Metrics:     m,
			},
			Log: log,
		}
	}

	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h, api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst), m),
		ReadHeaderTimeout: 5 * time.Second,
	}, cleanup, nil
}

func newAuthenticator(cfg config.AuthConfig, log zerolog.Logger) *auth.MultiAuthenticator {
	a := &auth.MultiAuthenticator{
		DevToken:       cfg.DevToken,
		AllowAnonymous: cfg.AllowAnonymous,
	}
	if cfg.OIDCEnabled() {
		a.OIDC = auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCAudience, cfg.OIDCJWKSURL)
	}
	switch {
	case a.AllowAnonymous:
		log.Warn().Msg("caller verification disabled: ROOMKEY_ALLOW_ANONYMOUS is set")
	case a.DevToken == "" && a.OIDC == nil:
		log.Warn().Msg("no caller verification configured: every issuance request will be rejected")
	}
	return a
}

// newLease returns nil when leasing is disabled. A Redis address makes the
// lease shared across gateway replicas.
func newLease(cfg config.LeaseConfig, log zerolog.Logger) (lease.Locker, func()) {
	if cfg.TTL <= 0 {
		return nil, func() {}
	}
	if cfg.RedisAddr == "" {
		return lease.NewMemory(), func() {}
	}
	r := lease.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), "")
	return r, func() {
		if err := r.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis lease client")
		}
	}
}
