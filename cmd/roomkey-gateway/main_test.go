package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/davidahmann/roomkey/internal/config"
	"github.com/davidahmann/roomkey/internal/lease"
)

func validConfig() config.Config {
	return config.Config{
		ListenAddr:  ":9999",
		JoinBaseURL: "https://video.example.test/room",
		Video: config.VideoConfig{
			AccountSID:   "AC1",
			APIKeySID:    "SK1",
			APIKeySecret: "secret",
			TokenTTL:     time.Hour,
		},
		Auth: config.AuthConfig{DevToken: "test-token"},
	}
}

func TestNewServer(t *testing.T) {
	srv, cleanup, err := newServer(validConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer cleanup()
	if srv.Addr != ":9999" {
		t.Fatalf("expected addr %s, got %s", ":9999", srv.Addr)
	}

	form := url.Values{"taskSid": {"TK1"}, "Token": {"test-token"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/video-token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	srv.Handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "Room-TK1") {
		t.Fatalf("unexpected response %d %s", res.Code, res.Body.String())
	}

	// Slack is not configured.
	req = httptest.NewRequest(http.MethodPost, "/v1/slack/interactions", nil)
	res = httptest.NewRecorder()
	srv.Handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", res.Code)
	}
}

func TestNewServerMissingSigningMaterial(t *testing.T) {
	cfg := validConfig()
	cfg.Video.APIKeySecret = ""
	if _, _, err := newServer(cfg, zerolog.Nop()); err == nil || !strings.Contains(err.Error(), "ROOMKEY_API_KEY_SECRET") {
		t.Fatalf("expected deployment error, got %v", err)
	}
}

func TestNewServerWithSlackAndRedisLease(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := validConfig()
	cfg.Slack = config.SlackConfig{BotToken: "xoxb-test", SigningSecret: "shh", APIURL: "http://127.0.0.1:1/"}
	cfg.Lease = config.LeaseConfig{RedisAddr: mr.Addr(), TTL: time.Minute}
	cfg.RateLimit = config.RateLimitConfig{RPS: 1, Burst: 1}

	srv, cleanup, err := newServer(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/v1/slack/interactions", strings.NewReader("payload=%7B%7D"))
	res := httptest.NewRecorder()
	srv.Handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned interaction, got %d", res.Code)
	}
}

func TestNewLease(t *testing.T) {
	if l, _ := newLease(config.LeaseConfig{}, zerolog.Nop()); l != nil {
		t.Fatalf("expected no lease when ttl is zero")
	}
	l, cleanup := newLease(config.LeaseConfig{TTL: time.Minute}, zerolog.Nop())
	cleanup()
	if _, ok := l.(*lease.Memory); !ok {
		t.Fatalf("expected memory lease, got %T", l)
	}

	mr := miniredis.RunT(t)
	l, cleanup = newLease(config.LeaseConfig{TTL: time.Minute, RedisAddr: mr.Addr()}, zerolog.Nop())
	defer cleanup()
	if _, ok := l.(*lease.Redis); !ok {
		t.Fatalf("expected redis lease, got %T", l)
	}
}

func TestNewAuthenticator(t *testing.T) {
	a := newAuthenticator(config.AuthConfig{OIDCIssuer: "https://idp.example.test"}, zerolog.Nop())
	if a.OIDC == nil || a.OIDC.JWKSURL != "https://idp.example.test/.well-known/jwks.json" {
		t.Fatalf("expected oidc authenticator with default jwks url, got %+v", a.OIDC)
	}

	a = newAuthenticator(config.AuthConfig{AllowAnonymous: true}, zerolog.Nop())
	if !a.AllowAnonymous || a.OIDC != nil {
		t.Fatalf("unexpected authenticator %+v", a)
	}
}

func TestRunDefaults(t *testing.T) {
	var got config.Config
	factory := func(cfg config.Config, _ zerolog.Logger) (*http.Server, func(), error) {
		got = cfg
		return &http.Server{Addr: cfg.ListenAddr}, func() {}, nil
	}
	listen := func(_ *http.Server) error { return http.ErrServerClosed }

	if err := run(map[string]string{}, listen, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ListenAddr != ":8080" {
		t.Fatalf("expected default addr, got %q", got.ListenAddr)
	}
}

func TestRunReadsEnvironment(t *testing.T) {
	cleaned := false
	factory := func(cfg config.Config, _ zerolog.Logger) (*http.Server, func(), error) {
		if cfg.ListenAddr != ":8088" || cfg.Video.AccountSID != "AC9" {
			t.Fatalf("unexpected config %+v", cfg)
		}
		return &http.Server{Addr: cfg.ListenAddr}, func() { cleaned = true }, nil
	}
	listen := func(_ *http.Server) error { return http.ErrServerClosed }

	environ := map[string]string{"ROOMKEY_LISTEN_ADDR": ":8088", "ROOMKEY_ACCOUNT_SID": "AC9"}
	if err := run(environ, listen, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cleaned {
		t.Fatalf("expected cleanup to run")
	}
}

func TestRunError(t *testing.T) {
	factory := func(cfg config.Config, _ zerolog.Logger) (*http.Server, func(), error) {
		return &http.Server{Addr: ":8080"}, func() {}, nil
	}
	listen := func(_ *http.Server) error { return errors.New("listen failed") }
	if err := run(map[string]string{}, listen, factory); err == nil {
		t.Fatalf("expected error")
	}

	failing := func(config.Config, zerolog.Logger) (*http.Server, func(), error) {
		return nil, nil, errors.New("bad config")
	}
	if err := run(map[string]string{}, listen, failing); err == nil {
		t.Fatalf("expected factory error")
	}

	if err := run(map[string]string{"ROOMKEY_TOKEN_TTL": "soon"}, listen, factory); err == nil {
		t.Fatalf("expected config parse error")
	}
}

func TestListenAndServeInvalidAddr(t *testing.T) {
	if err := listenAndServe(&http.Server{Addr: "127.0.0.1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMainNoError(t *testing.T) {
	oldRun := runFn
	oldFatal := fatalf
	defer func() {
		runFn = oldRun
		fatalf = oldFatal
	}()

	runFn = func(map[string]string, listenFn, serverFactory) error { return nil }

	called := false
	fatalf = func(string, ...any) { called = true }

	main()
	if called {
		t.Fatalf("unexpected fatal call")
	}
}

func TestMainError(t *testing.T) {
	oldRun := runFn
	oldFatal := fatalf
	defer func() {
		runFn = oldRun
		fatalf = oldFatal
	}()

	runFn = func(map[string]string, listenFn, serverFactory) error { return errors.New("boom") }

	called := false
	fatalf = func(string, ...any) { called = true }

	main()
	if !called {
		t.Fatalf("expected fatal call")
	}
}
