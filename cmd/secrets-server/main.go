// Command secrets-server runs the shared secrets web application.
//
// Configuration comes from the environment (and an optional .env file); see
// secrets.Config for the variables.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	secrets "github.com/panyam/secrets"
	oa2 "github.com/panyam/secrets/oauth2"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := secrets.LoadConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	backend, err := openBackend(startCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer backend.close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	policy := secrets.DefaultSignupPolicy()
	policy.MinPasswordLength = cfg.PasswordMinLength

	app, err := secrets.NewApp(secrets.AppConfig{
		Store:           backend.identities,
		SessionSecret:   cfg.SessionSecret,
		SessionStore:    backend.sessions,
		SessionLifetime: cfg.SessionLifetime,
		CookieSecure:    cfg.CookieSecure,
		Policy:          policy,
		Providers:       providers(cfg),
		Registry:        registry,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "url", cfg.BaseURL, "store", cfg.Store)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("server stopped gracefully")
	}
	return nil
}

// providers mounts only the OAuth providers that have credentials
func providers(cfg *secrets.Config) []secrets.OAuthProvider {
	var out []secrets.OAuthProvider
	if cfg.GoogleClientID != "" {
		out = append(out, oa2.NewGoogleOAuth2(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.CallbackURL(secrets.ProviderGoogle)))
	} else {
		slog.Info("google login disabled, CLIENT_ID not set")
	}
	if cfg.FacebookClientID != "" {
		out = append(out, oa2.NewFacebookOAuth2(cfg.FacebookClientID, cfg.FacebookClientSecret, cfg.CallbackURL(secrets.ProviderFacebook)))
	} else {
		slog.Info("facebook login disabled, APP_ID not set")
	}
	return out
}
