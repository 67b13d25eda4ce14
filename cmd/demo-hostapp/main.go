// Command demo-hostapp is a small site that mounts siteauth and protects a
// route with it. It exists to show the wiring end to end:
//
//	go run ./cmd/demo-hostapp -config cmd/demo-hostapp/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sa "github.com/panyam/siteauth"
	"github.com/panyam/siteauth/providers"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := newLogger(cfg, os.Stdout)

	adapter, cleanup, err := buildAdapter(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	auth, err := buildAuth(cfg, adapter, logger)
	if err != nil {
		logger.Error("failed to configure auth", "error", err)
		os.Exit(1)
	}

	if sweeper, ok := adapter.(sa.ExpiredSessionSweeper); ok && cfg.Auth.SweepInterval > 0 {
		go sweepSessions(ctx, sweeper, cfg.Auth.SweepInterval, logger)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(cfg, auth, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("demo host listening", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func newLogger(cfg *Config, out io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// buildProviders turns the enabled provider sections into presets
func buildProviders(cfg *Config) ([]sa.Provider, error) {
	var out []sa.Provider
	oauth := func(c *OAuthConfig, preset func(sa.Provider) sa.Provider) {
		if c != nil {
			out = append(out, preset(sa.Provider{ClientID: c.ClientID, ClientSecret: c.ClientSecret, Scopes: c.Scopes}))
		}
	}
	oauth(cfg.Providers.Google, providers.Google)
	oauth(cfg.Providers.GitHub, providers.GitHub)
	oauth(cfg.Providers.Discord, providers.Discord)

	if cfg.Providers.Email {
		out = append(out, providers.Email(sa.Provider{}))
	}

	if len(cfg.Providers.Credentials) > 0 {
		type account struct {
			hash    string
			profile sa.Profile
		}
		users := map[string]account{}
		for _, u := range cfg.Providers.Credentials {
			hash, err := sa.HashPassword(u.Password)
			if err != nil {
				return nil, err
			}
			name := u.Name
			if name == "" {
				name = u.Username
			}
			users[u.Username] = account{hash: hash, profile: sa.Profile{ID: "demo:" + u.Username, Name: name, Email: u.Email}}
		}
		out = append(out, providers.Credentials(sa.Provider{
			Authorize: sa.BcryptAuthorizer(func(ctx context.Context, username string) (string, *sa.Profile, error) {
				acct, ok := users[username]
				if !ok {
					return "", nil, nil
				}
				profile := acct.profile
				return acct.hash, &profile, nil
			}),
		}))
	}
	return out, nil
}

func buildAuth(cfg *Config, adapter sa.Adapter, logger *slog.Logger) (*sa.SiteAuth, error) {
	provs, err := buildProviders(cfg)
	if err != nil {
		return nil, err
	}
	return sa.New(sa.Config{
		BaseURL:       cfg.Auth.BaseURL,
		BasePath:      cfg.Auth.BasePath,
		Secret:        cfg.Auth.Secret,
		Providers:     provs,
		Adapter:       adapter,
		Mailer:        &sa.ConsoleMailer{},
		SessionMode:   sa.SessionMode(cfg.Auth.SessionMode),
		SessionMaxAge: cfg.Auth.SessionMaxAge,
		Logger:        logger,
	})
}

func sweepSessions(ctx context.Context, sweeper sa.ExpiredSessionSweeper, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := sweeper.CleanupExpiredSessions(ctx, now)
			if err != nil {
				logger.Error("sweeping expired sessions", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("swept expired sessions", "count", removed)
			}
		}
	}
}
