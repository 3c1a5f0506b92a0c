// Command weddary runs the per-event mail-connection service.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weddary/weddary/internal/cache"
	"github.com/weddary/weddary/internal/config"
	"github.com/weddary/weddary/internal/credential"
	"github.com/weddary/weddary/internal/http/handlers"
	mw "github.com/weddary/weddary/internal/http/middlewares"
	"github.com/weddary/weddary/internal/http/router"
	mailsvc "github.com/weddary/weddary/internal/mail"
	"github.com/weddary/weddary/internal/metrics"
	"github.com/weddary/weddary/internal/oauth/flow"
	"github.com/weddary/weddary/internal/oauth/httpclient"
	"github.com/weddary/weddary/internal/oauth/provider"
	"github.com/weddary/weddary/internal/observability/logger"
	"github.com/weddary/weddary/internal/rate"
	"github.com/weddary/weddary/internal/security/oauthstate"
	"github.com/weddary/weddary/internal/security/secretbox"
	"github.com/weddary/weddary/internal/store/memory"
	"github.com/weddary/weddary/internal/store/pg"
	migrations "github.com/weddary/weddary/migrations/postgres"
)

func main() {
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "weddary",
		Short: "Per-event Gmail/Outlook mail-connection service",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}

	encCmd := &cobra.Command{
		Use:   "enc <plaintext>",
		Short: "Encrypt a secret with the configured master key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return encrypt(configPath, args[0])
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), configPath)
		},
	}

	root.AddCommand(serveCmd, encCmd, migrateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: "info"})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	masterKey, err := loadMasterKey(cfg, log)
	if err != nil {
		return err
	}
	box, err := secretbox.New(masterKey)
	if err != nil {
		return err
	}
	signer, err := oauthstate.NewSignerFromMaster(masterKey, cfg.StateTTLDuration())
	if err != nil {
		return err
	}

	// Store: postgres by default, in-memory for local development.
	var (
		store  flowStore
		pinger handlers.Pinger
	)
	switch cfg.Storage.Driver {
	case "memory":
		store = memory.New()
		log.Warn("using in-memory credential store, data is lost on restart")
	default:
		lifetime := time.Duration(0)
		if cfg.Storage.Postgres.ConnMaxLifetime != "" {
			lifetime, _ = time.ParseDuration(cfg.Storage.Postgres.ConnMaxLifetime)
		}
		pgStore, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{
			MaxConns:        int32(cfg.Storage.Postgres.MaxConns),
			MinConns:        int32(cfg.Storage.Postgres.MinConns),
			ConnMaxLifetime: lifetime,
		})
		if err != nil {
			return err
		}
		defer pgStore.Close()
		store = pgStore
		pinger = pgStore
	}

	// Consumed-state set and rate limiters: redis when configured.
	var (
		consumed  flow.ConsumedStates
		mkLimiter func(limit int, window time.Duration) rate.Limiter
	)
	if cfg.Cache.Kind == "redis" {
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Cache.Redis.Addr, DB: cfg.Cache.Redis.DB})
		defer func() { _ = client.Close() }()
		consumed = cache.NewRedisConsumed(client, cfg.Cache.Redis.Prefix)
		mkLimiter = func(limit int, window time.Duration) rate.Limiter {
			return rate.NewRedisLimiter(client, cfg.Cache.Redis.Prefix, limit, window)
		}
		log.Info("redis cache enabled", logger.Any("addr", cfg.Cache.Redis.Addr))
	} else {
		consumed = cache.NewMemoryConsumed()
		mkLimiter = func(limit int, window time.Duration) rate.Limiter {
			return rate.NewMemoryLimiter(limit, window)
		}
	}

	svc := flow.New(flow.Deps{
		Store:    store,
		Events:   store,
		Box:      box,
		States:   signer,
		HTTP:     httpclient.New(),
		Consumed: consumed,
		Defaults: map[provider.ID]flow.ClientDefaults{
			provider.Gmail: {
				ClientID:     cfg.Providers.Gmail.ClientID,
				ClientSecret: cfg.Providers.Gmail.ClientSecret,
				RedirectURI:  cfg.Providers.Gmail.RedirectURI,
			},
			provider.Outlook: {
				ClientID:     cfg.Providers.Outlook.ClientID,
				ClientSecret: cfg.Providers.Outlook.ClientSecret,
				RedirectURI:  cfg.Providers.Outlook.RedirectURI,
			},
		},
		AllowedRedirectHosts: cfg.Security.AllowedRedirectHosts,
		ExpiryBuffer:         cfg.TokenExpiryBufferDuration(),
	})

	sender := mailsvc.New(mailsvc.Deps{Flow: svc, HTTP: httpclient.New()})

	if err := metrics.Register(nil); err != nil {
		return err
	}

	deps := router.Deps{
		OAuth:  handlers.NewOAuthHandlers(svc),
		Mail:   handlers.NewMailHandlers(sender),
		Health: handlers.NewHealthHandlers(pinger),
		AdminGate: mw.AdminGateConfig{
			Secret:  []byte(cfg.Admin.Secret),
			Enforce: cfg.Admin.Enforce,
		},
	}
	if cfg.Rate.Enabled {
		deps.AuthorizeLimiter = mkLimiter(cfg.Rate.Authorize.Limit, cfg.Rate.Authorize.WindowDuration())
		deps.CallbackLimiter = mkLimiter(cfg.Rate.Callback.Limit, cfg.Rate.Callback.WindowDuration())
		deps.RefreshLimiter = mkLimiter(cfg.Rate.Refresh.Limit, cfg.Rate.Refresh.WindowDuration())
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router.New(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.Any("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// flowStore is the store shape the orchestrator needs; both pg and memory
// stores satisfy it.
type flowStore interface {
	credential.Store
	credential.EventResolver
}

// loadMasterKey returns the configured master key, or a random ephemeral one
// in dev so the service still comes up without configuration.
func loadMasterKey(cfg *config.Config, log *zap.Logger) ([]byte, error) {
	if cfg.Security.MasterKey != "" {
		return cfg.MasterKeyBytes()
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	log.Warn("no master key configured, using an ephemeral key; stored credentials will not survive a restart")
	return key, nil
}

func migrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: "info"})
	defer func() { _ = logger.Sync() }()

	store, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{})
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Migrate(ctx, migrations.FS, migrations.Dir)
}

func encrypt(configPath, plaintext string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	masterKey, err := cfg.MasterKeyBytes()
	if err != nil {
		return err
	}
	box, err := secretbox.New(masterKey)
	if err != nil {
		return err
	}
	envelope, err := box.Encrypt(plaintext)
	if err != nil {
		return err
	}
	fmt.Println(envelope)
	return nil
}
