package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/authcore/internal/auth/http"
	"github.com/aussiebroadwan/authcore/internal/auth/service"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/aussiebroadwan/authcore/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/authcore/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/authcore/pkg/clockx"
	"github.com/aussiebroadwan/authcore/pkg/cryptox"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/ratelimit"
	"github.com/aussiebroadwan/authcore/pkg/rbac"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application owns the auth core and its operational surface.
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clockx.Clock

	db         store.Store
	redis      *redis.Client
	keyManager *jwtx.KeyManager

	// Auth is the account flow entry point for embedding callers.
	Auth *service.AuthService

	authLimiter  ratelimit.Limiter
	httpLimiter  ratelimit.Limiter
	housekeeping *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New builds the application and all of its dependencies.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg:   cfg,
		clock: clockx.System{},
		logger: slogx.New(slogx.Config{
			Service: "authcore",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
		}),
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	keyManager, err := InitAuthKeys(cfg, app.clock, app.logger)
	if err != nil {
		app.closeBackends()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	if err := app.initLimiters(ctx); err != nil {
		app.closeBackends()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		app.closeBackends()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeeping.Stop()
			app.closeBackends()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains the HTTP server, stops housekeeping and closes backends.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if err := app.closeBackends(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) closeBackends() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initDatabase opens the configured driver and applies migrations.
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.Store.Driver {
	case DriverPostgres:
		db, err = postgres.NewStore(ctx, app.cfg.Store.DSN, postgres.DefaultConfig)
	default:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.Store.DSN)
		db, err = sqlite.NewStore(dsn)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.Store.Driver)
	return nil
}

// initLimiters builds the credential limiter from the configured budget and
// a looser one for the public HTTP endpoints.
func (app *Application) initLimiters(ctx context.Context) error {
	budget := ratelimit.Config{
		Requests: app.cfg.Limits.Requests,
		Window:   app.cfg.Limits.Window,
	}

	if app.cfg.Limits.Backend != LimiterRedis {
		app.authLimiter = ratelimit.NewLocal(budget)
		app.httpLimiter = ratelimit.NewLocal(ratelimit.Moderate)
		return nil
	}

	client, err := ratelimit.Connect(ctx, app.cfg.Limits.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect rate limit backend: %w", err)
	}
	app.redis = client
	app.authLimiter = ratelimit.NewRedis(client, "authcore:rl:auth", budget)
	app.httpLimiter = ratelimit.NewRedis(client, "authcore:rl:http", ratelimit.Moderate)

	app.logger.Info("distributed rate limiting enabled")
	return nil
}

// initServices wires the auth core.
func (app *Application) initServices() error {
	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	if app.cfg.PepperFile == "" {
		app.logger.Warn("ephemeral pepper: stored password hashes will not verify after a restart")
	}

	sealer, err := cryptox.LoadSealer(app.cfg.MasterKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load master key: %w", err)
	}
	if app.cfg.MasterKeyFile == "" {
		app.logger.Warn("ephemeral master key: MFA secrets will not open after a restart")
	}

	resolver, err := rbac.NewResolver(rbac.Permissions)
	if err != nil {
		return fmt.Errorf("failed to build role table: %w", err)
	}

	hasher := cryptox.NewPasswordHasher(pepper, app.cfg.HashConcurrency, cryptox.DefaultArgon2Params)

	app.Auth = &service.AuthService{
		Store:    app.db,
		Hasher:   hasher,
		Resolver: resolver,
		Tokens: service.NewTokenService(app.keyManager, resolver,
			app.cfg.Issuer, app.cfg.Audience, app.cfg.Tokens.AccessTTL, app.clock),
		Sessions: &service.RefreshTokenService{
			Store: app.db,
			TTL:   app.cfg.Tokens.RefreshTTL,
			Clock: app.clock,
		},
		MFA: &service.MFAService{
			Store:  app.db,
			Sealer: sealer,
			Issuer: app.cfg.Issuer,
			Clock:  app.clock,
		},
		Resets: &service.PasswordResetService{
			Store:  app.db,
			Hasher: hasher,
			TTL:    app.cfg.Tokens.ResetTTL,
			Clock:  app.clock,
		},
		Limiter:       app.authLimiter,
		RememberMeTTL: app.cfg.Tokens.RememberMeTTL,
		Clock:         app.clock,
	}

	app.housekeeping = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.clock,
	)
	return nil
}

// initHTTP builds the router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Keys:     app.keyManager.KeySet(),
		Verifier: app.Auth.Tokens,
		Version:  BuildVersion,
		DB:       app.db,
		Users:    app.Auth,
		Limiter:  app.httpLimiter,
		Logger:   app.logger,
	})
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
