package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/keygate-io/keygate/internal/api"
	"github.com/keygate-io/keygate/internal/app"
	iauth "github.com/keygate-io/keygate/internal/auth"
	"github.com/keygate-io/keygate/internal/cache"
	"github.com/keygate-io/keygate/internal/database"
	"github.com/keygate-io/keygate/internal/lock"
	"github.com/keygate-io/keygate/internal/monitoring"
	"github.com/keygate-io/keygate/internal/ratelimit"
	"github.com/keygate-io/keygate/internal/security"
	"github.com/keygate-io/keygate/internal/services"
	"github.com/keygate-io/keygate/internal/store"
	"github.com/keygate-io/keygate/pkg/crypto"
	"github.com/keygate-io/keygate/pkg/logger"
	"github.com/keygate-io/keygate/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("keygate-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	db, err := database.Open(databaseConfig(cfg))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warn("close database", zap.Error(err))
		}
	}()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	redisClient, err := cache.NewRedisClient(cache.RedisConfig{
		Address:  cfg.Redis.Address,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TLS:      cfg.Redis.TLS,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()
	log.Info("redis connected", zap.String("addr", cfg.Redis.Address))

	records, err := store.NewGormStore(db)
	if err != nil {
		return fmt.Errorf("initialise record store: %w", err)
	}

	redisStore, err := cache.NewRedisStore(redisClient)
	if err != nil {
		return fmt.Errorf("initialise redis store: %w", err)
	}

	keyCache, err := cache.NewKeyCache(redisStore, cfg.Keys.CacheTTL)
	if err != nil {
		return fmt.Errorf("initialise key cache: %w", err)
	}

	locker, err := lock.NewRedisLock(redisClient)
	if err != nil {
		return fmt.Errorf("initialise lock service: %w", err)
	}

	validationLimiter, err := ratelimit.NewRedisLimiter(redisClient, ratelimit.Config{
		Limit:  cfg.RateLimit.Validation.Limit,
		Window: cfg.RateLimit.Validation.Window,
	})
	if err != nil {
		return fmt.Errorf("initialise validation limiter: %w", err)
	}

	httpLimiter, err := ratelimit.NewRedisLimiter(redisClient, ratelimit.Config{
		Limit:  cfg.RateLimit.HTTP.Limit,
		Window: cfg.RateLimit.HTTP.Window,
	})
	if err != nil {
		return fmt.Errorf("initialise http limiter: %w", err)
	}

	sink := metrics.NewPrometheusSink()

	publisher, err := services.NewPublisherService(records, argonParams(cfg), sink)
	if err != nil {
		return fmt.Errorf("initialise publisher: %w", err)
	}

	validator, err := services.NewValidatorService(records, keyCache, locker, validationLimiter, sink,
		services.WithLockTTL(cfg.Keys.LockTTL))
	if err != nil {
		return fmt.Errorf("initialise validator: %w", err)
	}

	admin, err := services.NewAdminService(records)
	if err != nil {
		return fmt.Errorf("initialise admin service: %w", err)
	}

	sweeper, err := services.NewSweeper(records, services.WithSweepSchedule(cfg.Keys.SweepSchedule))
	if err != nil {
		return fmt.Errorf("initialise sweeper: %w", err)
	}
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:   cfg.Auth.JWT.Secret,
		Issuer:   cfg.Auth.JWT.Issuer,
		TokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	health := monitoring.NewHealthManager()
	health.RegisterReadiness(monitoring.DatabaseCheck(db, 2*time.Second))
	health.RegisterReadiness(monitoring.RedisCheck(redisStore, 2*time.Second))

	router, err := api.NewRouter(api.Dependencies{
		JWT:         jwtService,
		Publisher:   publisher,
		Validator:   validator,
		Admin:       admin,
		Health:      health,
		HTTPLimiter: httpLimiter,
		Audit:       security.NewAuditService(db, cfg),
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs error
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = multierr.Append(errs, fmt.Errorf("graceful shutdown: %w", err))
	}

	if err, ok := <-serverErr; ok && err != nil {
		errs = multierr.Append(errs, fmt.Errorf("server error: %w", err))
	}
	if errs != nil {
		return errs
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	if strings.TrimSpace(path) == "" {
		return app.LoadConfig()
	}
	return app.LoadConfig(path)
}

func databaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	}

	var auth app.DBAuthConfig
	switch strings.ToLower(cfg.Database.Driver) {
	case "postgres":
		auth = cfg.Database.Postgres
	case "mysql":
		auth = cfg.Database.MySQL
	default:
		return dbCfg
	}

	if auth.Enabled {
		dbCfg.Host = auth.Host
		dbCfg.Port = auth.Port
		dbCfg.Name = auth.Database
		dbCfg.User = auth.Username
		dbCfg.Password = auth.Password
	}
	return dbCfg
}

func argonParams(cfg *app.Config) crypto.Argon2Parameters {
	params := crypto.DefaultArgon2Params()
	if cfg.Keys.Argon2.Time > 0 {
		params.Time = cfg.Keys.Argon2.Time
	}
	if cfg.Keys.Argon2.Memory > 0 {
		params.Memory = cfg.Keys.Argon2.Memory
	}
	if cfg.Keys.Argon2.Threads > 0 {
		params.Threads = cfg.Keys.Argon2.Threads
	}
	return params
}
