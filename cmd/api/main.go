package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	httptransport "github.com/spec-kit/recipe-service/internal/api/http"
	"github.com/spec-kit/recipe-service/internal/api/http/handlers"
	"github.com/spec-kit/recipe-service/internal/auth"
	"github.com/spec-kit/recipe-service/internal/config"
	"github.com/spec-kit/recipe-service/internal/events"
	"github.com/spec-kit/recipe-service/internal/observability"
	"github.com/spec-kit/recipe-service/internal/persistence"
	"github.com/spec-kit/recipe-service/internal/repository"
	"github.com/spec-kit/recipe-service/internal/service"
	"github.com/spec-kit/recipe-service/internal/validation"
	"github.com/spec-kit/recipe-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	audit := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(audit, worker.AuditSinks{
		Logger:       logger.Named("audit"),
		Redis:        redis.Client,
		Stream:       cfg.Auth.AuditStream,
		StreamMaxLen: cfg.Auth.AuditStreamMaxLen,
	})

	keys, err := loadKeyRing(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to load signing key", zap.Error(err))
	}
	if cfg.Auth.JWTSecretFile != "" {
		watcher, err := auth.NewKeyWatcher(cfg.Auth.JWTSecretFile, keys, logger, func(key *auth.SigningKey) {
			_ = audit.Publish(ctx, events.NewEvent(events.EventSigningKeyRotated, "", map[string]string{"kid": key.ID}))
		})
		if err != nil {
			logger.Fatal("failed to watch signing key", zap.Error(err))
		}
		go watcher.Run(ctx)
	}

	var credentials repository.CredentialStore
	if pg.Enabled() {
		credentials = repository.NewCredentialRepository(pg.PoolHandle())
	} else {
		credentials = repository.NewMemoryCredentialRepository()
	}
	credentials = repository.NewCoalescingCredentialRepository(credentials, cfg.Auth.StoreTimeout())

	if cfg.Auth.SeedFile != "" {
		seedCredentials(ctx, cfg.Auth, credentials, logger)
	}

	codec := auth.NewTokenCodec(keys, cfg.Auth.Issuer)
	authService, err := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		Credentials:   credentials,
		LoginAttempts: repository.NewLoginAttemptRepository(redis.Client, cfg.Auth.MaxFailedLogins, cfg.Auth.LockoutWindow()),
		Codec:         codec,
		Audit:         audit,
		Recorder:      metrics,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("failed to build auth service", zap.Error(err))
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:        cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.CORS.Origins(),
	})

	readiness := map[string]handlers.Pinger{"redis": redis}
	if pg.Enabled() {
		readiness["postgres"] = pg
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Auth:          handlers.NewAuthHandler(authService, validation.New()),
		Users:         handlers.NewUsersHandler(authService),
		Authenticator: auth.NewAuthenticator(codec, logger, metrics),
		Gate:          auth.NewGate(logger, audit, metrics),
		LoginLimiter:  httptransport.NewRateLimiter(ctx, rate.Limit(cfg.Auth.LoginRatePerSecond), cfg.Auth.LoginBurst),
		Metrics:       metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func loadKeyRing(cfg config.AuthConfig) (*auth.KeyRing, error) {
	secret := []byte(cfg.JWTSecret)
	if cfg.JWTSecretFile != "" {
		fromFile, err := auth.ReadSecretFile(cfg.JWTSecretFile)
		if err != nil {
			return nil, err
		}
		secret = fromFile
	}
	return auth.NewKeyRing(secret)
}

func seedCredentials(ctx context.Context, cfg config.AuthConfig, store repository.CredentialStore, logger *zap.Logger) {
	seeds, err := repository.LoadCredentialSeeds(cfg.SeedFile)
	if err != nil {
		logger.Fatal("failed to load credential seeds", zap.Error(err))
	}
	created, err := repository.SeedCredentials(ctx, store, seeds, func(password string) (string, error) {
		return auth.HashPassword(password, cfg.BcryptCost)
	}, logger)
	if err != nil {
		logger.Fatal("failed to seed credentials", zap.Error(err))
	}
	logger.Info("credentials seeded", zap.Int("created", created), zap.Int("total", len(seeds)))
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
