package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/mindnest/auth-service/internal/api"
	"github.com/mindnest/auth-service/internal/api/handler"
	"github.com/mindnest/auth-service/internal/core/ports"
	"github.com/mindnest/auth-service/internal/core/service"
	"github.com/mindnest/auth-service/internal/infrastructure/db"
	"github.com/mindnest/auth-service/internal/infrastructure/db/memory"
	mongostore "github.com/mindnest/auth-service/internal/infrastructure/db/mongo"
	"github.com/mindnest/auth-service/internal/infrastructure/db/postgres"
	redisstore "github.com/mindnest/auth-service/internal/infrastructure/db/redis"
	"github.com/mindnest/auth-service/internal/infrastructure/propagation"
	"github.com/mindnest/auth-service/internal/infrastructure/ratelimit"
	"github.com/mindnest/auth-service/internal/infrastructure/security"
	"github.com/mindnest/auth-service/internal/pkg/config"
	"github.com/mindnest/auth-service/pkg/logger"
)

const janitorInterval = time.Minute

// accountStore is a credential store backend together with its health probe.
type accountStore interface {
	ports.AccountRepository
	db.Pinger
}

func main() {
	loadLocalEnv()

	cfg, err := config.Load(context.Background(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "auth-service",
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("auth service stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	proxies, err := cfg.TrustedProxyRanges()
	if err != nil {
		return err
	}

	// --- Credential store ---
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer closeStore()

	checks := map[string]handler.HealthCheck{"store": store.Ping}

	// --- Rate limiting ---
	var (
		limitStore  ratelimit.Store
		stopJanitor = func() {}
	)
	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("init rate limit store: %w", err)
		}
		defer rdb.Close()
		rl := redisstore.NewRateLimitStore(rdb)
		limitStore = rl
		checks["redis"] = rl.Ping
		log.Info().Str("addr", cfg.Redis.Addr).Msg("rate limits backed by redis")
	default:
		mem := ratelimit.NewMemoryStore()
		janitorCtx, cancelJanitor := context.WithCancel(context.Background())
		go mem.RunJanitor(janitorCtx, janitorInterval)
		limitStore, stopJanitor = mem, cancelJanitor
	}
	defer stopJanitor()

	general := ratelimit.NewLimiter(ratelimit.Policy{
		Name: ratelimit.GeneralPolicy.Name, Limit: cfg.RateLimit.Max, Window: cfg.RateLimit.Window,
	}, limitStore)
	admin := ratelimit.NewLimiter(ratelimit.Policy{
		Name: ratelimit.AdminPolicy.Name, Limit: cfg.RateLimit.AdminMax, Window: cfg.RateLimit.Window,
	}, limitStore)

	// --- Security ---
	tokens, err := security.NewTokenEngine(
		cfg.Auth.JWTSecret,
		cfg.Auth.JWTExpiresIn.Duration,
		security.WithExpiresInLabel(cfg.Auth.JWTExpiresIn.String()),
	)
	if err != nil {
		return fmt.Errorf("init token engine: %w", err)
	}
	hasher := security.NewBcryptHasher(cfg.Auth.BcryptRounds)

	// --- Identity propagation ---
	dispatcher := propagation.NewDispatcher(propagation.Config{
		Workers:   cfg.Propagation.Workers,
		QueueSize: cfg.Propagation.QueueSize,
		Timeout:   cfg.Propagation.Timeout,
		Targets: []propagation.Target{
			propagation.UserServiceTarget(cfg.Propagation.UserServiceURL),
			propagation.TherapistServiceTarget(cfg.Propagation.TherapistServiceURL),
		},
	}, log)
	dispatcher.Start(context.Background())

	// --- HTTP ---
	svc := service.NewAuthService(store, hasher, tokens, dispatcher, log)
	e := api.NewRouter(api.Dependencies{
		Service:        svc,
		Tokens:         tokens,
		GeneralLimiter: general,
		AdminLimiter:   admin,
		HealthChecks:   checks,
		Log:            log,
		Debug:          cfg.IsDevelopment(),
		RoutePrefix:    cfg.RoutePrefix,
		TrustedProxies: proxies,
	})

	// Losing the store for good ends the process.
	var lostErr error
	go db.Watch(ctx, store, db.WatchConfig{}, log, func(err error) {
		lostErr = err
		cancel()
	})

	serverErr := make(chan error, 1)
	go func() {
		addr := net.JoinHostPort("", cfg.Port)
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.Store.Driver).Msg("auth service listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pending propagations abandoned")
	}

	if lostErr != nil {
		return lostErr
	}
	log.Info().Msg("auth service stopped cleanly")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (accountStore, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		client, database, err := mongostore.Connect(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, nil, err
		}
		repo := mongostore.NewAccountRepository(database)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongo")
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil

	case config.DriverPostgres:
		repo, err := postgres.NewAccountRepository(ctx, postgres.Config{
			URL:      cfg.Postgres.URL,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("connected to postgres")
		return repo, repo.Close, nil

	default:
		log.Warn().Msg("using in-memory credential store; accounts are lost on restart")
		return memory.NewAccountRepository(), func() {}, nil
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found; relying on existing environment")
	}
}
