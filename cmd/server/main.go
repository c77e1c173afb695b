// Server runs the territory membership REST API on HTTP_ADDR and grpc.health.v1 on GRPC_ADDR.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"territory-service/internal/audit"
	auditrepo "territory-service/internal/audit/repository"
	"territory-service/internal/config"
	congrepo "territory-service/internal/congregation/repository"
	"territory-service/internal/db"
	"territory-service/internal/db/migrate"
	"territory-service/internal/events"
	"territory-service/internal/events/kafka"
	"territory-service/internal/health"
	identityhandler "territory-service/internal/identity/handler"
	identityservice "territory-service/internal/identity/service"
	"territory-service/internal/logging"
	memberhandler "territory-service/internal/membership/handler"
	memberrepo "territory-service/internal/membership/repository"
	memberservice "territory-service/internal/membership/service"
	"territory-service/internal/policy/engine"
	"territory-service/internal/ratelimit"
	"territory-service/internal/security"
	"territory-service/internal/server"
	"territory-service/internal/server/middleware"
	"territory-service/internal/telemetry/otel"
	userrepo "territory-service/internal/user/repository"
)

const (
	shutdownTimeout = 15 * time.Second
	healthInterval  = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, otel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.OTelServiceName,
		Insecure:    cfg.OTLPInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	instruments, err := otel.NewInstruments(providers.MeterProvider)
	if err != nil {
		return fmt.Errorf("otel instruments: %w", err)
	}

	if cfg.AutoMigrate {
		if err := migrate.Run(cfg.DatabaseURL, migrate.Up, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer conn.Close()

	tokens, err := newTokenProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("tokens: %w", err)
	}

	users := userrepo.NewPostgresRepository(conn)
	congregations := congrepo.NewPostgresRepository(conn)
	members := memberrepo.NewPostgresRepository(conn)
	auditRepo := auditrepo.NewPostgresRepository(conn)
	tx := db.NewTxManager(conn)

	emitters := events.Multi{otel.NewEventEmitter(providers.LoggerProvider)}
	kafkaEmitter := kafka.NewEmitter(cfg.KafkaBrokersList(), cfg.MembershipEventsTopic)
	if kafkaEmitter != nil {
		emitters = append(emitters, kafkaEmitter)
		logger.Info("publishing membership events", zap.String("topic", cfg.MembershipEventsTopic))
	}
	dispatcher := events.NewDispatcher(emitters, logger)

	policy, err := engine.NewCapabilityEvaluator(ctx)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	memberships := memberservice.New(memberservice.Deps{
		Members:               members,
		Congregations:         congregations,
		Tokens:                tokens,
		Tx:                    tx,
		Audit:                 audit.NewLogger(auditRepo, middleware.ClientIP, logger),
		AuditReader:           auditRepo,
		Publisher:             dispatcher,
		Decisions:             instruments,
		Capabilities:          policy,
		Logger:                logger,
		InviteCodeLength:      cfg.InviteCodeLength,
		InviteCodeMaxAttempts: cfg.InviteCodeMaxAttempts,
	})
	auth := identityservice.NewAuthService(users, congregations, memberships, tx, security.NewHasher(cfg.BcryptCost), logger)

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	guards := middleware.Guards{Tokens: tokens, Logger: logger}
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		guards.Limiter = ratelimit.NewRedisLimiter(client, "territory:rl", cfg.RateLimitPerMinute, time.Minute)
	}

	httpServer := server.New(cfg.HTTPAddr, server.NewHandler(server.Deps{
		Handlers: []server.RouteRegistrar{
			identityhandler.NewAuthHandler(auth, logger),
			memberhandler.NewMembershipHandler(memberships, logger),
		},
		Guards:         guards,
		Requests:       instruments,
		AllowedOrigin:  cfg.CORSAllowedOrigin,
		TrustedProxies: proxies,
		Logger:         logger,
	}), logger)

	reporter := health.NewReporter(conn, policy, logger)
	grpcServer := health.NewGRPCServer(reporter)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go reporter.Run(ctx, healthInterval)
	go func() {
		logger.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := dispatcher.Drain(shutdownCtx); err != nil {
		logger.Warn("event drain incomplete", zap.Error(err))
	}
	grpcServer.GracefulStop()
	if kafkaEmitter != nil {
		if err := kafkaEmitter.Close(); err != nil {
			logger.Warn("kafka close", zap.Error(err))
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
	return runErr
}

// newTokenProvider loads the configured key pair. Outside production, missing keys fall back to
// the built-in development pair.
func newTokenProvider(cfg *config.Config, logger *zap.Logger) (*security.TokenProvider, error) {
	privatePEM, publicPEM := cfg.JWTPrivateKey, cfg.JWTPublicKey
	if privatePEM == "" || publicPEM == "" {
		if cfg.IsProduction() {
			return nil, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required")
		}
		logger.Warn("using development signing keys; set JWT_PRIVATE_KEY and JWT_PUBLIC_KEY")
		privatePEM, publicPEM = security.TestKeyPEMs()
	}
	signer, pub, err := security.LoadKeyPair(privatePEM, publicPEM)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}
