// Worker consumes membership events from Kafka and backfills the audit log. Audit rows are keyed by
// event id, so events already recorded by the server are skipped.
// Set DATABASE_URL, KAFKA_BROKERS, MEMBERSHIP_EVENTS_TOPIC and KAFKA_GROUP_ID.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"territory-service/internal/audit"
	auditrepo "territory-service/internal/audit/repository"
	"territory-service/internal/config"
	"territory-service/internal/db"
	"territory-service/internal/events"
	"territory-service/internal/events/kafka"
	"territory-service/internal/logging"
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
		logger.Fatal("worker exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer conn.Close()

	// Events carry no client IP; backfilled rows record "unknown".
	auditLog := audit.NewLogger(auditrepo.NewPostgresRepository(conn), nil, logger)

	consumer := kafka.NewConsumer(brokers, cfg.MembershipEventsTopic, cfg.KafkaGroupID, logger)
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("kafka close", zap.Error(err))
		}
	}()

	logger.Info("consuming membership events",
		zap.String("topic", cfg.MembershipEventsTopic),
		zap.String("group", cfg.KafkaGroupID))
	err = consumer.Run(ctx, func(ctx context.Context, ev events.Event) error {
		return auditLog.Write(ctx, ev)
	})
	logger.Info("worker stopped")
	return err
}
