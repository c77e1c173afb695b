// seed inserts development sample data from the embedded fixture.yaml.
// Idempotent: congregations whose invite code exists and users whose email exists are skipped.
package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"go.uber.org/zap"

	"territory-service/internal/config"
	congrepo "territory-service/internal/congregation/repository"
	"territory-service/internal/db"
	"territory-service/internal/logging"
	"territory-service/internal/security"
	userrepo "territory-service/internal/user/repository"
)

//go:embed fixture.yaml
var fixtureYAML []byte

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
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	fx, err := parseFixture(fixtureYAML)
	if err != nil {
		logger.Fatal("fixture", zap.Error(err))
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	s := &seeder{
		users:         userrepo.NewPostgresRepository(conn),
		congregations: congrepo.NewPostgresRepository(conn),
		tx:            db.NewTxManager(conn),
		hasher:        security.NewHasher(cfg.BcryptCost),
		logger:        logger,
	}
	res, err := s.apply(ctx, fx)
	if err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
	logger.Info("seed completed",
		zap.Int("congregations_created", res.Congregations),
		zap.Int("users_created", res.Users),
		zap.Int("skipped", res.Skipped))
	fmt.Printf("Login with any fixture email / %s\n", fx.Password)
}
