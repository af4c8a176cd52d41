package main

import (
	"context"
	"os"
	"time"

	"github.com/safar/trade-credit/internal/config"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/logging"
	"github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		logrus.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		logrus.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Load config: %v", err)
	}

	logger := logging.New(cfg.Log)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	applied, err := database.Migrate(ctx, db, direction)
	for _, name := range applied {
		logger.WithField("migration", name).Info("Ran migration")
	}
	if err != nil {
		logger.Fatalf("Migrate %s: %v", direction, err)
	}

	logger.Infof("Successfully ran %d migration(s) %s", len(applied), direction)
}
