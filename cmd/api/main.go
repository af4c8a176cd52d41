package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/trade-credit/internal/api"
	"github.com/safar/trade-credit/internal/cache"
	"github.com/safar/trade-credit/internal/config"
	"github.com/safar/trade-credit/internal/database"
	"github.com/safar/trade-credit/internal/logging"
	"github.com/safar/trade-credit/internal/overdue"
	"github.com/safar/trade-credit/internal/purchase"
	"github.com/safar/trade-credit/internal/store"
	"github.com/sirupsen/logrus"
)

func main() {
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

	logger.Info("Connected to database successfully")

	opts := purchase.Options{
		MaxRetries:  cfg.Purchase.MaxRetries,
		LockTimeout: cfg.Purchase.LockTimeout,
		Timeout:     cfg.Purchase.Timeout,
		PaymentTerm: time.Duration(cfg.Purchase.PaymentTermDays) * 24 * time.Hour,
		Now:         time.Now,
		Logger:      logger,
	}

	replay, err := cache.Connect(context.Background(), cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Replay cache unavailable, continuing without it")
	} else if replay != nil {
		defer replay.Close()
		opts.Cache = replay
		logger.WithField("address", cfg.Redis.Address).Info("Replay cache enabled")
	}

	handler := api.NewHandler(
		store.NewLedger(db),
		purchase.NewEngine(db, opts),
		overdue.NewAggregator(db, overdue.Options{Logger: logger}),
		logger,
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler, cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
