package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arnold/gutgoals-api/internal/goals"
	"github.com/arnold/gutgoals-api/internal/handlers"
	"github.com/arnold/gutgoals-api/internal/metrics"
	"github.com/arnold/gutgoals-api/internal/models"
	"github.com/arnold/gutgoals-api/internal/routes"
	"github.com/arnold/gutgoals-api/internal/services"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB()
	if err != nil {
		return err
	}

	backend, closeBackend, err := openBackend(ctx, db)
	if err != nil {
		return err
	}
	defer closeBackend()

	m := metrics.New()
	manager := goals.NewManager(backend, goalOptions(goals.WithObserver(m))...)

	hub := handlers.NewHub(log)
	push := services.NewPush(ctx, cfg.FCMServiceAccount, db, log)
	scheduler := services.NewScheduler(manager, log, hub, push)

	var userIDs []uuid.UUID
	if err := db.Model(&models.User{}).Pluck("id", &userIDs).Error; err != nil {
		log.Warn("Failed to list users for goal schedule", zap.Error(err))
	}
	scheduler.Resume(ctx, userIDs)

	app := fiber.New(fiber.Config{
		AppName:               "gutgoals",
		DisableStartupMessage: true,
	})
	routes.Setup(app, &handlers.Handler{
		DB:        db,
		Goals:     manager,
		Scheduler: scheduler,
		Hub:       hub,
		JWTSecret: cfg.JWTSecret,
		Log:       log,
	}, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening",
			zap.String("port", cfg.Port),
			zap.String("kv_backend", cfg.KVBackend),
			zap.Bool("push", push.Enabled()),
		)
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		scheduler.Stop()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Server exiting")
	return nil
}
