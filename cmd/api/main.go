package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/arnold/steady-api/internal/config"
	"github.com/arnold/steady-api/internal/database"
	"github.com/arnold/steady-api/internal/engine"
	"github.com/arnold/steady-api/internal/feed"
	"github.com/arnold/steady-api/internal/handlers"
	"github.com/arnold/steady-api/internal/routes"
	"github.com/arnold/steady-api/internal/store"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}
	log.Info("Database connected and migrated")

	st := store.New(db, feed.NewBroker())
	hub := handlers.NewHub(log)
	sessions := engine.NewManager(st, hub, log, engine.Options{
		Location:              cfg.Location(),
		OrderWriteConcurrency: cfg.OrderWriteConcurrency,
		IdleTTL:               cfg.SessionIdleTTL,
	})
	// A new websocket starts the user's session so remote changes reach it.
	hub.OnConnect(func(userID uuid.UUID) { sessions.Session(userID) })

	app := fiber.New(fiber.Config{
		AppName: "steady-api",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	routes.Setup(app, handlers.New(st, sessions, log), hub, cfg.JWTSecret)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutting down")
		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("Shutdown failed")
		}
	}()

	log.WithField("port", cfg.Port).Info("Server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}

	sessions.Close()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("Server stopped")
}
