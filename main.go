package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"newsletter-backend/database"
	"newsletter-backend/delivery"
	"newsletter-backend/email"
	"newsletter-backend/idempotency"
	"newsletter-backend/middlewares"
	"newsletter-backend/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/rs/zerolog"
)

// envInt reads an int env var with a default fallback.
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// envStr reads a string env var with a default fallback.
func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// ---- Database
	db, err := database.Connect()
	if err != nil {
		logger.Fatal().Err(err).Msg("could not connect to database")
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("could not migrate database")
	}

	// ---- Email sender (Postmark-compatible API)
	sender, err := email.NewClient(
		envStr("EMAIL_API_BASE_URL", "https://api.postmarkapp.com"),
		os.Getenv("EMAIL_SENDER_ADDRESS"),
		os.Getenv("EMAIL_API_TOKEN"),
		time.Duration(envInt("EMAIL_TIMEOUT_SECONDS", 10))*time.Second,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not build email client")
	}

	store := idempotency.NewStore(db)
	queue := delivery.NewQueue(db)

	// ---- Delivery workers
	// Workers share the pool with the HTTP path; the SKIP LOCKED dequeue is
	// the only coordination they need.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerCount := envInt("DELIVERY_WORKERS", 1)
	retryDelay := time.Duration(envInt("DELIVERY_RETRY_SECONDS", 1)) * time.Second

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		worker := delivery.NewWorker(queue, sender,
			logger.With().Int("worker", i).Logger(),
			delivery.WithRetryDelay(delivery.Fixed(retryDelay)),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	// ---- Fiber app with global error handler
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.ErrorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: envStr("ALLOWED_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        envInt("RATE_LIMIT_MAX", 60),
		Expiration: time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
	}))

	confirmBaseURL := envStr("APP_BASE_URL", "http://localhost:8080")
	routes.Register(app, db, store, sender, confirmBaseURL)

	// ---- Start
	port := envStr("PORT", "8080")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("port", port).Int("workers", workerCount).Msg("newsletter backend started")

	<-ctx.Done()

	// Workers observe the shutdown signal between iterations; in-flight
	// deliveries finish or roll back before we leave.
	logger.Info().Msg("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	wg.Wait()
}
