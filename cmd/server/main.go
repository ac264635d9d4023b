package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contentforge/backend/internal/config"
	"github.com/contentforge/backend/internal/database"
	"github.com/contentforge/backend/internal/generation"
	"github.com/contentforge/backend/internal/handlers"
	mW "github.com/contentforge/backend/internal/middleware"
	"github.com/contentforge/backend/internal/publisher"
	"github.com/contentforge/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("generation.endpoint", "GENERATION_ENDPOINT")
	viper.BindEnv("generation.model", "GENERATION_MODEL")
	viper.BindEnv("generation.api_key", "GENERATION_API_KEY")
	viper.BindEnv("webhook.secret", "WEBHOOK_SECRET")
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	pipelineConfig := config.LoadPipelineConfig()

	// Initialize storage
	db := database.InitDatabase()
	defer db.Close()

	if err := database.EnsureSchema(db); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	redisClient := database.InitRedis()
	if redisClient == nil {
		log.Fatal("Redis is required for checkpoints and locks")
	}
	defer redisClient.Close()

	// Initialize services
	ledger := services.NewTokenLedgerService(db)
	content := services.NewContentService(db)
	readiness := services.NewReadinessService(content, ledger, pipelineConfig)
	checkpoints := services.NewCheckpointStore(redisClient, pipelineConfig.CheckpointTTL)
	guard := services.NewIdempotencyGuard(redisClient)
	retry := services.NewRetryingClient(pipelineConfig)
	generator := generation.NewClient(retry)
	targets := publisher.NewRegistry(retry)

	coordinator := services.NewPipelineCoordinator(
		ledger, content, readiness, checkpoints, guard,
		generator, targets, redisClient, pipelineConfig,
	)

	webhookHandler := handlers.NewWebhookHandler(coordinator)
	accountHandler := handlers.NewAccountHandler(ledger)

	// Reconcile abandoned paid drafts in the background
	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	defer stopReconciler()
	reconciler := services.NewReconciler(ledger, content, checkpoints, pipelineConfig.CheckpointTTL)
	go reconciler.Run(reconcilerCtx, 15*time.Minute)

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(90 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Front-end webhook: one logical user action per request
	r.Group(func(r chi.Router) {
		r.Use(mW.WebhookAuth)
		r.Post("/webhook", webhookHandler.HandleAction)
	})

	// Operator API
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/readiness/{contentUnitId}", webhookHandler.GetReadiness)
			r.Get("/accounts/{userId}", accountHandler.GetAccount)
			r.Get("/accounts/{userId}/ledger", accountHandler.GetLedger)
			r.Post("/accounts/{userId}/credit", accountHandler.Credit)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopReconciler()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
