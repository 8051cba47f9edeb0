/**
 * @description
 * This is the main entry point for the payment settlement core. It is
 * responsible for initializing all components of the service: configuration,
 * database connection pool, Redis dedup window, the Stripe gateway client,
 * the ops alert producer, the application services and the HTTP server. It
 * wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/stripeclient: Client for the Stripe API.
 * - pkg/rabbitmq: Ops alert producer.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/api"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/app"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/config"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/store"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/pkg/rabbitmq"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/pkg/stripeclient"
)

func main() {
	// Load .env for local development; in deployed environments the variables
	// come from the platform.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.StripeSecretKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"stripe secret key must be configured\" env=STRIPE_SECRET_KEY")
	}
	if strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"webhook signing secret must be configured\" env=STRIPE_WEBHOOK_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting payment settlement core\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the ops alert producer. A broker outage at boot must not
	// prevent the settlement core from serving; alerts fall back to logs.
	var alerts rabbitmq.Publisher
	if producer, err := rabbitmq.NewAlertProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		alerts = &rabbitmq.AlertProducerFallback{}
	} else {
		defer producer.Close()
		alerts = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the webhook dedup window: Redis when available, otherwise a
	// per-process memory window.
	var deduper app.Deduper = app.NewMemoryDeduper(app.DefaultDedupWindow)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-memory dedup\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-memory dedup\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				deduper = app.NewRedisDeduper(redisClient, cfg.RedisDedupPrefix, app.DefaultDedupWindow)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	} else {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; using in-memory dedup\" env=REDIS_URL")
	}

	// Initialize the Stripe gateway client with a bounded timeout.
	gateway := stripeclient.NewClient(cfg.StripeAPIBaseURL, cfg.StripeSecretKey, time.Duration(cfg.GatewayTimeoutSeconds)*time.Second)

	// Initialize the data access layer and application services.
	repository := store.NewPostgresRepository(dbpool)
	provisioning := app.NewProvisioningService(repository, gateway, alerts, cfg.AppBaseURL, cfg.ConnectCountry, cfg.ConnectBusinessMCC)
	charges := app.NewChargeService(repository, gateway, alerts, cfg.ChargeCurrency)
	reconciler := app.NewReconciler(repository, deduper)

	// Initialize the API handlers.
	handlers := api.NewPaymentHandlers(provisioning, charges)
	webhook := api.NewWebhookHandler(reconciler, cfg.StripeWebhookSecret)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/payments", api.PaymentRoutes(handlers, webhook, cfg.AuthJWKSURL, cfg.AuthIssuer, cfg.AuthAudience))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
