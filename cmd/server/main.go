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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/ekenegodwins22-eng/verifyhub/internal/database"
	mW "github.com/ekenegodwins22-eng/verifyhub/internal/middleware"
	"github.com/ekenegodwins22-eng/verifyhub/internal/provider"
	"github.com/ekenegodwins22-eng/verifyhub/internal/services"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

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

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	viper.BindEnv("auth.insecure_test_mode", "AUTH_INSECURE_TEST_MODE")

	viper.BindEnv("smspool.api_key", "SMSPOOL_API_KEY")
	viper.BindEnv("smspool.api_url", "SMSPOOL_API_URL")
	viper.BindEnv("provider.mode", "PROVIDER_MODE")

	viper.BindEnv("orders.hold_ttl", "ORDERS_HOLD_TTL")
	viper.BindEnv("orders.sweep_interval", "ORDERS_SWEEP_INTERVAL")
	viper.BindEnv("pricing.cache_ttl", "PRICING_CACHE_TTL")
	viper.BindEnv("static.dir", "STATIC_DIR")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	if viper.GetString("jwt.secret_key") == "" {
		log.Fatal("JWT_SECRET_KEY must be configured")
	}
	if viper.GetString("telegram.bot_token") == "" && !viper.GetBool("auth.insecure_test_mode") {
		log.Fatal("TELEGRAM_BOT_TOKEN must be configured (or AUTH_INSECURE_TEST_MODE enabled for local development)")
	}
	if viper.GetBool("auth.insecure_test_mode") {
		log.Println("WARNING: insecure test mode is ON - unsigned identities are accepted, do not run this in production")
	}

	// Initialize storage
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Select the number provider
	viper.SetDefault("provider.mode", "simulated")
	var adapter provider.Adapter
	switch mode := viper.GetString("provider.mode"); mode {
	case "live":
		pool := provider.NewSMSPool()
		adapter = pool
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if balance, err := pool.Balance(ctx); err != nil {
			log.Printf("Provider balance check failed: %v", err)
		} else {
			log.Printf("Provider balance: $%.2f", balance)
		}
		cancel()
	case "simulated":
		log.Println("Using simulated number provider")
		adapter = provider.NewSimulated()
	default:
		log.Fatalf("Unknown provider mode %q", mode)
	}

	// Initialize services
	ledgerService := services.NewLedgerService(db)
	pricingService := services.NewPricingService(db, redisClient, adapter)
	orderService := services.NewOrderService(db, ledgerService, pricingService, adapter)
	authService := services.NewAuthService(db)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	orderService.StartSweeper(sweepCtx)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authService.Login)

		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/me", authService.Me)

			r.Get("/services", pricingService.ListServices)
			r.Post("/services/refresh", pricingService.RefreshServices)
			r.Get("/services/{service}/{country}", pricingService.GetQuote)

			r.Post("/orders/buy", orderService.Buy)
			r.Get("/orders", orderService.List)
			r.Get("/orders/{orderId}", orderService.Get)
			r.Get("/orders/{orderId}/sms", orderService.CheckSMS)

			r.Get("/transactions", orderService.Transactions)
		})
	})

	// Mini-app static files with SPA fallback
	viper.SetDefault("static.dir", "./client/dist")
	r.NotFound(mW.SPAFileServer(viper.GetString("static.dir")).ServeHTTP)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
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
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
