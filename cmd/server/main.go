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
	"github.com/craftbridge/backend/docs"
	"github.com/craftbridge/backend/internal/config"
	"github.com/craftbridge/backend/internal/database"
	mW "github.com/craftbridge/backend/internal/middleware"
	"github.com/craftbridge/backend/internal/services"
	"github.com/craftbridge/backend/internal/worker"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title CraftBridge Payments API
// @version 1.0
// @description Payment request and escrow ledger service for the CraftBridge marketplace
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.ReadInConfig()

	viper.SetEnvPrefix("")

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

	viper.BindEnv("platform.withdrawal_window_start_day", "WITHDRAWAL_WINDOW_START_DAY")
	viper.BindEnv("platform.withdrawal_window_end_day", "WITHDRAWAL_WINDOW_END_DAY")
	viper.BindEnv("platform.min_withdrawal_points", "MIN_WITHDRAWAL_POINTS")
	viper.BindEnv("platform.point_rate_kobo", "POINT_RATE_KOBO")
	viper.BindEnv("platform.commission_bps", "PLATFORM_COMMISSION_BPS")
	viper.BindEnv("platform.referral_commission_bps", "REFERRAL_COMMISSION_BPS")
	viper.BindEnv("platform.escrow_grace_days", "ESCROW_GRACE_DAYS")
	viper.BindEnv("platform.sweep_interval", "SWEEP_INTERVAL")
	viper.BindEnv("platform.webhook_url", "OPS_WEBHOOK_URL")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "CraftBridge Payments API"
	docs.SwaggerInfo.Description = "Payment request and escrow ledger service for the CraftBridge marketplace"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	cfg := config.Load()

	ledgerService := services.NewLedgerService(db)
	walletService := services.NewWalletService(db, redisClient)
	notificationService := services.NewNotificationService(db, cfg)
	referralService := services.NewReferralService(db, ledgerService, cfg)
	paymentService := services.NewPaymentRequestService(db, ledgerService, walletService, cfg, notificationService, referralService)
	escrowService := services.NewEscrowService(db, ledgerService, walletService, cfg, notificationService, referralService)
	payoutService := services.NewPayoutService(db)
	instructionService := services.NewFundingInstructionService(redisClient, cfg)
	bankService := services.NewBankService()

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Auto-release sweeper
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := worker.NewSweeper(escrowService, cfg)
	sweeper.Start(sweepCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Get("/banks", bankService.GetAllBanks)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/wallet", walletService.GetWallet)
			r.Get("/wallet/ledger", walletService.GetLedger)

			r.Post("/payments/funding", paymentService.CreateFundingRequest)
			r.Post("/payments/funding/instructions", instructionService.GenerateFundingInstructions)
			r.Post("/payments/withdrawal", paymentService.CreateWithdrawalRequest)
			r.Post("/payments/subscription", paymentService.CreateSubscriptionRequest)
			r.Get("/payments/requests", paymentService.ListMyRequests)

			r.Post("/escrow", escrowService.FundJobEscrow)
			r.Get("/escrow/{id}", escrowService.GetEscrow)
			r.Post("/escrow/{id}/release", escrowService.ReleaseEscrow)
			r.Post("/escrow/{id}/refund", escrowService.RefundEscrow)
			r.Post("/escrow/{id}/dispute", escrowService.FileDisputeRequest)

			r.Get("/referrals/earnings", referralService.ListMyEarnings)
			r.Get("/notifications", notificationService.ListNotifications)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly)

				r.Get("/admin/requests", paymentService.ListPendingRequests)
				r.Post("/admin/requests/bulk", paymentService.BulkReview)
				r.Post("/admin/requests/{id}/approve", paymentService.ApproveRequest)
				r.Post("/admin/requests/{id}/reject", paymentService.RejectRequest)

				r.Get("/admin/escrow", escrowService.ListEscrowTransactions)
				r.Post("/admin/disputes/{id}/resolve", escrowService.ResolveDisputeRequest)

				r.Get("/admin/wallets", walletService.ListWallets)
				r.Get("/admin/payouts/export", payoutService.ExportWithdrawals)
				r.Get("/admin/funding/reference", instructionService.ResolveFundingReference)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
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
