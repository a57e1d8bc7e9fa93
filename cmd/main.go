package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/Hunterkip/learnaisimply-sub000/internal/config"
	"github.com/Hunterkip/learnaisimply-sub000/internal/db"
	"github.com/Hunterkip/learnaisimply-sub000/internal/handlers"
	"github.com/Hunterkip/learnaisimply-sub000/internal/middleware"
	"github.com/Hunterkip/learnaisimply-sub000/internal/models"
	"github.com/Hunterkip/learnaisimply-sub000/internal/services"
)

func main() {
	// Load .env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Error loading .env: %s", err)
	}

	cfg := config.Load()
	if cfg.MongoURI == "" {
		log.Fatal("MONGOURI environment variable not set")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable not set")
	}
	middleware.JwtKey = []byte(cfg.JWTSecret)

	// Connect to MongoDB
	if err := db.Connect(cfg.MongoURI); err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	database := db.Client.Database(cfg.DBName)

	// Initialize services
	ledger := services.NewTransactionService(database)
	userService := services.NewUserService(database)
	roleService := services.NewRoleService(database)
	planService := services.NewPlanService(database)

	bootCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := ledger.EnsureIndexes(bootCtx); err != nil {
		log.Fatalf("Failed to create transaction indexes: %v", err)
	}
	if err := userService.EnsureIndexes(bootCtx); err != nil {
		log.Fatalf("Failed to create user indexes: %v", err)
	}
	if err := planService.Seed(bootCtx); err != nil {
		log.Fatalf("Failed to seed plans: %v", err)
	}

	mpesaService := services.NewMpesaService(cfg.Mpesa, ledger)
	paypalService := services.NewPayPalService(cfg.PayPal, ledger)
	paystackService := services.NewPaystackService(cfg.Paystack, ledger)

	engine := services.NewReconciliationEngine(ledger, userService)
	engine.RegisterStatusChecker(models.MethodMpesa, mpesaService)
	engine.RegisterStatusChecker(models.MethodPayPal, paypalService)
	engine.RegisterStatusChecker(models.MethodPaystack, paystackService)
	if emailService := services.NewEmailService(cfg.PostmarkToken, cfg.EmailSender); emailService != nil {
		engine.SetNotifier(emailService)
	}

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	planHandler := handlers.NewPlanHandler(planService)
	paymentHandler := handlers.NewPaymentHandler(engine, userService, planService, ledger,
		mpesaService, paypalService, paystackService)
	webhookHandler := handlers.NewWebhookHandler(engine, mpesaService, paypalService, paystackService)

	// Set up router
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")

	// Public routes
	router.HandleFunc("/api/register", userHandler.Register).Methods("POST")
	router.HandleFunc("/api/login", userHandler.Login).Methods("POST")
	router.HandleFunc("/api/plans", planHandler.ListPlans).Methods("GET")

	// Provider notifications authenticate with signatures, not sessions
	router.HandleFunc("/api/payments/mpesa/callback", webhookHandler.HandleProvider(models.MethodMpesa)).Methods("POST")
	router.HandleFunc("/api/payments/{provider}/webhook", webhookHandler.Handle).Methods("POST")

	// Protected routes
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware)
	protected.HandleFunc("/me", userHandler.Profile).Methods("GET")
	protected.HandleFunc("/me/access", paymentHandler.Access).Methods("GET")
	protected.HandleFunc("/payments/{provider}/initiate", paymentHandler.Initiate).Methods("POST")
	protected.HandleFunc("/payments/paypal/capture/{orderID}", paymentHandler.CapturePayPal).Methods("POST")
	protected.HandleFunc("/payments/verify-manual", paymentHandler.VerifyManual).Methods("POST")

	// Admin routes
	admin := router.PathPrefix("/api/admin").Subrouter()
	admin.Use(middleware.AuthMiddleware)
	admin.Use(middleware.RequireRole(roleService, models.RoleAdmin))
	admin.HandleFunc("/transactions", paymentHandler.ListTransactions).Methods("GET")
	admin.HandleFunc("/plans", planHandler.CreatePlan).Methods("POST")
	admin.HandleFunc("/plans/{planID}", planHandler.UpdatePlan).Methods("PATCH")
	admin.HandleFunc("/plans/{planID}", planHandler.DeletePlan).Methods("DELETE")

	// Start server
	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Printf("Server running on port %s", cfg.Port)
	log.Fatal(server.ListenAndServe())
}
