package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"run-challenge-system/handlers"
	"run-challenge-system/middleware"
	"run-challenge-system/models"
	"run-challenge-system/services"
	"run-challenge-system/utils"
	"run-challenge-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 15 * 1024 * 1024, // proof images only, 15MB is plenty
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	if err := utils.InitVault(); err != nil {
		log.Fatal("failed to initialize token vault:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Challenge{},
		&models.Registration{},
		&models.Coupon{},
		&models.CouponUsage{},
		&models.StravaConnection{},
		&models.VerificationLog{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// --- CONFIGURE Razorpay credentials ---
	razorpayKeyID := os.Getenv("RAZORPAY_KEY_ID")
	if razorpayKeyID == "" {
		log.Fatal("RAZORPAY_KEY_ID environment variable not set")
	}
	razorpayKeySecret := os.Getenv("RAZORPAY_KEY_SECRET")
	if razorpayKeySecret == "" {
		log.Fatal("RAZORPAY_KEY_SECRET environment variable not set")
	}
	stravaClientID := os.Getenv("STRAVA_CLIENT_ID")
	if stravaClientID == "" {
		log.Fatal("STRAVA_CLIENT_ID environment variable not set")
	}
	stravaClientSecret := os.Getenv("STRAVA_CLIENT_SECRET")
	if stravaClientSecret == "" {
		log.Fatal("STRAVA_CLIENT_SECRET environment variable not set")
	}
	// --- END CONFIG ---

	defaultPrice := 499.0
	if raw := os.Getenv("DEFAULT_CHALLENGE_PRICE"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Fatal("invalid DEFAULT_CHALLENGE_PRICE:", err)
		}
		defaultPrice = parsed
	}

	notifier := services.NewNotifier(os.Getenv("NOTIFY_SERVICE_URL"), os.Getenv("NOTIFY_SERVICE_TOKEN"))

	challengeService := services.NewChallengeService(db)
	couponService := services.NewCouponService(db)
	pricingService := services.NewPricingService(challengeService, couponService, defaultPrice)
	provider := services.NewRazorpayProvider(razorpayKeyID, razorpayKeySecret)
	paymentService := services.NewPaymentService(db, provider, razorpayKeyID, razorpayKeySecret, notifier)
	registrationService := services.NewRegistrationService(db, pricingService, paymentService, notifier)
	verificationService := services.NewVerificationService(db, challengeService, notifier)
	stravaClient := services.NewStravaClient(db, stravaClientID, stravaClientSecret)
	stravaService := services.NewStravaService(db, stravaClient, verificationService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refreshWorker := workers.NewTokenRefreshWorker(db, stravaClient)
	refreshWorker.Start(ctx)

	challengeService.StartStatusScheduler()

	// ✅ Setup routes — enforced Gateway auth + user context from headers
	handlers.SetupChallengeRoutes(app, challengeService)
	handlers.SetupRegistrationRoutes(app, registrationService, verificationService)
	handlers.SetupCouponRoutes(app, couponService, pricingService)
	handlers.SetupPaymentRoutes(app, paymentService)
	handlers.SetupStravaRoutes(app, stravaService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Strava Token Refresh Worker running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
