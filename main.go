package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"instacam-backend/handlers"
	"instacam-backend/models"
	"instacam-backend/services"
	"instacam-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024, // 20MB, image uploads only
	})

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:5173")
		allowedOriginsEnv = "http://localhost:5173"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitMediaStore(); err != nil {
		log.Fatal("failed to initialize media store:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.AuthToken{},
		&models.Post{},
		&models.Like{},
		&models.Comment{},
		&models.Save{},
		&models.Follow{},
		&models.Notification{},
		&models.ChatThread{},
		&models.ChatMessage{},
		&models.Bug{},
		&models.BugSolve{},
		&models.LeaderboardEntry{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := utils.EnsureUploadDir(); err != nil {
		log.Fatal("failed to ensure upload dir:", err)
	}

	cache := utils.NewCacheFromEnv()

	// Cookie-backed sessions carry pending discoveries for anonymous
	// exploiters until they log in.
	sessions := session.New(session.Config{
		Expiration:     24 * time.Hour,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	})

	scoringService := services.NewScoringService(db)
	pendingService := services.NewPendingService(cache)
	ctfService := services.NewCTFService(db, scoringService, pendingService, sessions)
	authService := services.NewAuthService(db, cache, scoringService, pendingService, ctfService, sessions)
	tracker := services.NewAttemptTracker()
	postService := services.NewPostService(db, tracker, ctfService)
	userService := services.NewUserService(db, ctfService)
	chatService := services.NewChatService(db, ctfService)
	notificationService := services.NewNotificationService(db)

	scoringService.StartLeaderboardScheduler()

	services.SeedDemoData(db)

	handlers.SetupAuthRoutes(app, db, authService)
	handlers.SetupPostRoutes(app, db, postService)
	handlers.SetupUserRoutes(app, db, userService, notificationService)
	handlers.SetupChatRoutes(app, db, chatService)
	handlers.SetupCTFRoutes(app, db, ctfService)

	app.Static("/uploads", "./uploads")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)
	log.Println("🎯 Bug discovery scoring active — happy hunting")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
