package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/RamiBarakat/transporter-backend/config"
	"github.com/RamiBarakat/transporter-backend/database"
	"github.com/RamiBarakat/transporter-backend/jobs"
	"github.com/RamiBarakat/transporter-backend/middleware"
	"github.com/RamiBarakat/transporter-backend/routes"
	"github.com/RamiBarakat/transporter-backend/services"
	ws "github.com/RamiBarakat/transporter-backend/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	config.Load()

	// Subcommands bypass the server startup
	if len(os.Args) > 1 && os.Args[1] == "seed" {
		if err := seedDemoData(); err != nil {
			log.Fatal("Seeding failed: ", err)
		}
		log.Println("✅ Seeding completed")
		return
	}

	// Initialize database (connects, migrates)
	if err := database.Initialize(); err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}

	// Set Gin mode
	if config.AppConfig.Server.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	// Security headers and rate limiting
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.RateLimitMiddleware())

	// CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Transporter backend is running",
			"time":    time.Now().UTC(),
		})
	})

	// Services
	completionService := services.NewCompletionService(database.GetDB())
	dashboardService := services.NewDashboardService(database.GetDB(), services.NewGeminiAnnotator())

	// Dashboard event hub
	hub := ws.NewHub()
	go hub.Run()

	// API routes
	api := router.Group("/api/v1")
	{
		// Auth routes (no authentication required), with strict rate limiting
		authRoutes := api.Group("/auth")
		authRoutes.Use(middleware.AuthRateLimitMiddleware())
		routes.RegisterAuthRoutes(authRoutes)

		// Everything else requires a valid token
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			routes.RegisterAuthProtectedRoutes(protected.Group("/auth"))

			requestRoutes := protected.Group("/requests")
			routes.RegisterRequestRoutes(requestRoutes, completionService, hub)
			routes.RegisterDeliveryRoutes(requestRoutes, completionService, hub)
			routes.RegisterDeliveryMediaRoutes(requestRoutes)

			routes.RegisterDriverRoutes(protected.Group("/drivers"))
			routes.RegisterDashboardRoutes(protected.Group("/dashboard"), dashboardService)
		}

		// Websocket feed authenticates via query token
		feed := api.Group("/ws")
		feed.Use(middleware.WebSocketAuthMiddleware())
		routes.RegisterDashboardFeed(feed, hub)
	}

	// Background reconciliation of driver aggregates
	statsJob := jobs.NewStatsRefreshJob(database.GetDB(), 15*time.Minute)
	statsJob.Start()
	defer statsJob.Stop()

	port := config.AppConfig.Server.Port
	log.Printf("🚀 Server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
