package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"event-attendance-system/handlers"
	"event-attendance-system/middleware"
	"event-attendance-system/models"
	"event-attendance-system/services"
	"event-attendance-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024, // 20MB for CSV imports
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// The dashboard is the only client; a static token guards everything else.
	app.Use(middleware.AdminAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("ALLOWED_ORIGINS not set, defaulting to http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Event{},
		&models.Participant{},
		&models.Attendance{},
		&models.BlocklistEntry{},
		&models.Volunteer{},
		&models.Settings{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	exportsEnabled, err := utils.InitR2()
	if err != nil {
		log.Fatal("failed to initialize object storage:", err)
	}
	if !exportsEnabled {
		log.Println("R2_BUCKET_NAME not set, CSV report exports disabled")
	}

	undoBuffer := services.NewUndoBuffer()
	undoBuffer.StartJanitor(1 * time.Hour)

	blocklistService := services.NewBlocklistService(db)
	eventService := services.NewEventService(db, blocklistService)
	participantService := services.NewParticipantService(db, blocklistService, undoBuffer)
	attendanceService := services.NewAttendanceService(db, blocklistService, undoBuffer)
	volunteerService := services.NewVolunteerService(db)
	settingsService := services.NewSettingsService(db, blocklistService)

	if err := settingsService.EnsureRow(); err != nil {
		log.Fatal("failed to seed settings:", err)
	}

	handlers.SetupEventRoutes(app, eventService, volunteerService)
	handlers.SetupAttendanceRoutes(app, attendanceService, participantService)
	handlers.SetupBlocklistRoutes(app, blocklistService, settingsService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":5200"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("Server running on http://localhost:5200")

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
