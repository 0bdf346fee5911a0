package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/netfleet/backend/internal/config"
	"github.com/netfleet/backend/internal/core/services"
	"github.com/netfleet/backend/internal/infrastructure/db"
	"github.com/netfleet/backend/internal/infrastructure/logger"
	"github.com/netfleet/backend/internal/infrastructure/remote"
	"github.com/netfleet/backend/internal/transport/http/handlers"
	httpmw "github.com/netfleet/backend/internal/transport/http/middleware"
	"gorm.io/gorm"
)

type RouterConfig struct {
	DB            *gorm.DB
	Logger        *logger.Logger
	Config        *config.Config
	EncryptionKey string
}

// SetupRoutes wires repositories, services and handlers and returns the
// batch service so the dispatch worker can consume its queue.
func SetupRoutes(app *fiber.App, cfg RouterConfig) *services.BatchService {
	// Initialize repositories
	deviceRepo := db.NewDeviceRepository(cfg.DB, cfg.Logger)
	batchRepo := db.NewBatchRepository(cfg.DB, cfg.Logger)
	backupRepo := db.NewBackupRepository(cfg.DB, cfg.Logger)
	timelineRepo := db.NewTimelineRepository(cfg.DB, cfg.Logger)

	// Initialize services
	otpCache := services.NewOTPCache(cfg.Config.Engine.OTPCacheTTL)

	deviceService := services.NewDeviceService(services.DeviceServiceConfig{
		Repository:    deviceRepo,
		Logger:        cfg.Logger,
		EncryptionKey: cfg.EncryptionKey,
	})

	operationService := services.NewOperationService(remote.NewFactory(), backupRepo, cfg.Logger)

	batchService := services.NewBatchService(services.BatchServiceConfig{
		BatchRepo:     batchRepo,
		DeviceRepo:    deviceRepo,
		TimelineRepo:  timelineRepo,
		DeviceService: deviceService,
		Operations:    operationService,
		OTPCache:      otpCache,
		Engine:        cfg.Config.Engine,
		Logger:        cfg.Logger,
	})

	// Initialize handlers
	deviceHandler := handlers.NewDeviceHandler(deviceService, cfg.Logger)
	batchHandler := handlers.NewBatchHandler(batchService, cfg.Logger)
	otpHandler := handlers.NewOTPHandler(otpCache, cfg.Logger)
	backupHandler := handlers.NewBackupHandler(backupRepo, cfg.Logger)
	timelineHandler := handlers.NewTimelineHandler(timelineRepo, cfg.Logger)
	progressHandler := handlers.NewProgressHandler(batchService, cfg.Logger)

	// Batch progress websocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws/batches/:id/progress", websocket.New(progressHandler.Handle))

	// API v1 routes
	api := app.Group("/api/v1")

	// Device routes
	devices := api.Group("/devices", httpmw.AdminAuth(cfg.Config))
	devices.Post("/", deviceHandler.CreateDevice)
	devices.Get("/", deviceHandler.GetDevices)
	devices.Get("/:id", deviceHandler.GetDevice)
	devices.Put("/:id", deviceHandler.UpdateDevice)
	devices.Delete("/:id", deviceHandler.DeleteDevice)
	devices.Get("/:id/backups", backupHandler.GetDeviceBackups)

	// Batch routes
	batches := api.Group("/batches", httpmw.AdminAuth(cfg.Config))
	batches.Post("/", batchHandler.SubmitBatch)
	batches.Get("/", batchHandler.GetBatches)
	batches.Get("/:id", batchHandler.GetBatch)
	batches.Get("/:id/report", batchHandler.GetReport)
	batches.Post("/:id/resume", batchHandler.ResumeBatch)
	batches.Post("/:id/cancel", batchHandler.CancelBatch)

	// OTP routes
	otp := api.Group("/otp", httpmw.AdminAuth(cfg.Config))
	otp.Post("/", otpHandler.SubmitOTP)
	otp.Delete("/:group", otpHandler.ClearOTP)

	// Backup routes
	backups := api.Group("/backups", httpmw.AdminAuth(cfg.Config))
	backups.Get("/:id/content", backupHandler.GetBackupContent)

	// Timeline routes
	timeline := api.Group("/timeline", httpmw.AdminAuth(cfg.Config))
	timeline.Get("/", timelineHandler.GetEvents)

	return batchService
}
