package handlers

import (
	"event-attendance-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBlocklistRoutes(app *fiber.App, blocklistService *services.BlocklistService, settingsService *services.SettingsService) {
	app.Get("/blocklist", blocklistService.GetBlocklist)
	app.Post("/blocklist", blocklistService.AddManualEntry)
	app.Delete("/blocklist/:participant_id", blocklistService.RemoveEntry)
	app.Post("/blocklist/sync", blocklistService.SyncBlocklist)

	app.Get("/settings", settingsService.GetSettings)
	app.Put("/settings", settingsService.UpdateSettings)
}
