package services

import (
	"errors"
	"log"

	"event-attendance-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsService struct {
	DB        *gorm.DB
	Blocklist *BlocklistService
}

func NewSettingsService(db *gorm.DB, blocklist *BlocklistService) *SettingsService {
	return &SettingsService{DB: db, Blocklist: blocklist}
}

// EnsureRow seeds the single settings row at boot so reads never miss.
func (s *SettingsService) EnsureRow() error {
	cfg := models.DefaultSettings()
	return s.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&cfg).Error
}

func (s *SettingsService) GetSettings(c *fiber.Ctx) error {
	var cfg models.Settings
	if err := s.DB.First(&cfg, "id = 1").Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(models.DefaultSettings())
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(cfg)
}

// UpdateSettings persists the tunables and, because a threshold change can
// move participants across the line in either direction, reconciles
// immediately rather than waiting for the next attendance write.
func (s *SettingsService) UpdateSettings(c *fiber.Ctx) error {
	type Req struct {
		AutoBlocklistThreshold *int  `json:"auto_blocklist_threshold"`
		AutoBlocklistEnabled   *bool `json:"auto_blocklist_enabled"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	updates := map[string]interface{}{}
	if req.AutoBlocklistThreshold != nil {
		if *req.AutoBlocklistThreshold < 1 {
			return c.Status(400).JSON(fiber.Map{"error": "auto_blocklist_threshold must be >= 1"})
		}
		updates["auto_blocklist_threshold"] = *req.AutoBlocklistThreshold
	}
	if req.AutoBlocklistEnabled != nil {
		updates["auto_blocklist_enabled"] = *req.AutoBlocklistEnabled
	}
	if len(updates) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "no settings provided"})
	}

	if err := s.EnsureRow(); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to ensure settings row"})
	}
	if err := s.DB.Model(&models.Settings{}).Where("id = 1").Updates(updates).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to update settings"})
	}

	result, err := s.Blocklist.ReconcileCurrent()
	if err != nil {
		log.Printf("ERROR reconcile after settings update: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "settings saved but blocklist sync failed", "details": err.Error()})
	}

	var cfg models.Settings
	s.DB.First(&cfg, "id = 1")
	return c.JSON(fiber.Map{"settings": cfg, "blocklist": result})
}
