package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"event-attendance-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type EventService struct {
	DB        *gorm.DB
	Blocklist *BlocklistService
}

func NewEventService(db *gorm.DB, blocklist *BlocklistService) *EventService {
	return &EventService{DB: db, Blocklist: blocklist}
}

// uniqueSlug derives a URL slug from the event name, suffixing with a short
// uuid fragment when the plain slug is taken.
func (s *EventService) uniqueSlug(name, excludeID string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "event"
	}
	candidate := base
	for i := 0; i < 3; i++ {
		var count int64
		if err := s.DB.Model(&models.Event{}).
			Where("slug = ? AND id <> ?", candidate, excludeID).
			Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
	}
	return candidate, nil
}

func (s *EventService) CreateEvent(c *fiber.Ctx) error {
	type Req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Location    string `json:"location"`
		StartTime   string `json:"start_time"` // RFC3339
		EndTime     string `json:"end_time"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	var startTime, endTime time.Time
	var err error
	if req.StartTime != "" {
		startTime, err = time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid start_time (use RFC3339)"})
		}
	}
	if req.EndTime != "" {
		endTime, err = time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid end_time (use RFC3339)"})
		}
	}

	eventSlug, err := s.uniqueSlug(req.Name, "")
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to derive slug"})
	}
	event := models.Event{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Slug:        eventSlug,
		Description: req.Description,
		Location:    req.Location,
		StartTime:   startTime,
		EndTime:     endTime,
	}
	if err := s.DB.Create(&event).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create event", "details": err.Error()})
	}
	return c.Status(201).JSON(event)
}

func (s *EventService) GetAllEvents(c *fiber.Ctx) error {
	var events []models.Event
	if err := s.DB.Order("start_time DESC").Find(&events).Error; err != nil {
		log.Printf("ERROR fetching events: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch events"})
	}
	return c.JSON(events)
}

// GetEventByID returns the event with its attendance roll-up counts.
func (s *EventService) GetEventByID(c *fiber.Ctx) error {
	id := c.Params("id")
	var event models.Event
	if err := s.DB.First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "event not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	s.DB.Model(&models.Attendance{}).Where("event_id = ?", id).Count(&event.ParticipantsCount)
	s.DB.Model(&models.Attendance{}).Where("event_id = ? AND status = ?", id, models.StatusAttended).
		Count(&event.AttendedCount)
	s.DB.Model(&models.Attendance{}).
		Where("event_id = ? AND (status IS NULL OR status IN ?)", id, models.NoShowStatuses).
		Count(&event.NoShowCount)

	return c.JSON(event)
}

func (s *EventService) UpdateEvent(c *fiber.Ctx) error {
	id := c.Params("id")
	var event models.Event
	if err := s.DB.First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "event not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	type Req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Location    string `json:"location"`
		StartTime   string `json:"start_time"`
		EndTime     string `json:"end_time"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	updates := map[string]interface{}{
		"description": req.Description,
		"location":    req.Location,
	}
	if name := strings.TrimSpace(req.Name); name != "" && name != event.Name {
		newSlug, err := s.uniqueSlug(name, id)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to derive slug"})
		}
		updates["name"] = name
		updates["slug"] = newSlug
	}
	if req.StartTime != "" {
		t, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid start_time (use RFC3339)"})
		}
		updates["start_time"] = t
	}
	if req.EndTime != "" {
		t, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid end_time (use RFC3339)"})
		}
		updates["end_time"] = t
	}

	if err := s.DB.Model(&event).Updates(updates).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}
	s.DB.First(&event, "id = ?", id)
	return c.JSON(event)
}

// DeleteEvent cascades the event's attendance and volunteers, then runs the
// reconciler: dropping an event's no-shows can release blocklisted
// participants.
func (s *EventService) DeleteEvent(c *fiber.Ctx) error {
	id := c.Params("id")
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&models.Attendance{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", id).Delete(&models.Volunteer{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Event{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fiber.NewError(404, "event not found")
		}
		return nil
	})
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		return c.Status(500).JSON(fiber.Map{"error": "delete failed", "details": err.Error()})
	}

	result, err := s.Blocklist.ReconcileCurrent()
	if err != nil {
		log.Printf("ERROR reconcile after event delete: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "event deleted but blocklist sync failed", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "event deleted", "blocklist": result})
}
