package services

import (
	"errors"
	"strings"

	"event-attendance-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VolunteerService struct {
	DB *gorm.DB
}

func NewVolunteerService(db *gorm.DB) *VolunteerService {
	return &VolunteerService{DB: db}
}

func (s *VolunteerService) GetEventVolunteers(c *fiber.Ctx) error {
	eventID := c.Params("id")
	var volunteers []models.Volunteer
	if err := s.DB.Where("event_id = ?", eventID).Order("name ASC").Find(&volunteers).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch volunteers"})
	}
	return c.JSON(volunteers)
}

func (s *VolunteerService) CreateVolunteer(c *fiber.Ctx) error {
	type Req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
		Role  string `json:"role"`
	}
	eventID := c.Params("id")
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}
	if err := s.DB.First(&models.Event{}, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "event not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	volunteer := models.Volunteer{
		ID:      uuid.NewString(),
		EventID: eventID,
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.TrimSpace(req.Email),
		Phone:   strings.TrimSpace(req.Phone),
		Role:    req.Role,
	}
	if volunteer.Role == "" {
		volunteer.Role = "general"
	}
	if err := s.DB.Create(&volunteer).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create volunteer"})
	}
	return c.Status(201).JSON(volunteer)
}

func (s *VolunteerService) UpdateVolunteer(c *fiber.Ctx) error {
	id := c.Params("id")
	var volunteer models.Volunteer
	if err := s.DB.First(&volunteer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "volunteer not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	type Req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
		Role  string `json:"role"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		volunteer.Name = name
	}
	volunteer.Email = strings.TrimSpace(req.Email)
	volunteer.Phone = strings.TrimSpace(req.Phone)
	if req.Role != "" {
		volunteer.Role = req.Role
	}
	if err := s.DB.Save(&volunteer).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}
	return c.JSON(volunteer)
}

func (s *VolunteerService) DeleteVolunteer(c *fiber.Ctx) error {
	id := c.Params("id")
	result := s.DB.Delete(&models.Volunteer{}, "id = ?", id)
	if result.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if result.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "volunteer not found"})
	}
	return c.JSON(fiber.Map{"message": "volunteer deleted"})
}
