package services

import (
	"errors"
	"fmt"
	"log"

	"event-attendance-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BlocklistService struct {
	DB *gorm.DB
}

func NewBlocklistService(db *gorm.DB) *BlocklistService {
	return &BlocklistService{DB: db}
}

// ReconcileError records a single participant whose blocklist change failed.
type ReconcileError struct {
	ParticipantID string `json:"participant_id"`
	Op            string `json:"op"` // add | remove
	Error         string `json:"error"`
}

// ReconcileResult reports what the reconciler actually changed. Errors lists
// per-participant failures; the call as a whole still succeeds unless the
// initial aggregate read fails.
type ReconcileResult struct {
	Added   int              `json:"added"`
	Removed int              `json:"removed"`
	Errors  []ReconcileError `json:"errors,omitempty"`
}

// noShowFilter matches the canonical no-show set: an explicit no_show, the
// legacy not_attended value, or a NULL status (registered, never marked).
const noShowFilter = "(status IS NULL OR status IN ?)"

// Reconcile recomputes auto-blocklist membership against the threshold and
// applies the minimal diff. It is the only code path that creates or removes
// auto_no_show entries; manual entries are never touched. Idempotent: a
// second run with no attendance change reports {added:0, removed:0}.
func (s *BlocklistService) Reconcile(threshold int) (ReconcileResult, error) {
	var result ReconcileResult
	if threshold < 1 {
		return result, fmt.Errorf("threshold must be >= 1, got %d", threshold)
	}

	// Single grouped aggregation; the threshold is inclusive.
	type noShowRow struct {
		ParticipantID string `gorm:"column:participant_id"`
		Total         int64  `gorm:"column:total"`
	}
	var counts []noShowRow
	if err := s.DB.Model(&models.Attendance{}).
		Select("participant_id, COUNT(*) AS total").
		Where(noShowFilter, models.NoShowStatuses).
		Group("participant_id").
		Having("COUNT(*) >= ?", threshold).
		Scan(&counts).Error; err != nil {
		return result, fmt.Errorf("no-show aggregation failed: %w", err)
	}

	shouldBlock := make(map[string]int64, len(counts))
	for _, row := range counts {
		shouldBlock[row.ParticipantID] = row.Total
	}

	var autoBlocked []string
	if err := s.DB.Model(&models.BlocklistEntry{}).
		Where("reason = ?", models.BlocklistReasonAutoNoShow).
		Pluck("participant_id", &autoBlocked).Error; err != nil {
		return result, fmt.Errorf("auto-blocklist fetch failed: %w", err)
	}
	blocked := make(map[string]bool, len(autoBlocked))
	for _, id := range autoBlocked {
		blocked[id] = true
	}

	// to_add = shouldBlock − blocked
	for id, total := range shouldBlock {
		if blocked[id] {
			continue
		}
		note := fmt.Sprintf("%d no-shows (threshold %d)", total, threshold)
		entry := models.BlocklistEntry{
			ID:            uuid.NewString(),
			ParticipantID: id,
			Reason:        models.BlocklistReasonAutoNoShow,
			Note:          note,
		}
		// Insert-if-absent on the participant_id unique index. If any entry
		// already exists (manual, or a concurrent reconcile won the race) we
		// leave it alone and count nothing.
		res := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_id"}},
			DoNothing: true,
		}).Create(&entry)
		if res.Error != nil {
			log.Printf("[Reconcile] blocklist insert failed for participant %s: %v", id, res.Error)
			result.Errors = append(result.Errors, ReconcileError{ParticipantID: id, Op: "add", Error: res.Error.Error()})
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		if err := s.DB.Model(&models.Participant{}).Where("id = ?", id).
			Updates(map[string]interface{}{"is_blocklisted": true, "blocklist_reason": note}).Error; err != nil {
			log.Printf("[Reconcile] participant flag update failed for %s: %v", id, err)
			result.Errors = append(result.Errors, ReconcileError{ParticipantID: id, Op: "add", Error: err.Error()})
			continue
		}
		result.Added++
	}

	// to_remove = blocked − shouldBlock; only auto entries are deleted here.
	for _, id := range autoBlocked {
		if _, still := shouldBlock[id]; still {
			continue
		}
		res := s.DB.Where("participant_id = ? AND reason = ?", id, models.BlocklistReasonAutoNoShow).
			Delete(&models.BlocklistEntry{})
		if res.Error != nil {
			log.Printf("[Reconcile] blocklist delete failed for participant %s: %v", id, res.Error)
			result.Errors = append(result.Errors, ReconcileError{ParticipantID: id, Op: "remove", Error: res.Error.Error()})
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		if err := s.DB.Model(&models.Participant{}).Where("id = ?", id).
			Updates(map[string]interface{}{"is_blocklisted": false, "blocklist_reason": nil}).Error; err != nil {
			log.Printf("[Reconcile] participant flag clear failed for %s: %v", id, err)
			result.Errors = append(result.Errors, ReconcileError{ParticipantID: id, Op: "remove", Error: err.Error()})
			continue
		}
		result.Removed++
	}

	return result, nil
}

// ReconcileCurrent runs Reconcile with the threshold from Settings. It is the
// entry point every attendance-mutating operation calls before responding.
// A no-op result is returned when auto-blocklisting is disabled.
func (s *BlocklistService) ReconcileCurrent() (ReconcileResult, error) {
	cfg, err := s.currentSettings()
	if err != nil {
		return ReconcileResult{}, err
	}
	if !cfg.AutoBlocklistEnabled {
		return ReconcileResult{}, nil
	}
	return s.Reconcile(cfg.AutoBlocklistThreshold)
}

func (s *BlocklistService) currentSettings() (models.Settings, error) {
	var cfg models.Settings
	err := s.DB.First(&cfg, "id = 1").Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return cfg, fmt.Errorf("settings fetch failed: %w", err)
	}
	return cfg, nil
}

// SyncBlocklist is the manual "sync now" endpoint for the dashboard.
func (s *BlocklistService) SyncBlocklist(c *fiber.Ctx) error {
	result, err := s.ReconcileCurrent()
	if err != nil {
		log.Printf("ERROR reconcile: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "blocklist sync failed", "details": err.Error()})
	}
	return c.JSON(result)
}

func (s *BlocklistService) GetBlocklist(c *fiber.Ctx) error {
	var entries []models.BlocklistEntry
	if err := s.DB.Preload("Participant").Order("created_at DESC").Find(&entries).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch blocklist"})
	}
	return c.JSON(entries)
}

// AddManualEntry blocklists a participant by hand. The insert races against
// the reconciler on the same unique index, so an existing entry of either
// reason wins and the request is rejected rather than overwritten.
func (s *BlocklistService) AddManualEntry(c *fiber.Ctx) error {
	type Req struct {
		ParticipantID string `json:"participant_id"`
		Note          string `json:"note"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.ParticipantID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "participant_id is required"})
	}

	var participant models.Participant
	if err := s.DB.First(&participant, "id = ?", req.ParticipantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "participant not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	entry := models.BlocklistEntry{
		ID:            uuid.NewString(),
		ParticipantID: req.ParticipantID,
		Reason:        models.BlocklistReasonManual,
		Note:          req.Note,
	}
	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participant_id"}},
		DoNothing: true,
	}).Create(&entry)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create blocklist entry"})
	}
	if res.RowsAffected == 0 {
		return c.Status(409).JSON(fiber.Map{"error": "participant is already blocklisted"})
	}

	reason := req.Note
	if reason == "" {
		reason = "manually blocklisted"
	}
	if err := s.DB.Model(&models.Participant{}).Where("id = ?", req.ParticipantID).
		Updates(map[string]interface{}{"is_blocklisted": true, "blocklist_reason": reason}).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to flag participant"})
	}
	return c.Status(201).JSON(entry)
}

// RemoveEntry removes a blocklist entry of any reason. Removing an auto
// entry does not stop the reconciler from re-adding it on the next trigger
// if the participant is still over threshold.
func (s *BlocklistService) RemoveEntry(c *fiber.Ctx) error {
	participantID := c.Params("participant_id")
	res := s.DB.Where("participant_id = ?", participantID).Delete(&models.BlocklistEntry{})
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if res.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "participant is not blocklisted"})
	}
	if err := s.DB.Model(&models.Participant{}).Where("id = ?", participantID).
		Updates(map[string]interface{}{"is_blocklisted": false, "blocklist_reason": nil}).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to clear participant flag"})
	}
	return c.JSON(fiber.Map{"message": "blocklist entry removed"})
}
