package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"time"

	"event-attendance-system/models"
	"event-attendance-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttendanceService struct {
	DB        *gorm.DB
	Blocklist *BlocklistService
	Buffer    *UndoBuffer
}

func NewAttendanceService(db *gorm.DB, blocklist *BlocklistService, buffer *UndoBuffer) *AttendanceService {
	return &AttendanceService{DB: db, Blocklist: blocklist, Buffer: buffer}
}

// snapshotEventAttendance gathers every attendance row for the event joined
// with its participant, in the shape the undo buffer replays.
func snapshotEventAttendance(db *gorm.DB, eventID string) ([]AttendanceSnapshot, error) {
	var rows []AttendanceSnapshot
	err := db.Model(&models.Attendance{}).
		Select(`attendances.id AS attendance_id,
			attendances.participant_id,
			attendances.status,
			attendances.marked_at,
			participants.name AS participant_name,
			participants.email AS participant_email,
			participants.is_blocklisted,
			participants.blocklist_reason`).
		Joins("JOIN participants ON participants.id = attendances.participant_id").
		Where("attendances.event_id = ?", eventID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("snapshot failed: %w", err)
	}
	return rows, nil
}

// MarkAttendance upserts the status for one (event, participant) pair and
// runs the reconciler before responding, so the blocklist is consistent by
// the time the dashboard refreshes.
func (s *AttendanceService) MarkAttendance(c *fiber.Ctx) error {
	type Req struct {
		EventID       string `json:"event_id"`
		ParticipantID string `json:"participant_id"`
		Status        string `json:"status"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.EventID == "" || req.ParticipantID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "event_id and participant_id are required"})
	}
	switch req.Status {
	case models.StatusAttended, models.StatusNoShow, models.StatusNotAttended:
	default:
		return c.Status(400).JSON(fiber.Map{"error": "status must be one of attended, no_show, not_attended"})
	}

	if err := s.DB.First(&models.Event{}, "id = ?", req.EventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "event not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if err := s.DB.First(&models.Participant{}, "id = ?", req.ParticipantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "participant not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	now := time.Now()
	attendance := models.Attendance{
		ID:            uuid.NewString(),
		EventID:       req.EventID,
		ParticipantID: req.ParticipantID,
		Status:        &req.Status,
		MarkedAt:      now,
	}
	// Upsert on the (event_id, participant_id) unique index; a second mark
	// updates the existing row, never creates a duplicate.
	if err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "participant_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"status": req.Status, "marked_at": now}),
	}).Create(&attendance).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to mark attendance", "details": err.Error()})
	}

	result, err := s.Blocklist.ReconcileCurrent()
	if err != nil {
		log.Printf("ERROR reconcile after mark: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "attendance marked but blocklist sync failed", "details": err.Error()})
	}

	var saved models.Attendance
	s.DB.Where("event_id = ? AND participant_id = ?", req.EventID, req.ParticipantID).First(&saved)
	return c.JSON(fiber.Map{"attendance": saved, "blocklist": result})
}

func (s *AttendanceService) GetEventAttendance(c *fiber.Ctx) error {
	eventID := c.Params("id")
	var rows []models.Attendance
	if err := s.DB.Preload("Participant").
		Where("event_id = ?", eventID).
		Order("marked_at DESC").
		Find(&rows).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch attendance"})
	}
	return c.JSON(rows)
}

// DeleteAttendance removes a single row; dropping a no-show can push its
// participant back under threshold, so the reconciler runs before the reply.
func (s *AttendanceService) DeleteAttendance(c *fiber.Ctx) error {
	id := c.Params("id")
	res := s.DB.Delete(&models.Attendance{}, "id = ?", id)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if res.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "attendance record not found"})
	}
	result, err := s.Blocklist.ReconcileCurrent()
	if err != nil {
		log.Printf("ERROR reconcile after delete: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "deleted but blocklist sync failed", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "attendance deleted", "blocklist": result})
}

// DeleteAllAttendance wipes every attendance row for the event after
// snapshotting it into the undo buffer. Participants are never deleted here.
func (s *AttendanceService) DeleteAllAttendance(eventID string) (int, string, error) {
	rows, err := snapshotEventAttendance(s.DB, eventID)
	if err != nil {
		return 0, "", err
	}
	token := s.Buffer.Put(eventID, BackupKindAttendance, rows)

	res := s.DB.Where("event_id = ?", eventID).Delete(&models.Attendance{})
	if res.Error != nil {
		return 0, "", fmt.Errorf("bulk attendance delete failed: %w", res.Error)
	}
	if _, err := s.Blocklist.ReconcileCurrent(); err != nil {
		return int(res.RowsAffected), token, err
	}
	return int(res.RowsAffected), token, nil
}

// DeleteSelectedAttendance removes the given rows with no undo support.
func (s *AttendanceService) DeleteSelectedAttendance(eventID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.DB.Where("event_id = ? AND id IN ?", eventID, ids).Delete(&models.Attendance{})
	if res.Error != nil {
		return 0, fmt.Errorf("selected attendance delete failed: %w", res.Error)
	}
	if _, err := s.Blocklist.ReconcileCurrent(); err != nil {
		return int(res.RowsAffected), err
	}
	return int(res.RowsAffected), nil
}

// UndoDeleteAttendance replays the snapshot captured by DeleteAllAttendance.
// Each participant is resolved by id, then email, then name, and recreated
// minimally as a last resort; rows whose (event, participant) pair already
// exists are skipped so the restore never produces duplicates.
func (s *AttendanceService) UndoDeleteAttendance(eventID, token string) (int, error) {
	backup, err := s.Buffer.Consume(eventID, BackupKindAttendance, token)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, snap := range backup.Rows {
		participantID, err := ensureParticipant(s.DB, snap)
		if err != nil {
			log.Printf("[Undo] participant resolve failed for %s: %v", snap.ParticipantID, err)
			continue
		}
		row := models.Attendance{
			ID:            uuid.NewString(),
			EventID:       eventID,
			ParticipantID: participantID,
			Status:        snap.Status,
			MarkedAt:      snap.MarkedAt,
		}
		res := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "participant_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			log.Printf("[Undo] attendance re-insert failed for participant %s: %v", participantID, res.Error)
			continue
		}
		restored += int(res.RowsAffected)
	}

	if _, err := s.Blocklist.ReconcileCurrent(); err != nil {
		return restored, err
	}
	return restored, nil
}

// ExportEventAttendance writes the event's attendance sheet as CSV to object
// storage and returns the download URL.
func (s *AttendanceService) ExportEventAttendance(c *fiber.Ctx) error {
	eventID := c.Params("id")
	var event models.Event
	if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "event not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	var rows []models.Attendance
	if err := s.DB.Preload("Participant").
		Where("event_id = ?", eventID).
		Order("marked_at ASC").
		Find(&rows).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch attendance"})
	}

	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"name", "email", "status", "marked_at", "blocklisted"})
	for _, row := range rows {
		status := "pending"
		if row.Status != nil {
			status = *row.Status
		}
		name, email, blocked := "", "", "false"
		if row.Participant != nil {
			name = row.Participant.Name
			email = row.Participant.Email
			if row.Participant.IsBlocklisted {
				blocked = "true"
			}
		}
		_ = w.Write([]string{name, email, status, row.MarkedAt.Format(time.RFC3339), blocked})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to build CSV"})
	}

	key := fmt.Sprintf("exports/%s/%s.csv", event.Slug, uuid.NewString())
	url, err := utils.UploadBytesToR2(buf.Bytes(), key, "text/csv")
	if err != nil {
		if errors.Is(err, utils.ErrStorageDisabled) {
			return c.Status(503).JSON(fiber.Map{"error": "object storage is not configured"})
		}
		log.Printf("ERROR uploading export for event %s: %v", eventID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to upload export", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"url": url, "rows": len(rows)})
}

// DeleteAll / DeleteSelected / Undo HTTP wrappers.

func (s *AttendanceService) DeleteAllAttendanceEndpoint(c *fiber.Ctx) error {
	eventID := c.Params("id")
	deleted, token, err := s.DeleteAllAttendance(eventID)
	if err != nil {
		log.Printf("ERROR bulk attendance delete for event %s: %v", eventID, err)
		return c.Status(500).JSON(fiber.Map{"error": "bulk delete failed", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"deleted": deleted, "undo_token": token})
}

func (s *AttendanceService) DeleteSelectedAttendanceEndpoint(c *fiber.Ctx) error {
	type Req struct {
		IDs []string `json:"ids"`
	}
	eventID := c.Params("id")
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if len(req.IDs) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "ids must not be empty"})
	}
	deleted, err := s.DeleteSelectedAttendance(eventID, req.IDs)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "selected delete failed", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

func (s *AttendanceService) UndoDeleteAttendanceEndpoint(c *fiber.Ctx) error {
	type Req struct {
		Token string `json:"token"`
	}
	eventID := c.Params("id")
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.Token == "" {
		return c.Status(400).JSON(fiber.Map{"error": "token is required"})
	}
	restored, err := s.UndoDeleteAttendance(eventID, req.Token)
	if err != nil {
		if errors.Is(err, ErrNoUndoAvailable) {
			return c.Status(404).JSON(fiber.Map{"error": "no undo available for this event"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "undo failed", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"restored": restored})
}
