package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"event-attendance-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ParticipantService struct {
	DB        *gorm.DB
	Blocklist *BlocklistService
	Buffer    *UndoBuffer
}

func NewParticipantService(db *gorm.DB, blocklist *BlocklistService, buffer *UndoBuffer) *ParticipantService {
	return &ParticipantService{DB: db, Blocklist: blocklist, Buffer: buffer}
}

// normalizeEmail is applied before every store and lookup so CSV imports,
// registrations and undo restores agree on identity.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(email)))
}

// normalizeName folds the name to NFC so visually identical names compare
// equal regardless of how the client composed them.
func normalizeName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

// ensureParticipant resolves a snapshotted participant against the live
// table: by id, then email, then name, recreating it from the snapshot as a
// last resort. Recreation reuses the snapshotted id so a full restore keeps
// stable identities.
func ensureParticipant(db *gorm.DB, snap AttendanceSnapshot) (string, error) {
	var p models.Participant
	if err := db.First(&p, "id = ?", snap.ParticipantID).Error; err == nil {
		return p.ID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	if email := normalizeEmail(snap.ParticipantEmail); email != "" {
		if err := db.First(&p, "email = ?", email).Error; err == nil {
			return p.ID, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}
	if name := normalizeName(snap.ParticipantName); name != "" {
		if err := db.First(&p, "name = ?", name).Error; err == nil {
			return p.ID, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}

	p = models.Participant{
		ID:              snap.ParticipantID,
		Name:            normalizeName(snap.ParticipantName),
		Email:           normalizeEmail(snap.ParticipantEmail),
		IsBlocklisted:   snap.IsBlocklisted,
		BlocklistReason: snap.BlocklistReason,
	}
	if err := db.Create(&p).Error; err != nil {
		return "", fmt.Errorf("participant recreate failed: %w", err)
	}
	return p.ID, nil
}

// findOrCreateParticipant is the registration/import identity rule: email
// first, then exact name, else a fresh row.
func (s *ParticipantService) findOrCreateParticipant(name, email string) (*models.Participant, error) {
	name = normalizeName(name)
	email = normalizeEmail(email)

	var p models.Participant
	if email != "" {
		if err := s.DB.First(&p, "email = ?", email).Error; err == nil {
			return &p, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	} else {
		if err := s.DB.First(&p, "name = ?", name).Error; err == nil {
			return &p, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	p = models.Participant{ID: uuid.NewString(), Name: name, Email: email}
	if err := s.DB.Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ParticipantService) ListParticipants(c *fiber.Ctx) error {
	search := strings.TrimSpace(c.Query("search"))
	query := s.DB.Model(&models.Participant{}).Order("name ASC")
	if search != "" {
		pat := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", pat, pat)
	}
	var participants []models.Participant
	if err := query.Find(&participants).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch participants"})
	}
	return c.JSON(participants)
}

// RegisterParticipant attaches a participant to an event. The attendance row
// starts with a NULL status (registered, not yet marked), which is what the
// no-show aggregation later counts if it is never marked.
func (s *ParticipantService) RegisterParticipant(c *fiber.Ctx) error {
	type Req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
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

	participant, err := s.findOrCreateParticipant(req.Name, req.Email)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to resolve participant", "details": err.Error()})
	}
	if participant.IsBlocklisted {
		return c.Status(403).JSON(fiber.Map{
			"error":  "participant is blocklisted",
			"reason": participant.BlocklistReason,
		})
	}

	row := models.Attendance{
		ID:            uuid.NewString(),
		EventID:       eventID,
		ParticipantID: participant.ID,
		MarkedAt:      time.Now(),
	}
	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "participant_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to register", "details": res.Error.Error()})
	}
	if res.RowsAffected == 0 {
		return c.Status(409).JSON(fiber.Map{"error": "participant already registered for this event", "participant": participant})
	}
	return c.Status(201).JSON(fiber.Map{"participant": participant, "attendance_id": row.ID})
}

// ImportParticipants reads a CSV upload (name,email per row, optional
// header) and registers each row for the event. Blocklisted participants
// and rows already registered are skipped, not errors.
func (s *ParticipantService) ImportParticipants(c *fiber.Ctx) error {
	eventID := c.Params("id")
	if err := s.DB.First(&models.Event{}, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "event not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "file is required"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "failed to open upload"})
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	imported, skipped := 0, 0
	for line := 0; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": fmt.Sprintf("invalid CSV at line %d", line+1), "details": err.Error()})
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}
		name := strings.TrimSpace(record[0])
		if line == 0 && strings.EqualFold(name, "name") {
			continue // header row
		}
		email := ""
		if len(record) > 1 {
			email = record[1]
		}

		participant, err := s.findOrCreateParticipant(name, email)
		if err != nil {
			log.Printf("[Import] failed to resolve %q: %v", name, err)
			skipped++
			continue
		}
		if participant.IsBlocklisted {
			skipped++
			continue
		}
		row := models.Attendance{
			ID:            uuid.NewString(),
			EventID:       eventID,
			ParticipantID: participant.ID,
			MarkedAt:      time.Now(),
		}
		res := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "participant_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			log.Printf("[Import] failed to register %q: %v", name, res.Error)
			skipped++
			continue
		}
		if res.RowsAffected == 0 {
			skipped++
			continue
		}
		imported++
	}
	return c.JSON(fiber.Map{"imported": imported, "skipped": skipped})
}

// DeleteAllParticipants removes every participant from the event: the
// event's attendance rows go first, then any of those participants with no
// remaining attendance anywhere is deleted too. The pre-delete snapshot is
// parked in the undo buffer under a fresh one-time token.
func (s *ParticipantService) DeleteAllParticipants(eventID string) (int, string, error) {
	rows, err := snapshotEventAttendance(s.DB, eventID)
	if err != nil {
		return 0, "", err
	}
	token := s.Buffer.Put(eventID, BackupKindParticipant, rows)

	participantIDs := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, snap := range rows {
		if !seen[snap.ParticipantID] {
			seen[snap.ParticipantID] = true
			participantIDs = append(participantIDs, snap.ParticipantID)
		}
	}

	if err := s.DB.Where("event_id = ?", eventID).Delete(&models.Attendance{}).Error; err != nil {
		return 0, "", fmt.Errorf("bulk attendance delete failed: %w", err)
	}
	if len(participantIDs) > 0 {
		// A participant with attendance at any other event survives.
		if err := s.DB.
			Where("id IN ? AND NOT EXISTS (SELECT 1 FROM attendances a WHERE a.participant_id = participants.id)", participantIDs).
			Delete(&models.Participant{}).Error; err != nil {
			return 0, "", fmt.Errorf("orphan participant delete failed: %w", err)
		}
	}
	if _, err := s.Blocklist.ReconcileCurrent(); err != nil {
		return len(participantIDs), token, err
	}
	return len(participantIDs), token, nil
}

// DeleteSelectedParticipants removes the given participants from the event
// only. No undo snapshot is taken for partial deletes.
func (s *ParticipantService) DeleteSelectedParticipants(eventID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.DB.Where("event_id = ? AND participant_id IN ?", eventID, ids).Delete(&models.Attendance{})
	if res.Error != nil {
		return 0, fmt.Errorf("selected delete failed: %w", res.Error)
	}
	if err := s.DB.
		Where("id IN ? AND NOT EXISTS (SELECT 1 FROM attendances a WHERE a.participant_id = participants.id)", ids).
		Delete(&models.Participant{}).Error; err != nil {
		return int(res.RowsAffected), fmt.Errorf("orphan participant delete failed: %w", err)
	}
	if _, err := s.Blocklist.ReconcileCurrent(); err != nil {
		return int(res.RowsAffected), err
	}
	return int(res.RowsAffected), nil
}

// UndoDeleteParticipants replays a participant bulk delete. Participants are
// re-found by email then name before being recreated, so one independently
// recreated since the delete is reused rather than duplicated; attendance
// rows whose (event, participant) pair already exists are skipped. Returns
// the number of attendance rows actually re-inserted.
func (s *ParticipantService) UndoDeleteParticipants(eventID, token string) (int, error) {
	backup, err := s.Buffer.Consume(eventID, BackupKindParticipant, token)
	if err != nil {
		return 0, err
	}

	// old snapshot id → current participant id
	idMap := make(map[string]string, len(backup.Rows))
	for _, snap := range backup.Rows {
		if _, done := idMap[snap.ParticipantID]; done {
			continue
		}
		currentID, err := s.restoreParticipant(snap)
		if err != nil {
			log.Printf("[Undo] participant restore failed for %s: %v", snap.ParticipantID, err)
			continue
		}
		idMap[snap.ParticipantID] = currentID
	}

	restored := 0
	for _, snap := range backup.Rows {
		currentID, ok := idMap[snap.ParticipantID]
		if !ok {
			continue
		}
		row := models.Attendance{
			ID:            uuid.NewString(),
			EventID:       eventID,
			ParticipantID: currentID,
			Status:        snap.Status,
			MarkedAt:      snap.MarkedAt,
		}
		res := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "participant_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			log.Printf("[Undo] attendance re-insert failed for participant %s: %v", currentID, res.Error)
			continue
		}
		restored += int(res.RowsAffected)
	}

	if _, err := s.Blocklist.ReconcileCurrent(); err != nil {
		return restored, err
	}
	return restored, nil
}

// restoreParticipant finds the snapshotted participant by email, then by
// name, and recreates it with the snapshotted fields otherwise.
func (s *ParticipantService) restoreParticipant(snap AttendanceSnapshot) (string, error) {
	var p models.Participant
	if email := normalizeEmail(snap.ParticipantEmail); email != "" {
		if err := s.DB.First(&p, "email = ?", email).Error; err == nil {
			return p.ID, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}
	if name := normalizeName(snap.ParticipantName); name != "" {
		if err := s.DB.First(&p, "name = ?", name).Error; err == nil {
			return p.ID, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}

	p = models.Participant{
		ID:              snap.ParticipantID,
		Name:            normalizeName(snap.ParticipantName),
		Email:           normalizeEmail(snap.ParticipantEmail),
		IsBlocklisted:   snap.IsBlocklisted,
		BlocklistReason: snap.BlocklistReason,
	}
	if err := s.DB.Create(&p).Error; err != nil {
		return "", fmt.Errorf("participant recreate failed: %w", err)
	}
	return p.ID, nil
}

// HTTP wrappers.

func (s *ParticipantService) DeleteAllParticipantsEndpoint(c *fiber.Ctx) error {
	eventID := c.Params("id")
	deleted, token, err := s.DeleteAllParticipants(eventID)
	if err != nil {
		log.Printf("ERROR bulk participant delete for event %s: %v", eventID, err)
		return c.Status(500).JSON(fiber.Map{"error": "bulk delete failed", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"deleted": deleted, "undo_token": token})
}

func (s *ParticipantService) DeleteSelectedParticipantsEndpoint(c *fiber.Ctx) error {
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
	deleted, err := s.DeleteSelectedParticipants(eventID, req.IDs)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "selected delete failed", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

func (s *ParticipantService) UndoDeleteParticipantsEndpoint(c *fiber.Ctx) error {
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
	restored, err := s.UndoDeleteParticipants(eventID, req.Token)
	if err != nil {
		if errors.Is(err, ErrNoUndoAvailable) {
			return c.Status(404).JSON(fiber.Map{"error": "no undo available for this event"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "undo failed", "details": err.Error()})
	}
	return c.JSON(fiber.Map{"restored": restored})
}
