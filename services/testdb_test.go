package services

import (
	"fmt"
	"testing"
	"time"

	"event-attendance-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB returns an isolated in-memory database with the full schema.
// cache=shared keeps the DB alive across the pool's connections.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Event{},
		&models.Participant{},
		&models.Attendance{},
		&models.BlocklistEntry{},
		&models.Volunteer{},
		&models.Settings{},
	))
	return db
}

func seedSettings(t *testing.T, db *gorm.DB, threshold int) {
	t.Helper()
	cfg := models.Settings{ID: 1, AutoBlocklistThreshold: threshold, AutoBlocklistEnabled: true}
	require.NoError(t, db.Create(&cfg).Error)
}

func createEvent(t *testing.T, db *gorm.DB, name string) *models.Event {
	t.Helper()
	event := models.Event{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      fmt.Sprintf("%s-%s", name, uuid.NewString()[:8]),
		StartTime: time.Now(),
	}
	require.NoError(t, db.Create(&event).Error)
	return &event
}

func createParticipant(t *testing.T, db *gorm.DB, name, email string) *models.Participant {
	t.Helper()
	p := models.Participant{ID: uuid.NewString(), Name: name, Email: email}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

// markStatus inserts an attendance row directly. A nil status models the
// legacy registered-but-never-marked rows.
func markStatus(t *testing.T, db *gorm.DB, eventID, participantID string, status *string) *models.Attendance {
	t.Helper()
	row := models.Attendance{
		ID:            uuid.NewString(),
		EventID:       eventID,
		ParticipantID: participantID,
		Status:        status,
		MarkedAt:      time.Now(),
	}
	require.NoError(t, db.Create(&row).Error)
	return &row
}

func strPtr(s string) *string { return &s }
