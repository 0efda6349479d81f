package services

import (
	"testing"

	"event-attendance-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileThresholdIsInclusive(t *testing.T) {
	db := openTestDB(t)
	svc := NewBlocklistService(db)
	eventA := createEvent(t, db, "workshop-a")
	eventB := createEvent(t, db, "workshop-b")

	twoMisses := createParticipant(t, db, "Ada", "ada@example.com")
	markStatus(t, db, eventA.ID, twoMisses.ID, strPtr(models.StatusNoShow))
	markStatus(t, db, eventB.ID, twoMisses.ID, strPtr(models.StatusNoShow))

	oneMiss := createParticipant(t, db, "Ben", "ben@example.com")
	markStatus(t, db, eventA.ID, oneMiss.ID, strPtr(models.StatusNoShow))

	result, err := svc.Reconcile(2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 0, result.Removed)
	assert.Empty(t, result.Errors)

	var p models.Participant
	require.NoError(t, db.First(&p, "id = ?", twoMisses.ID).Error)
	assert.True(t, p.IsBlocklisted)
	require.NotNil(t, p.BlocklistReason)

	p = models.Participant{}
	require.NoError(t, db.First(&p, "id = ?", oneMiss.ID).Error)
	assert.False(t, p.IsBlocklisted)
}

func TestReconcileIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	svc := NewBlocklistService(db)
	eventA := createEvent(t, db, "meetup-a")
	eventB := createEvent(t, db, "meetup-b")
	p := createParticipant(t, db, "Cleo", "cleo@example.com")
	markStatus(t, db, eventA.ID, p.ID, strPtr(models.StatusNoShow))
	markStatus(t, db, eventB.ID, p.ID, strPtr(models.StatusNoShow))

	first, err := svc.Reconcile(2)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Added)

	second, err := svc.Reconcile(2)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 0, second.Removed)
}

func TestReconcileCountsNullAndLegacyStatuses(t *testing.T) {
	db := openTestDB(t)
	svc := NewBlocklistService(db)
	eventA := createEvent(t, db, "expo-a")
	eventB := createEvent(t, db, "expo-b")
	eventC := createEvent(t, db, "expo-c")

	p := createParticipant(t, db, "Dot", "dot@example.com")
	markStatus(t, db, eventA.ID, p.ID, nil)                              // registered, never marked
	markStatus(t, db, eventB.ID, p.ID, strPtr(models.StatusNotAttended)) // legacy value
	markStatus(t, db, eventC.ID, p.ID, strPtr(models.StatusAttended))    // does not count

	result, err := svc.Reconcile(2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
}

func TestReconcileNeverTouchesManualEntries(t *testing.T) {
	db := openTestDB(t)
	svc := NewBlocklistService(db)

	// Manually blocklisted with zero no-shows: must stay blocklisted.
	clean := createParticipant(t, db, "Eve", "eve@example.com")
	require.NoError(t, db.Create(&models.BlocklistEntry{
		ID:            uuid.NewString(),
		ParticipantID: clean.ID,
		Reason:        models.BlocklistReasonManual,
		Note:          "banned by admin",
	}).Error)
	require.NoError(t, db.Model(&models.Participant{}).Where("id = ?", clean.ID).
		Update("is_blocklisted", true).Error)

	// Manually blocklisted and over threshold: entry must not be duplicated.
	eventA := createEvent(t, db, "gala-a")
	eventB := createEvent(t, db, "gala-b")
	repeat := createParticipant(t, db, "Fay", "fay@example.com")
	markStatus(t, db, eventA.ID, repeat.ID, strPtr(models.StatusNoShow))
	markStatus(t, db, eventB.ID, repeat.ID, strPtr(models.StatusNoShow))
	require.NoError(t, db.Create(&models.BlocklistEntry{
		ID:            uuid.NewString(),
		ParticipantID: repeat.ID,
		Reason:        models.BlocklistReasonManual,
	}).Error)

	result, err := svc.Reconcile(2)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 0, result.Removed)

	var entries []models.BlocklistEntry
	require.NoError(t, db.Where("participant_id = ?", clean.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, models.BlocklistReasonManual, entries[0].Reason)

	require.NoError(t, db.Where("participant_id = ?", repeat.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, models.BlocklistReasonManual, entries[0].Reason)

	var p models.Participant
	require.NoError(t, db.First(&p, "id = ?", clean.ID).Error)
	assert.True(t, p.IsBlocklisted)
}

func TestReconcileReleasesOnImprovement(t *testing.T) {
	db := openTestDB(t)
	svc := NewBlocklistService(db)
	eventA := createEvent(t, db, "fair-a")
	eventB := createEvent(t, db, "fair-b")
	p := createParticipant(t, db, "Gus", "gus@example.com")
	dropped := markStatus(t, db, eventA.ID, p.ID, strPtr(models.StatusNoShow))
	markStatus(t, db, eventB.ID, p.ID, strPtr(models.StatusNoShow))

	_, err := svc.Reconcile(2)
	require.NoError(t, err)

	require.NoError(t, db.Delete(&models.Attendance{}, "id = ?", dropped.ID).Error)

	result, err := svc.Reconcile(2)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 1, result.Removed)

	var loaded models.Participant
	require.NoError(t, db.First(&loaded, "id = ?", p.ID).Error)
	assert.False(t, loaded.IsBlocklisted)
	assert.Nil(t, loaded.BlocklistReason)

	var count int64
	db.Model(&models.BlocklistEntry{}).Where("participant_id = ?", p.ID).Count(&count)
	assert.Zero(t, count)
}

func TestReconcileNeverDuplicatesEntries(t *testing.T) {
	db := openTestDB(t)
	svc := NewBlocklistService(db)
	eventA := createEvent(t, db, "camp-a")
	eventB := createEvent(t, db, "camp-b")
	p := createParticipant(t, db, "Hal", "hal@example.com")
	markStatus(t, db, eventA.ID, p.ID, strPtr(models.StatusNoShow))
	markStatus(t, db, eventB.ID, p.ID, strPtr(models.StatusNoShow))

	for i := 0; i < 4; i++ {
		_, err := svc.Reconcile(2)
		require.NoError(t, err)
	}

	var count int64
	db.Model(&models.BlocklistEntry{}).Where("participant_id = ?", p.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestReconcileRejectsBadThreshold(t *testing.T) {
	db := openTestDB(t)
	svc := NewBlocklistService(db)
	_, err := svc.Reconcile(0)
	assert.Error(t, err)
}

func TestReconcileCurrentDisabled(t *testing.T) {
	db := openTestDB(t)
	svc := NewBlocklistService(db)
	require.NoError(t, db.Create(&models.Settings{
		ID: 1, AutoBlocklistThreshold: 1, AutoBlocklistEnabled: false,
	}).Error)
	// GORM replaces a zero-value bool with its default:true tag on insert, so
	// the disabled flag can only be stored via an explicit update.
	require.NoError(t, db.Model(&models.Settings{}).Where("id = 1").
		Update("auto_blocklist_enabled", false).Error)

	event := createEvent(t, db, "quiet")
	p := createParticipant(t, db, "Ira", "ira@example.com")
	markStatus(t, db, event.ID, p.ID, strPtr(models.StatusNoShow))

	result, err := svc.ReconcileCurrent()
	require.NoError(t, err)
	assert.Zero(t, result.Added)

	var loaded models.Participant
	require.NoError(t, db.First(&loaded, "id = ?", p.ID).Error)
	assert.False(t, loaded.IsBlocklisted)
}

// Full lifecycle: block, release after a no-show is deleted, re-block after
// it is marked again, with exactly one entry throughout.
func TestReconcileEndToEnd(t *testing.T) {
	db := openTestDB(t)
	svc := NewBlocklistService(db)
	eventA := createEvent(t, db, "summit-a")
	eventB := createEvent(t, db, "summit-b")
	p := createParticipant(t, db, "Joy", "joy@example.com")
	rowA := markStatus(t, db, eventA.ID, p.ID, strPtr(models.StatusNoShow))
	markStatus(t, db, eventB.ID, p.ID, strPtr(models.StatusNoShow))

	result, err := svc.Reconcile(2)
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)

	var entry models.BlocklistEntry
	require.NoError(t, db.First(&entry, "participant_id = ?", p.ID).Error)
	assert.Equal(t, models.BlocklistReasonAutoNoShow, entry.Reason)

	require.NoError(t, db.Delete(&models.Attendance{}, "id = ?", rowA.ID).Error)
	result, err = svc.Reconcile(2)
	require.NoError(t, err)
	require.Equal(t, 1, result.Removed)

	var loaded models.Participant
	require.NoError(t, db.First(&loaded, "id = ?", p.ID).Error)
	require.False(t, loaded.IsBlocklisted)

	markStatus(t, db, eventA.ID, p.ID, strPtr(models.StatusNoShow))
	result, err = svc.Reconcile(2)
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)

	var count int64
	db.Model(&models.BlocklistEntry{}).Where("participant_id = ?", p.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}
