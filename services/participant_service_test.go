package services

import (
	"testing"

	"event-attendance-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newParticipantService(t *testing.T) (*ParticipantService, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	seedSettings(t, db, 3)
	blocklist := NewBlocklistService(db)
	return NewParticipantService(db, blocklist, NewUndoBuffer()), db
}

func TestDeleteAllParticipantsAndUndo(t *testing.T) {
	svc, db := newParticipantService(t)
	event := createEvent(t, db, "hackathon")

	names := []string{"Ada", "Ben", "Cleo"}
	ids := make([]string, 0, 3)
	for _, name := range names {
		p := createParticipant(t, db, name, name+"@example.com")
		markStatus(t, db, event.ID, p.ID, strPtr(models.StatusAttended))
		ids = append(ids, p.ID)
	}

	deleted, token, err := svc.DeleteAllParticipants(event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	require.NotEmpty(t, token)

	var count int64
	db.Model(&models.Attendance{}).Where("event_id = ?", event.ID).Count(&count)
	assert.Zero(t, count)
	db.Model(&models.Participant{}).Count(&count)
	assert.Zero(t, count)

	restored, err := svc.UndoDeleteParticipants(event.ID, token)
	require.NoError(t, err)
	assert.Equal(t, 3, restored)

	db.Model(&models.Attendance{}).Where("event_id = ?", event.ID).Count(&count)
	assert.EqualValues(t, 3, count)

	// Recreated participants keep their snapshotted identities.
	for _, id := range ids {
		var p models.Participant
		assert.NoError(t, db.First(&p, "id = ?", id).Error)
	}
}

func TestDeleteAllKeepsParticipantsWithOtherEvents(t *testing.T) {
	svc, db := newParticipantService(t)
	eventA := createEvent(t, db, "conf-a")
	eventB := createEvent(t, db, "conf-b")

	regular := createParticipant(t, db, "Dot", "dot@example.com")
	markStatus(t, db, eventA.ID, regular.ID, strPtr(models.StatusAttended))
	markStatus(t, db, eventB.ID, regular.ID, strPtr(models.StatusAttended))

	oneOff := createParticipant(t, db, "Eve", "eve@example.com")
	markStatus(t, db, eventA.ID, oneOff.ID, strPtr(models.StatusAttended))

	deleted, _, err := svc.DeleteAllParticipants(eventA.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	var p models.Participant
	assert.NoError(t, db.First(&p, "id = ?", regular.ID).Error)
	assert.ErrorIs(t, db.First(&p, "id = ?", oneOff.ID).Error, gorm.ErrRecordNotFound)

	var count int64
	db.Model(&models.Attendance{}).Where("event_id = ?", eventB.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestUndoParticipantsIsSingleUse(t *testing.T) {
	svc, db := newParticipantService(t)
	event := createEvent(t, db, "retreat")
	p := createParticipant(t, db, "Fay", "fay@example.com")
	markStatus(t, db, event.ID, p.ID, strPtr(models.StatusAttended))

	_, token, err := svc.DeleteAllParticipants(event.ID)
	require.NoError(t, err)

	restored, err := svc.UndoDeleteParticipants(event.ID, token)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	_, err = svc.UndoDeleteParticipants(event.ID, token)
	assert.ErrorIs(t, err, ErrNoUndoAvailable)
}

// A participant independently recreated between delete and undo is reused
// by email, and the restore still consumes the token.
func TestUndoParticipantsDedupsByEmail(t *testing.T) {
	svc, db := newParticipantService(t)
	event := createEvent(t, db, "festival")

	for _, name := range []string{"Gus", "Hal", "Ira"} {
		p := createParticipant(t, db, name, name+"@example.com")
		markStatus(t, db, event.ID, p.ID, strPtr(models.StatusAttended))
	}

	_, token, err := svc.DeleteAllParticipants(event.ID)
	require.NoError(t, err)

	// Gus signs up again before the admin hits undo.
	recreated, err := svc.findOrCreateParticipant("Gus", "gus@example.com")
	require.NoError(t, err)
	markStatus(t, db, event.ID, recreated.ID, nil)

	restored, err := svc.UndoDeleteParticipants(event.ID, token)
	require.NoError(t, err)
	assert.Equal(t, 2, restored) // Gus's row already exists and is skipped

	var count int64
	db.Model(&models.Attendance{}).Where("event_id = ?", event.ID).Count(&count)
	assert.EqualValues(t, 3, count)

	db.Model(&models.Participant{}).Where("email = ?", "gus@example.com").Count(&count)
	assert.EqualValues(t, 1, count)

	_, err = svc.UndoDeleteParticipants(event.ID, token)
	assert.ErrorIs(t, err, ErrNoUndoAvailable)
}

func TestDeleteSelectedParticipantsHasNoUndo(t *testing.T) {
	svc, db := newParticipantService(t)
	event := createEvent(t, db, "brunch")
	keep := createParticipant(t, db, "Joy", "joy@example.com")
	drop := createParticipant(t, db, "Kim", "kim@example.com")
	markStatus(t, db, event.ID, keep.ID, strPtr(models.StatusAttended))
	markStatus(t, db, event.ID, drop.ID, strPtr(models.StatusAttended))

	deleted, err := svc.DeleteSelectedParticipants(event.ID, []string{drop.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	var p models.Participant
	assert.NoError(t, db.First(&p, "id = ?", keep.ID).Error)
	assert.ErrorIs(t, db.First(&p, "id = ?", drop.ID).Error, gorm.ErrRecordNotFound)

	_, err = svc.UndoDeleteParticipants(event.ID, "any-token")
	assert.ErrorIs(t, err, ErrNoUndoAvailable)
}

// Two bulk deletes for the same event race on one slot: the second delete
// overwrites the first backup, so only the newest token restores. Accepted
// limitation, not a bug.
func TestSecondDeleteOverwritesUndoSlot(t *testing.T) {
	svc, db := newParticipantService(t)
	event := createEvent(t, db, "gala")
	p := createParticipant(t, db, "Lee", "lee@example.com")
	markStatus(t, db, event.ID, p.ID, strPtr(models.StatusAttended))

	_, firstToken, err := svc.DeleteAllParticipants(event.ID)
	require.NoError(t, err)

	q := createParticipant(t, db, "Mia", "mia@example.com")
	markStatus(t, db, event.ID, q.ID, strPtr(models.StatusAttended))
	_, secondToken, err := svc.DeleteAllParticipants(event.ID)
	require.NoError(t, err)

	_, err = svc.UndoDeleteParticipants(event.ID, firstToken)
	assert.ErrorIs(t, err, ErrNoUndoAvailable)

	restored, err := svc.UndoDeleteParticipants(event.ID, secondToken)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
}

// Bulk participant delete can release an auto-blocklisted participant.
func TestDeleteAllParticipantsReconciles(t *testing.T) {
	svc, db := newParticipantService(t)
	eventA := createEvent(t, db, "series-a")
	eventB := createEvent(t, db, "series-b")
	p := createParticipant(t, db, "Ned", "ned@example.com")
	markStatus(t, db, eventA.ID, p.ID, strPtr(models.StatusNoShow))
	markStatus(t, db, eventB.ID, p.ID, strPtr(models.StatusNoShow))
	markStatus(t, db, eventB.ID, createParticipant(t, db, "Oda", "oda@example.com").ID, strPtr(models.StatusAttended))

	require.NoError(t, db.Model(&models.Settings{}).Where("id = 1").
		Update("auto_blocklist_threshold", 2).Error)

	_, err := svc.Blocklist.ReconcileCurrent()
	require.NoError(t, err)
	var blocked models.Participant
	require.NoError(t, db.First(&blocked, "id = ?", p.ID).Error)
	require.True(t, blocked.IsBlocklisted)

	// Ned still attends B, so he survives the bulk delete of A; his A
	// no-show is gone and the reconciler releases him.
	_, _, err = svc.DeleteAllParticipants(eventA.ID)
	require.NoError(t, err)

	require.NoError(t, db.First(&blocked, "id = ?", p.ID).Error)
	assert.False(t, blocked.IsBlocklisted)
}
