package models

import "time"

const (
	StatusAttended    = "attended"
	StatusNoShow      = "no_show"
	StatusNotAttended = "not_attended" // legacy alias for no_show, still present in old rows
)

// NoShowStatuses is the canonical set of status values counted as a no-show.
// A NULL status (registered but never marked) also counts; the SQL that
// aggregates no-shows checks for NULL alongside this set.
var NoShowStatuses = []string{StatusNoShow, StatusNotAttended}

// Attendance links a participant to an event. The composite unique index
// enforces at most one row per (event, participant) pair; every write path
// goes through an upsert, never a bare insert.
type Attendance struct {
	ID            string `json:"id" gorm:"primaryKey;type:uuid"`
	EventID       string `json:"event_id" gorm:"not null;uniqueIndex:idx_attendance_event_participant"`
	ParticipantID string `json:"participant_id" gorm:"not null;uniqueIndex:idx_attendance_event_participant"`

	// NULL = registered, not yet marked (counts as a no-show)
	Status   *string   `json:"status" gorm:"type:varchar(16);check:status IN ('attended','no_show','not_attended')"`
	MarkedAt time.Time `json:"marked_at"`

	Participant *Participant `json:"participant,omitempty" gorm:"foreignKey:ParticipantID"`

	Timestamps
}

// IsNoShow reports whether this row counts toward the auto-blocklist threshold.
func (a *Attendance) IsNoShow() bool {
	if a.Status == nil {
		return true
	}
	for _, s := range NoShowStatuses {
		if *a.Status == s {
			return true
		}
	}
	return false
}
