package models

import "time"

// Closed set of blocklist reasons. The reconciler only ever creates or
// removes auto_no_show entries; manual entries belong to the administrator.
const (
	BlocklistReasonManual     = "manual"
	BlocklistReasonAutoNoShow = "auto_no_show"
)

// BlocklistEntry bars a participant from registration. The unique index on
// ParticipantID enforces at most one entry per participant; both the
// reconciler and the manual add path insert with ON CONFLICT DO NOTHING
// against it, so an existing entry is never duplicated or overwritten.
type BlocklistEntry struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid"`
	ParticipantID string    `json:"participant_id" gorm:"uniqueIndex;not null"`
	Reason        string    `json:"reason" gorm:"type:varchar(16);not null;check:reason IN ('manual','auto_no_show')"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`

	Participant *Participant `json:"participant,omitempty" gorm:"foreignKey:ParticipantID"`
}
