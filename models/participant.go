package models

// Participant is a person who registered for at least one event.
// Email is the identity key for find-or-create on registration, CSV import
// and undo restore; it is normalized (trimmed, lowercased) before storage.
type Participant struct {
	ID    string `json:"id" gorm:"primaryKey;type:uuid"`
	Name  string `json:"name" gorm:"not null;index"`
	Email string `json:"email" gorm:"index"`

	// Denormalized blocklist state, kept in sync with BlocklistEntry by the
	// reconciler and the manual blocklist operations. No other path writes it.
	IsBlocklisted   bool    `json:"is_blocklisted" gorm:"default:false"`
	BlocklistReason *string `json:"blocklist_reason,omitempty"`

	Timestamps
}
