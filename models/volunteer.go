package models

// Volunteer is a helper assigned to a single event. Volunteers are tracked
// separately from participants and never feed the no-show reconciler.
type Volunteer struct {
	ID      string `json:"id" gorm:"primaryKey;type:uuid"`
	EventID string `json:"event_id" gorm:"index;not null"`
	Name    string `json:"name" gorm:"not null"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Role    string `json:"role" gorm:"type:varchar(32);default:'general'"`

	Timestamps
}
