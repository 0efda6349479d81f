package models

import (
	"time"
)

type Event struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string    `json:"name" gorm:"not null"`
	Slug        string    `json:"slug" gorm:"uniqueIndex;not null"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`

	// Computed on detail fetch, never stored
	ParticipantsCount int64 `json:"participants_count,omitempty" gorm:"-"`
	AttendedCount     int64 `json:"attended_count,omitempty" gorm:"-"`
	NoShowCount       int64 `json:"no_show_count,omitempty" gorm:"-"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
