package models

import "time"

// Settings is a single-row table (ID is always 1) holding the tunables the
// admin dashboard exposes. The reconciler reads the threshold from here on
// every trigger, so changes take effect without a restart.
type Settings struct {
	ID                     int       `json:"-" gorm:"primaryKey"`
	AutoBlocklistThreshold int       `json:"auto_blocklist_threshold" gorm:"default:3"`
	AutoBlocklistEnabled   bool      `json:"auto_blocklist_enabled" gorm:"default:true"`
	UpdatedAt              time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// DefaultSettings are used until the row is first persisted.
func DefaultSettings() Settings {
	return Settings{
		ID:                     1,
		AutoBlocklistThreshold: 3,
		AutoBlocklistEnabled:   true,
	}
}
