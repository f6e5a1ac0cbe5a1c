package models

import "time"

// Profile is a saved Chrome user-data directory holding a WhatsApp Web login
type Profile struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
	Size      int64     `json:"size"`
	DataPath  string    `json:"-"` // Path to the archive (internal only)
}
