package models

import "time"

// GeneratedImage is a saved generation result. The transient base64
// payload never lands here; only images the user chose to keep get a
// row, pointing at the public blob URL.
type GeneratedImage struct {
	ID        string `gorm:"primaryKey"` // UUID
	UserID    string `gorm:"index"`
	Prompt    string
	Model     string
	URL       string
	Filename  string
	CreatedAt time.Time
}
