package models

import "time"

// Account is a local user with a coin balance. New accounts start with
// InitialCoins so first-time users can generate without paying.
type Account struct {
	ID        string `gorm:"primaryKey"` // UUID
	Email     string `gorm:"uniqueIndex"`
	Username  string
	Coins     int `gorm:"default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InitialCoins is the balance granted on signup.
const InitialCoins = 100
