package db

import (
	"errors"
	"fmt"

	"github.com/fluxgate/fluxgate/internal/db/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// ErrInsufficientCoins is returned when a spend would drive a balance
// negative. Balances are invariantly non-negative.
var ErrInsufficientCoins = errors.New("insufficient coins")

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Account{},
		&models.LinkedAccount{},
		&models.GeneratedImage{},
		&models.WebhookEvent{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

// CreditCoins adds amount to a user's balance inside a transaction.
func CreditCoins(db *gorm.DB, userID string, amount int) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}

	var balance int
	err := db.Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Where("id = ?", userID).First(&account).Error; err != nil {
			return fmt.Errorf("account %s not found: %w", userID, err)
		}
		account.Coins += amount
		if err := tx.Save(&account).Error; err != nil {
			return err
		}
		balance = account.Coins
		return nil
	})
	return balance, err
}

// SpendCoins subtracts amount from a user's balance, refusing to go
// negative.
func SpendCoins(db *gorm.DB, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("spend amount must be positive, got %d", amount)
	}

	var balance int
	err := db.Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Where("id = ?", userID).First(&account).Error; err != nil {
			return fmt.Errorf("account %s not found: %w", userID, err)
		}
		if account.Coins < amount {
			return ErrInsufficientCoins
		}
		account.Coins -= amount
		if err := tx.Save(&account).Error; err != nil {
			return err
		}
		balance = account.Coins
		return nil
	})
	return balance, err
}
