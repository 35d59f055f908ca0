package repository

import (
	"fmt"

	"ripple/internal/domain"

	"gorm.io/gorm"
)

// InitSchema creates required extensions and runs the auto-migration for the
// messaging tables.
func InitSchema(db *gorm.DB) error {
	// citext backs the case-insensitive username/email columns.
	// Note: Creating extensions usually requires superuser privileges.
	// If this fails, ensure the extension is pre-installed or the user has
	// permissions.
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "citext";`).Error; err != nil {
		return fmt.Errorf("failed to create extension: %w", err)
	}

	return db.AutoMigrate(
		&domain.User{},
		&domain.Conversation{},
		&domain.Participant{},
		&domain.Message{},
	)
}
