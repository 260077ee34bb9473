package models

import "time"

// Speech is a speech draft owned by a user.
type Speech struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	PublicID string `gorm:"type:varchar(36);not null;uniqueIndex"` // Externally visible UUID.
	UserID   uint64 `gorm:"not null;index"`                        // Owning user ID.

	Title    string `gorm:"type:text;not null"` // Speech title.
	Occasion string `gorm:"type:text"`          // Occasion the speech is written for.
	Content  string `gorm:"type:text"`          // Speech body.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
