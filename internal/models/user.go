package models

import "gorm.io/gorm"

// User represents an account in the system.
type User struct {
	gorm.Model
	Username     string `gorm:"size:255;unique;not null"`
	Email        string `gorm:"size:255;unique;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Name         string `gorm:"size:255"`
	AvatarURI    string `gorm:"size:512"`

	// IsReady marks onboarding as completed; it travels in the token's
	// user metadata so clients can gate the onboarding flow without a
	// profile fetch.
	IsReady bool `gorm:"not null;default:false"`
}
