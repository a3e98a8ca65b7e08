package models

import "gorm.io/gorm"

// User is a stored account. Exchange keys are kept encrypted.
type User struct {
	gorm.Model
	Username           string `gorm:"uniqueIndex;not null"`
	PasswordHash       string `gorm:"not null"`
	EncryptedAPIKey    string `gorm:"not null"`
	EncryptedSecretKey string `gorm:"not null"`
}
