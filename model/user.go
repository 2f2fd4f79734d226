// Package model defines database models
package model

type User struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"unique;not null"`
	PasswordHash string `gorm:"not null"`

	Roles  []RoleAssignment `gorm:"foreignKey:UserID"`
	TOTP   *TOTPSecret      `gorm:"foreignKey:UserID"`
	Images []PrivateImage   `gorm:"foreignKey:UploadedBy"`
}
