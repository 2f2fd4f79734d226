package model

const RoleAdmin = "admin"

// RoleAssignment rows are only ever read through the admin gate middleware.
// Handlers never query this table on behalf of a caller, so authenticated
// users can't probe who holds which role.
type RoleAssignment struct {
	ID     uint   `gorm:"primaryKey;autoIncrement"`
	UserID string `gorm:"uniqueIndex:idx_user_role;not null"`
	Role   string `gorm:"uniqueIndex:idx_user_role;not null"`
}
