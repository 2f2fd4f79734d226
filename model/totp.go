package model

// TOTPSecret holds one shared secret per user. IsVerified flips to true
// exactly once, when the user first proves they can produce a valid code.
// Session-level "verified this login" state is never stored here, it lives
// in the JWT minted by the verify endpoint.
type TOTPSecret struct {
	UserID     string `gorm:"primaryKey"`
	Secret     string `gorm:"not null"` // base32, no padding
	IsVerified bool   `gorm:"default:false"`
}
