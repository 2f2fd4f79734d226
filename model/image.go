package model

const (
	ExpiryTime  = "time"
	ExpiryViews = "views"
)

type PrivateImage struct {
	ID string `gorm:"primaryKey" json:"id"`

	// The only identifier ever embedded in public URLs
	AccessToken string `gorm:"uniqueIndex;not null" json:"accessToken"`

	// Key the blob is stored under. Generated, never derived from the
	// original name so the storage layout can't leak filenames
	StorageKey string `json:"-"`

	OriginalName string `json:"name"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
	UploadedBy   string `json:"-"`

	// Exactly one of ExpiryHours/MaxViews is meaningful, selected by ExpiryType
	ExpiryType  string `gorm:"not null" json:"expiryType"`
	ExpiryHours int    `json:"expiryHours,omitempty"`
	MaxViews    int    `json:"maxViews,omitempty"`

	// Unix seconds, computed once at creation and never recomputed
	ExpiresAt *int64 `json:"expiresAt,omitempty"`

	CurrentViews int   `json:"currentViews"`
	IsRevoked    bool  `json:"isRevoked"`
	CreatedAt    int64 `gorm:"not null" json:"createdAt"`
}
