package domain

import "time"

const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
)

// Profile is the application-owned row keyed by the identity id.
type Profile struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string    `gorm:"type:text;uniqueIndex;not null" json:"username"`
	FullName     string    `gorm:"type:text" json:"full_name"`
	Email        string    `gorm:"type:text;not null" json:"email"`
	PhoneNumber  string    `gorm:"type:text" json:"phone_number"`
	Location     string    `gorm:"type:text" json:"location"`
	AvatarURL    *string   `gorm:"type:text" json:"avatar_url,omitempty"`
	AuthProvider string    `gorm:"type:text;not null;default:email" json:"auth_provider"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Profile) TableName() string { return "user_profiles" }

// ProfileFields are the user supplied columns written once at sign-up.
type ProfileFields struct {
	Username     string
	FullName     string
	Email        string
	PhoneNumber  string
	Location     string
	AuthProvider string
}

// NewProfile builds the row inserted for identityID.
func NewProfile(identityID string, f ProfileFields) *Profile {
	provider := f.AuthProvider
	if provider == "" {
		provider = ProviderEmail
	}
	return &Profile{
		ID:           identityID,
		Username:     f.Username,
		FullName:     f.FullName,
		Email:        f.Email,
		PhoneNumber:  f.PhoneNumber,
		Location:     f.Location,
		AuthProvider: provider,
	}
}

// ProviderDisplayName is the label the dashboard shows for a profile's auth provider.
func ProviderDisplayName(provider string) string {
	if provider == ProviderGoogle {
		return "Google"
	}
	return "Email/Password"
}
