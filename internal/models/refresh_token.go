package models

import "time"

// RefreshToken is one ledger row per issued refresh token. Rows are never
// deleted: revocation flips IsRevoked exactly once and the row stays behind
// as an audit record.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"uniqueIndex;size:512;not null" json:"-"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	IsRevoked bool      `gorm:"not null;default:false" json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

// IsExpired reports whether the row's expiry has passed.
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsValid reports whether the token may still be exchanged: not revoked and
// not expired. The signed envelope is checked separately by the verifier.
func (t *RefreshToken) IsValid() bool {
	return !t.IsRevoked && !t.IsExpired()
}
