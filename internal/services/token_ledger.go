package services

import (
	"errors"
	"time"

	"github.com/taskhive/taskhive/backend/internal/models"
	"gorm.io/gorm"
)

// TokenLedger is the sole mutation path for refresh_tokens rows. All writes
// are single conditional statements so concurrent callers never act on a
// stale read.
type TokenLedger struct {
	db *gorm.DB
}

func NewTokenLedger(db *gorm.DB) *TokenLedger {
	return &TokenLedger{db: db}
}

// WithTx returns a ledger bound to the given transaction handle.
func (l *TokenLedger) WithTx(tx *gorm.DB) *TokenLedger {
	return &TokenLedger{db: tx}
}

// Insert creates a fresh, unrevoked row for the given token value.
// A unique-index collision surfaces as ErrDuplicateToken.
func (l *TokenLedger) Insert(token string, userID uint, expiresAt time.Time) error {
	row := models.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	if err := l.db.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateToken
		}
		return err
	}
	return nil
}

// Find returns the row for the given token value regardless of its revocation
// state, or nil when no such row exists.
func (l *TokenLedger) Find(token string) (*models.RefreshToken, error) {
	var row models.RefreshToken
	if err := l.db.Where("token = ?", token).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// FindActive returns the row only if it has not been revoked; revoked rows are
// invisible to callers.
func (l *TokenLedger) FindActive(token string) (*models.RefreshToken, error) {
	var row models.RefreshToken
	if err := l.db.Where("token = ? AND is_revoked = ?", token, false).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Consume atomically revokes the row for the given token value and reports
// whether this call was the one that flipped it. Two concurrent exchanges of
// the same token see exactly one true.
func (l *TokenLedger) Consume(token string) (bool, error) {
	res := l.db.Model(&models.RefreshToken{}).
		Where("token = ? AND is_revoked = ?", token, false).
		Update("is_revoked", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RevokeByToken revokes the row for the given token value. Idempotent: a
// second call affects zero rows and is not an error.
func (l *TokenLedger) RevokeByToken(token string) (int64, error) {
	res := l.db.Model(&models.RefreshToken{}).
		Where("token = ? AND is_revoked = ?", token, false).
		Update("is_revoked", true)
	return res.RowsAffected, res.Error
}

// RevokeAllForUser revokes every active row owned by the given user.
func (l *TokenLedger) RevokeAllForUser(userID uint) (int64, error) {
	res := l.db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND is_revoked = ?", userID, false).
		Update("is_revoked", true)
	return res.RowsAffected, res.Error
}

// SweepExpired flags every expired-but-unrevoked row. Rows are kept for audit,
// never deleted.
func (l *TokenLedger) SweepExpired() (int64, error) {
	res := l.db.Model(&models.RefreshToken{}).
		Where("is_revoked = ? AND expires_at < ?", false, time.Now()).
		Update("is_revoked", true)
	return res.RowsAffected, res.Error
}
