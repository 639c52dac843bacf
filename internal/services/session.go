package services

import (
	"errors"

	"github.com/taskhive/taskhive/backend/internal/models"
	"github.com/taskhive/taskhive/backend/internal/utils"
	"github.com/taskhive/taskhive/backend/pkg/logger"
	"gorm.io/gorm"
)

// Error taxonomy surfaced to the HTTP boundary. Infrastructure errors from
// the database propagate as-is and must not be mapped to 401 semantics.
var (
	// ErrInvalidToken: malformed, forged, wrong type, or unknown to the ledger.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken: structurally valid but past expiry (JWT exp or ledger row).
	ErrExpiredToken = errors.New("expired token")
	// ErrRevokedToken: the ledger row exists but has been revoked.
	ErrRevokedToken = errors.New("revoked token")
	// ErrDuplicateToken: ledger unique-index collision; implies a broken
	// token generator and is treated as fatal, never ignored.
	ErrDuplicateToken = errors.New("duplicate refresh token")
	// ErrUnknownUser: the subject does not resolve to an existing account.
	ErrUnknownUser = errors.New("unknown user")
)

// TokenPair is what every successful issue/refresh hands back to the caller.
// ExpiresIn is the access token's remaining lifetime in seconds, derived from
// its own exp claim.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// SessionService orchestrates the signer/verifier and the refresh-token
// ledger. It holds no in-process mutable state; the ledger table is the only
// shared resource.
type SessionService struct {
	db     *gorm.DB
	ledger *TokenLedger
}

func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{
		db:     db,
		ledger: NewTokenLedger(db),
	}
}

// Issue signs a new access/refresh pair for the user and persists the refresh
// half. Any refresh tokens the user already holds are revoked first, so at
// most one session is active per user. Revoke-all and insert run in one
// transaction to keep two concurrent logins from both ending up active.
func (s *SessionService) Issue(userID uint) (*TokenPair, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrUnknownUser
	}

	accessToken, expiresIn, err := utils.SignAccessToken(userID)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshExpiresAt, err := utils.SignRefreshToken(userID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		if _, err := ledger.RevokeAllForUser(userID); err != nil {
			return err
		}
		return ledger.Insert(refreshToken, userID, refreshExpiresAt)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateToken) {
			logger.Error().Uint("user_id", userID).Msg("refresh token collision on issue")
		}
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// Refresh exchanges a valid refresh token for a brand-new pair and revokes the
// token just consumed. A refresh token is single-use: the revoke is a single
// conditional update, so of two racing exchanges exactly one succeeds.
func (s *SessionService) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := utils.VerifyRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		logger.Warn().Err(err).Msg("refresh rejected: bad token envelope")
		return nil, ErrInvalidToken
	}

	row, err := s.ledger.Find(refreshToken)
	if err != nil {
		return nil, err
	}
	if row == nil {
		// Signed by us but never persisted; nothing to exchange.
		logger.Warn().Uint("user_id", claims.UserID()).Msg("refresh rejected: token not in ledger")
		return nil, ErrInvalidToken
	}
	if row.IsRevoked {
		return nil, ErrRevokedToken
	}
	if row.IsExpired() {
		// Lazy expiry marking: flag the row now rather than waiting for the
		// sweeper, then reject.
		if _, err := s.ledger.RevokeByToken(refreshToken); err != nil {
			return nil, err
		}
		return nil, ErrExpiredToken
	}

	accessToken, expiresIn, err := utils.SignAccessToken(row.UserID)
	if err != nil {
		return nil, err
	}

	newRefreshToken, refreshExpiresAt, err := utils.SignRefreshToken(row.UserID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		consumed, err := ledger.Consume(refreshToken)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrRevokedToken
		}
		return ledger.Insert(newRefreshToken, row.UserID, refreshExpiresAt)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateToken) {
			logger.Error().Uint("user_id", row.UserID).Msg("refresh token collision on rotate")
		}
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// RevokeOne revokes a single refresh token. Logout must never fail loudly:
// an unknown or already-revoked token is a successful no-op.
func (s *SessionService) RevokeOne(refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	_, err := s.ledger.RevokeByToken(refreshToken)
	return err
}

// RevokeAll revokes every active refresh token the user holds ("log out
// everywhere"). Idempotent like RevokeOne.
func (s *SessionService) RevokeAll(userID uint) error {
	_, err := s.ledger.RevokeAllForUser(userID)
	return err
}

// Ledger exposes the underlying ledger, mainly for the sweep scheduler.
func (s *SessionService) Ledger() *TokenLedger {
	return s.ledger
}
