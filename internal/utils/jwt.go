package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrInvalidToken covers bad signatures, malformed tokens, wrong
	// issuer/audience and wrong token type.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for structurally valid tokens past their exp.
	ErrTokenExpired = errors.New("token expired")
)

var (
	accessSecret  []byte
	refreshSecret []byte // empty means "use accessSecret"

	tokenIssuer   = "task-management-app"
	tokenAudience = "task-management-users"

	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

// TokenClaims are the claims carried by both token classes. The Type
// discriminator prevents an access token from being replayed as a refresh
// token and vice versa.
type TokenClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject of the token, or 0 if it is malformed.
func (c *TokenClaims) UserID() uint {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// SetJWTSecret sets the signing secret for access tokens.
func SetJWTSecret(secret string) {
	accessSecret = []byte(secret)
}

// SetJWTRefreshSecret sets the signing secret for refresh tokens. When unset,
// refresh tokens fall back to the access secret.
func SetJWTRefreshSecret(secret string) {
	refreshSecret = []byte(secret)
}

// RefreshSecretConfigured reports whether a distinct refresh secret is set.
func RefreshSecretConfigured() bool {
	return len(refreshSecret) > 0
}

// SetTokenLifetimes overrides the default 15m/7d token lifetimes.
func SetTokenLifetimes(access, refresh time.Duration) {
	if access > 0 {
		accessTTL = access
	}
	if refresh > 0 {
		refreshTTL = refresh
	}
}

// SetTokenIssuerAudience overrides the default issuer/audience pair.
func SetTokenIssuerAudience(issuer, audience string) {
	if issuer != "" {
		tokenIssuer = issuer
	}
	if audience != "" {
		tokenAudience = audience
	}
}

func refreshSigningSecret() []byte {
	if len(refreshSecret) > 0 {
		return refreshSecret
	}
	return accessSecret
}

func signToken(userID uint, tokenType string, ttl time.Duration, secret []byte) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := TokenClaims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			// jti keeps two tokens for the same user minted in the same
			// second from colliding on the ledger's unique index.
			ID: uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// SignAccessToken mints a short-lived access token for the given user.
// expiresIn is the number of seconds until expiry, read back from the minted
// token's own exp claim so it matches what a verifier will later compute.
func SignAccessToken(userID uint) (token string, expiresIn int64, err error) {
	token, _, err = signToken(userID, TokenTypeAccess, accessTTL, accessSecret)
	if err != nil {
		return "", 0, err
	}

	var claims TokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		expiresIn = claims.ExpiresAt.Unix() - time.Now().Unix()
	} else {
		expiresIn = int64(accessTTL / time.Second)
	}
	return token, expiresIn, nil
}

// SignRefreshToken mints a long-lived refresh token for the given user and
// returns the expiry encoded in its claims, which callers persist to the
// ledger so the two never drift apart.
func SignRefreshToken(userID uint) (token string, expiresAt time.Time, err error) {
	return signToken(userID, TokenTypeRefresh, refreshTTL, refreshSigningSecret())
}

func verifyToken(tokenString, wantType string, secret []byte) (*TokenClaims, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
	)

	token, err := parser.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != wantType {
		return nil, ErrInvalidToken
	}
	if claims.UserID() == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccessToken validates signature, issuer, audience, expiry and token
// type of an access token and returns its claims.
func VerifyAccessToken(tokenString string) (*TokenClaims, error) {
	return verifyToken(tokenString, TokenTypeAccess, accessSecret)
}

// VerifyRefreshToken validates a refresh token's envelope. Ledger state is
// checked separately by the session service.
func VerifyRefreshToken(tokenString string) (*TokenClaims, error) {
	return verifyToken(tokenString, TokenTypeRefresh, refreshSigningSecret())
}
