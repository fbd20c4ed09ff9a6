package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the decoded payload shared by access and refresh tokens: the
// subject user, a random token id (jti) tracked in the revocation cache, and
// the tokenVersion the user had when the token was minted.
type Claims struct {
	UserID       uuid.UUID
	Username     string
	TokenID      string
	TokenVersion int
	IssuedAt     time.Time
}

// Principal is the authenticated identity handed to request handlers.
type Principal struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

type accessClaims struct {
	Username     string `json:"username"`
	TokenVersion int    `json:"token_version"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	TokenVersion int `json:"token_version"`
	jwt.RegisteredClaims
}

// ClaimsFromMap decodes claims produced by the JWT middleware, which parses
// tokens into jwt.MapClaims. Numeric claims arrive as float64.
func ClaimsFromMap(m jwt.MapClaims) (*Claims, error) {
	sub, ok := m["sub"].(string)
	if !ok {
		return nil, errors.New("missing sub claim")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, errors.New("sub claim is not a uuid")
	}

	jti, ok := m["jti"].(string)
	if !ok || jti == "" {
		return nil, errors.New("missing jti claim")
	}

	version, ok := m["token_version"].(float64)
	if !ok {
		return nil, errors.New("missing token_version claim")
	}

	c := &Claims{
		UserID:       userID,
		TokenID:      jti,
		TokenVersion: int(version),
	}
	if username, ok := m["username"].(string); ok {
		c.Username = username
	}
	if iat, ok := m["iat"].(float64); ok {
		c.IssuedAt = time.Unix(int64(iat), 0)
	}
	return c, nil
}

func fromAccessClaims(ac *accessClaims) (*Claims, error) {
	userID, err := uuid.Parse(ac.Subject)
	if err != nil {
		return nil, errors.New("sub claim is not a uuid")
	}
	if ac.ID == "" {
		return nil, errors.New("missing jti claim")
	}
	c := &Claims{
		UserID:       userID,
		Username:     ac.Username,
		TokenID:      ac.ID,
		TokenVersion: ac.TokenVersion,
	}
	if ac.IssuedAt != nil {
		c.IssuedAt = ac.IssuedAt.Time
	}
	return c, nil
}

func fromRefreshClaims(rc *refreshClaims) (*Claims, error) {
	userID, err := uuid.Parse(rc.Subject)
	if err != nil {
		return nil, errors.New("sub claim is not a uuid")
	}
	if rc.ID == "" {
		return nil, errors.New("missing jti claim")
	}
	c := &Claims{
		UserID:       userID,
		TokenID:      rc.ID,
		TokenVersion: rc.TokenVersion,
	}
	if rc.IssuedAt != nil {
		c.IssuedAt = rc.IssuedAt.Time
	}
	return c, nil
}
