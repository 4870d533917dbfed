package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clubhouse/points-engine/club"
	"github.com/clubhouse/points-engine/ledger"
)

// ErrInvalidToken covers expired, malformed, and badly signed tokens alike.
var ErrInvalidToken = errors.New("invalid or expired token")

// DefaultTokenTTL matches the session length members expect at the club.
const DefaultTokenTTL = time.Hour

// Claims is the JWT payload. Subject carries the member ID.
type Claims struct {
	MemberNumber string    `json:"member_number"`
	Role         club.Role `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HMAC-signed tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager builds a token manager. A zero ttl falls back to
// DefaultTokenTTL.
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue mints a signed token for the member.
func (m *Manager) Issue(member *club.Member) (string, error) {
	now := m.now()
	claims := Claims{
		MemberNumber: member.MemberNumber,
		Role:         member.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(member.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the caller's identity.
func (m *Manager) Verify(tokenString string) (club.Principal, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil || !token.Valid {
		return club.Principal{}, ErrInvalidToken
	}
	return club.Principal{
		ID:           ledger.MemberID(claims.Subject),
		MemberNumber: claims.MemberNumber,
		Role:         claims.Role,
	}, nil
}

// TTL exposes the configured token lifetime for the login response.
func (m *Manager) TTL() time.Duration { return m.ttl }
