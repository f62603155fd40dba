// Package token mints short-lived video access tokens. A token binds one
// participant identity to one room and nothing else.
package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// ContentType marks the token as a video access token for the session transport.
	ContentType = "twilio-fpa;v=1"

	DefaultTTL = time.Hour
	MaxTTL     = 24 * time.Hour
)

var (
	ErrSigningMaterial = errors.New("signing material unavailable")
	ErrInvalidGrant    = errors.New("invalid grant")
	ErrInvalidToken    = errors.New("invalid access token")
)

// Credentials is the account and API key pair used to sign tokens.
type Credentials struct {
	AccountSID   string
	APIKeySID    string
	APIKeySecret string
}

func (c Credentials) complete() bool {
	return strings.TrimSpace(c.AccountSID) != "" &&
		strings.TrimSpace(c.APIKeySID) != "" &&
		c.APIKeySecret != ""
}

type VideoGrant struct {
	Room string `json:"room,omitempty"`
}

type Grants struct {
	Identity string      `json:"identity"`
	Video    *VideoGrant `json:"video,omitempty"`
}

type Claims struct {
	jwt.RegisteredClaims

	Grants Grants `json:"grants"`
}

// Minter signs access tokens. It holds no per-request state and is safe for concurrent use.
type Minter struct {
	creds Credentials
	ttl   time.Duration
	now   func() time.Time
}

func NewMinter(creds Credentials, ttl time.Duration) *Minter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}
	return &Minter{creds: creds, ttl: ttl, now: time.Now}
}

func (m *Minter) TTL() time.Duration { return m.ttl }

// Mint returns a signed token granting identity entry to room only.
func (m *Minter) Mint(identity, room string) (string, error) {
	if !m.creds.complete() {
		return "", ErrSigningMaterial
	}
	if identity == "" || room == "" {
		return "", ErrInvalidGrant
	}

	now := m.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        m.creds.APIKeySID + "-" + uuid.NewString(),
			Issuer:    m.creds.APIKeySID,
			Subject:   m.creds.AccountSID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Grants: Grants{
			Identity: identity,
			Video:    &VideoGrant{Room: room},
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["cty"] = ContentType
	signed, err := tok.SignedString([]byte(m.creds.APIKeySecret))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningMaterial, err)
	}
	return signed, nil
}

// Parse verifies a token signed with secret and returns its claims.
func Parse(secret, raw string) (*Claims, error) {
	if secret == "" {
		return nil, ErrSigningMaterial
	}
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Grants.Video == nil || claims.Grants.Video.Room == "" || claims.Grants.Identity == "" {
		return nil, ErrInvalidGrant
	}
	return claims, nil
}
