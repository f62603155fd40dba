package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// minRefetchInterval bounds how often an unknown kid can trigger a JWKS fetch.
const minRefetchInterval = time.Minute

var errRefetchThrottled = errors.New("jwks refetch throttled")

// OIDCAuthenticator verifies RS256 session tokens issued by the agent identity provider.
// Signing keys are fetched from JWKSURL and cached by kid.
type OIDCAuthenticator struct {
	Audience string
	Issuer   string
	JWKSURL  string

	http *http.Client
	now  func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
}

func NewOIDCAuthenticator(issuer, audience, jwksURL string) *OIDCAuthenticator {
	if audience == "" {
		audience = "roomkey"
	}
	if jwksURL == "" {
		jwksURL = strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"
	}
	return &OIDCAuthenticator{
		Audience: audience,
		Issuer:   issuer,
		JWKSURL:  jwksURL,
		http:     &http.Client{Timeout: 5 * time.Second},
		now:      time.Now,
		keys:     make(map[string]*rsa.PublicKey),
	}
}

func (a *OIDCAuthenticator) AuthenticateBearer(ctx context.Context, token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrMissingToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(a.Audience),
		jwt.WithIssuer(a.Issuer),
		jwt.WithExpirationRequired(),
	)
	claims := &sessionClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return a.keyForKID(ctx, kid)
	})
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
		Name:    firstNonEmpty(claims.Name, claims.PreferredUsername, claims.Email),
	}, nil
}

func (a *OIDCAuthenticator) keyForKID(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	a.mu.Lock()
	if key, ok := a.keys[kid]; ok {
		a.mu.Unlock()
		return key, nil
	}
	now := a.now()
	if !a.lastFetch.IsZero() && now.Sub(a.lastFetch) < minRefetchInterval {
		a.mu.Unlock()
		return nil, errRefetchThrottled
	}
	a.lastFetch = now
	a.mu.Unlock()

	keys, err := a.fetchKeys(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range keys {
		a.keys[k] = v
	}
	if key, ok := a.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("kid not found")
}

func (a *OIDCAuthenticator) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.JWKSURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks status %d", res.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Alg string `json:"alg"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(res.Body).Decode(&jwks); err != nil {
		return nil, err
	}

	out := make(map[string]*rsa.PublicKey)
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || (k.Alg != "" && k.Alg != "RS256") {
			continue
		}
		pub, err := jwkToPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		if k.Kid != "" {
			out[k.Kid] = pub
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no jwk keys")
	}
	return out, nil
}

func jwkToPublicKey(nB64 string, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}

	n := new(big.Int).SetBytes(nb)
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims

	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
