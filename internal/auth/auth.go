package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing caller token")
	ErrInvalidToken = errors.New("invalid caller token")
)

// Claims identifies the verified caller of the issuance endpoint.
type Claims struct {
	Subject   string
	Issuer    string
	Name      string
	Anonymous bool
}

type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (Claims, error)
}

// MultiAuthenticator accepts a static dev token or an identity-provider JWT.
// With neither configured every token is rejected unless AllowAnonymous is set.
type MultiAuthenticator struct {
	DevToken       string
	OIDC           *OIDCAuthenticator
	AllowAnonymous bool
}

func (a *MultiAuthenticator) AuthenticateToken(ctx context.Context, token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if a.AllowAnonymous {
		return Claims{Subject: "anonymous", Anonymous: true}, nil
	}
	if token == "" {
		return Claims{}, ErrMissingToken
	}

	if a.DevToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.DevToken)) == 1 {
		return Claims{Subject: "dev", Issuer: "roomkey-dev"}, nil
	}

	if a.OIDC != nil {
		return a.OIDC.AuthenticateBearer(ctx, token)
	}

	return Claims{}, ErrInvalidToken
}

// TokenFromRequest returns the caller token from the "Token" form field,
// falling back to an Authorization bearer header. The form must already be parsed.
func TokenFromRequest(r *http.Request) string {
	if tok := strings.TrimSpace(r.Form.Get("Token")); tok != "" {
		return tok
	}
	return extractBearer(r)
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
