package escalation

import (
	"fmt"
	"net/url"
)

// JoinURL returns base with the credential carried in the "token" query parameter.
// Existing query parameters on base are kept.
func JoinURL(base, credential string) (string, error) {
	if credential == "" {
		return "", fmt.Errorf("empty credential")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid join base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("join base url must be absolute: %q", base)
	}
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
