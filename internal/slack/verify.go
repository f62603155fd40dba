package slack

import (
	"errors"
	"net/http"

	slackapi "github.com/slack-go/slack"
)

var ErrInvalidSignature = errors.New("invalid slack signature")

// VerifyRequest checks the Slack signing secret signature and timestamp on a request body.
func VerifyRequest(header http.Header, body []byte, signingSecret string) error {
	sv, err := slackapi.NewSecretsVerifier(header, signingSecret)
	if err != nil {
		return ErrInvalidSignature
	}
	if _, err := sv.Write(body); err != nil {
		return ErrInvalidSignature
	}
	if err := sv.Ensure(); err != nil {
		return ErrInvalidSignature
	}
	return nil
}
