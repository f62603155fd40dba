package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/davidahmann/roomkey/internal/issuance"
)

const issuePath = "/v1/video-token"

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// HTTPIssuer requests credentials from a remote issuance gateway.
type HTTPIssuer struct {
	BaseURL     string
	CallerToken string
	HTTP        *http.Client
}

// StatusError is a non-success response from the gateway.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("issuance gateway returned %d", e.Status)
	}
	return fmt.Sprintf("issuance gateway returned %d: %s", e.Status, e.Message)
}

func (c *HTTPIssuer) Issue(ctx context.Context, sessionKey, requesterName string) (issuance.Result, error) {
	client := c.HTTP
	if client == nil {
		client = defaultHTTPClient
	}
	if c.BaseURL == "" {
		return issuance.Result{}, fmt.Errorf("missing issuance gateway url")
	}

	form := url.Values{}
	form.Set("taskSid", sessionKey)
	form.Set("workerName", requesterName)
	form.Set("Token", c.CallerToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(c.BaseURL, "/")+issuePath, strings.NewReader(form.Encode()))
	if err != nil {
		return issuance.Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := client.Do(req)
	if err != nil {
		return issuance.Result{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return issuance.Result{}, err
	}

	if res.StatusCode != http.StatusOK {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &payload)
		return issuance.Result{}, &StatusError{Status: res.StatusCode, Message: payload.Error}
	}

	var out issuance.Result
	if err := json.Unmarshal(body, &out); err != nil {
		return issuance.Result{}, fmt.Errorf("decode issuance response: %w", err)
	}
	if out.AgentToken == "" || out.CustomerToken == "" || out.RoomName == "" {
		return issuance.Result{}, fmt.Errorf("incomplete issuance response")
	}
	return out, nil
}
