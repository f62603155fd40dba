package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/davidahmann/roomkey/internal/auth"
	"github.com/davidahmann/roomkey/internal/issuance"
	"github.com/davidahmann/roomkey/internal/slack"
)

type Issuer interface {
	Issue(ctx context.Context, sessionKey, requesterName string) (issuance.Result, error)
}

type Handler struct {
	Auth   auth.Authenticator
	Issuer Issuer
	Slack  *slack.InteractionHandler
	Log    zerolog.Logger
}

// IssueToken mints the agent and customer credentials for one task.
// Form fields: taskSid (required), workerName, Token (caller session token).
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form body"})
		return
	}

	caller, err := h.Auth.AuthenticateToken(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		h.Log.Warn().Err(err).Msg("rejected issuance caller")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	taskKey := strings.TrimSpace(r.PostForm.Get("taskSid"))
	if taskKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "taskSid is required"})
		return
	}

	res, err := h.Issuer.Issue(r.Context(), taskKey, r.PostForm.Get("workerName"))
	switch {
	case errors.Is(err, issuance.ErrMissingKey):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "taskSid is required"})
		return
	case err != nil:
		h.Log.Error().Err(err).Str("task_key", taskKey).Str("caller", caller.Subject).Msg("issuance failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) SlackInteractions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if h.Slack == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "slack interactions not configured"})
		return
	}
	h.Slack.HandleInteractions(w, r)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
