package slack

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	slackapi "github.com/slack-go/slack"

	"github.com/davidahmann/roomkey/internal/escalation"
)

const escalationTimeout = 30 * time.Second

type Escalator interface {
	Escalate(ctx context.Context, trigger escalation.Trigger) error
}

// InteractionHandler receives Slack block actions. A "start_video" action
// escalates the conversation it was clicked in, with the button value as task key.
type InteractionHandler struct {
	SigningSecret string
	Escalator     Escalator
	Log           zerolog.Logger
}

func (h *InteractionHandler) HandleInteractions(w http.ResponseWriter, r *http.Request) {
	if h.Escalator == nil {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := VerifyRequest(r.Header, body, h.SigningSecret); err != nil {
		h.Log.Warn().Err(err).Msg("rejected slack interaction")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	payload, err := parsePayload(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	trigger, ok := triggerFromPayload(payload)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Slack expects an ack within three seconds; the escalation outlives the request.
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), escalationTimeout)
		defer cancel()
		if err := h.Escalator.Escalate(ctx, trigger); err != nil {
			h.Log.Error().Err(err).Str("task_key", trigger.Task.Key).Msg("slack escalation failed")
		}
	}()

	w.WriteHeader(http.StatusOK)
}

func parsePayload(body []byte) (slackapi.InteractionCallback, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return slackapi.InteractionCallback{}, err
	}
	raw := values.Get("payload")
	if raw == "" {
		return slackapi.InteractionCallback{}, errors.New("missing payload")
	}

	var payload slackapi.InteractionCallback
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return slackapi.InteractionCallback{}, err
	}
	return payload, nil
}

// triggerFromPayload maps a start_video action to a trigger. A missing task key
// or channel still yields a trigger; the orchestrator treats it as a no-op.
func triggerFromPayload(payload slackapi.InteractionCallback) (escalation.Trigger, bool) {
	for _, action := range payload.ActionCallback.BlockActions {
		if action == nil || action.ActionID != StartVideoActionID {
			continue
		}
		name := payload.User.Name
		if payload.User.RealName != "" {
			name = payload.User.RealName
		}
		return escalation.Trigger{
			Task: &escalation.Task{
				Key:             action.Value,
				ConversationKey: payload.Channel.ID,
			},
			Requester: escalation.Requester{ID: payload.User.ID, Name: name},
		}, true
	}
	return escalation.Trigger{}, false
}
