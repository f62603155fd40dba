package slack

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	slackapi "github.com/slack-go/slack"

	"github.com/davidahmann/roomkey/internal/escalation"
)

// Client delivers escalation side effects into a Slack conversation:
// the customer invite, the agent's private join link and failure notices.
type Client struct {
	api *slackapi.Client
	log zerolog.Logger
}

func NewClient(token, baseURL string, httpClient *http.Client, log zerolog.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("missing slack token")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	opts := []slackapi.Option{slackapi.OptionHTTPClient(httpClient)}
	if baseURL != "" {
		opts = append(opts, slackapi.OptionAPIURL(strings.TrimSuffix(baseURL, "/")+"/"))
	}
	return &Client{api: slackapi.New(token, opts...), log: log}, nil
}

func (c *Client) SendToConversation(ctx context.Context, channel, text string) error {
	if channel == "" {
		return fmt.Errorf("missing slack channel")
	}
	_, ts, err := c.api.PostMessageContext(ctx, channel,
		slackapi.MsgOptionText(text, false),
		slackapi.MsgOptionBlocks(BuildJoinBlocks(text, "Join video call")...),
	)
	if err != nil {
		return fmt.Errorf("post join link: %w", err)
	}
	c.log.Debug().Str("conversation", channel).Str("ts", ts).Msg("posted join link")
	return nil
}

// OpenJoin shows the agent's join link only to the requester.
func (c *Client) OpenJoin(ctx context.Context, trigger escalation.Trigger, joinURL string) error {
	channel, user, err := ephemeralTarget(trigger)
	if err != nil {
		return err
	}
	text := "Your video room is ready: " + joinURL
	_, err = c.api.PostEphemeralContext(ctx, channel, user,
		slackapi.MsgOptionText(text, false),
		slackapi.MsgOptionBlocks(BuildJoinBlocks(text, "Open video call")...),
	)
	if err != nil {
		return fmt.Errorf("post agent join link: %w", err)
	}
	return nil
}

func (c *Client) NotifyFailure(ctx context.Context, trigger escalation.Trigger, message string) {
	channel, user, err := ephemeralTarget(trigger)
	if err != nil {
		c.log.Warn().Err(err).Msg("cannot deliver failure notice")
		return
	}
	if _, err := c.api.PostEphemeralContext(ctx, channel, user, slackapi.MsgOptionText(message, false)); err != nil {
		c.log.Warn().Err(err).Msg("failed to deliver failure notice")
	}
}

func ephemeralTarget(trigger escalation.Trigger) (string, string, error) {
	if trigger.Task == nil || trigger.Task.ConversationKey == "" {
		return "", "", fmt.Errorf("missing slack channel")
	}
	if trigger.Requester.ID == "" {
		return "", "", fmt.Errorf("missing slack user")
	}
	return trigger.Task.ConversationKey, trigger.Requester.ID, nil
}
