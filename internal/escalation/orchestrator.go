// Package escalation turns one user trigger into a two-party video session:
// it requests a credential pair, posts the customer's join link into the
// conversation and opens the agent's join surface.
package escalation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/davidahmann/roomkey/internal/issuance"
	"github.com/davidahmann/roomkey/internal/lease"
	"github.com/davidahmann/roomkey/internal/metrics"
)

const (
	FailureNotice  = "Unable to start the video session. Please try again."
	InviteTemplate = "Your agent has invited you to a video call. Join here: %s"
)

var (
	ErrIssueFailed = errors.New("video credential issuance failed")
	ErrDelivery    = errors.New("video join delivery incomplete")
)

// Task is the currently selected unit of work and the conversation it belongs to.
type Task struct {
	Key             string
	ConversationKey string
}

type Requester struct {
	ID   string
	Name string
}

// Trigger is one discrete user action. Task is nil when nothing is selected.
type Trigger struct {
	Task      *Task
	Requester Requester
}

type Issuer interface {
	Issue(ctx context.Context, sessionKey, requesterName string) (issuance.Result, error)
}

type ConversationSender interface {
	SendToConversation(ctx context.Context, conversationKey, text string) error
}

type JoinSurface interface {
	OpenJoin(ctx context.Context, trigger Trigger, joinURL string) error
}

type Notifier interface {
	NotifyFailure(ctx context.Context, trigger Trigger, message string)
}

type Orchestrator struct {
	Issuer      Issuer
	Sender      ConversationSender
	Surface     JoinSurface
	Notifier    Notifier
	JoinBaseURL string

	// Lease, when set, collapses duplicate triggers for one task within LeaseTTL.
	Lease    lease.Locker
	LeaseTTL time.Duration

	Log     zerolog.Logger
	Metrics *metrics.Metrics
}

// Escalate runs one escalation. An invalid trigger context is a silent no-op.
// The conversation message and the join surface are independent: both are
// attempted after a successful issuance and either may fail alone. A held
// lease is kept only after a complete escalation.
func (o *Orchestrator) Escalate(ctx context.Context, trigger Trigger) (err error) {
	task := trigger.Task
	if task == nil || strings.TrimSpace(task.Key) == "" || strings.TrimSpace(task.ConversationKey) == "" {
		o.Metrics.EscalationOutcome("noop")
		o.Log.Debug().Msg("escalation ignored: no task or conversation selected")
		return nil
	}

	log := o.Log.With().
		Str("task_key", task.Key).
		Str("conversation", task.ConversationKey).
		Logger()

	leased := false
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("escalation aborted unexpectedly")
			o.Metrics.EscalationOutcome("panic")
			if leased {
				o.releaseLease(ctx, task.Key, log)
			}
			o.notify(ctx, trigger)
			err = fmt.Errorf("escalation panic: %v", r)
		}
	}()

	if o.Lease != nil && o.LeaseTTL > 0 {
		acquired, lerr := o.Lease.Acquire(ctx, task.Key, o.LeaseTTL)
		switch {
		case lerr != nil:
			log.Warn().Err(lerr).Msg("escalation lease unavailable, continuing without it")
		case !acquired:
			o.Metrics.EscalationOutcome("duplicate")
			log.Info().Msg("escalation already in progress for task")
			return nil
		default:
			leased = true
		}
	}

	requesterName := issuance.AgentIdentity(trigger.Requester.Name)

	result, err := o.Issuer.Issue(ctx, task.Key, requesterName)
	if err != nil {
		o.Metrics.EscalationOutcome("issue_failed")
		log.Error().Err(err).Msg("video credential issuance failed")
		if leased {
			o.releaseLease(ctx, task.Key, log)
		}
		o.notify(ctx, trigger)
		return fmt.Errorf("%w: %v", ErrIssueFailed, err)
	}

	var failures []string

	err = attempt(func() error {
		customerURL, err := JoinURL(o.JoinBaseURL, result.CustomerToken)
		if err != nil {
			return err
		}
		return o.Sender.SendToConversation(ctx, task.ConversationKey, fmt.Sprintf(InviteTemplate, customerURL))
	})
	if err != nil {
		log.Error().Err(err).Str("room", result.RoomName).Msg("failed to post join link to conversation")
		failures = append(failures, "conversation: "+err.Error())
	}

	err = attempt(func() error {
		agentURL, err := JoinURL(o.JoinBaseURL, result.AgentToken)
		if err != nil {
			return err
		}
		return o.Surface.OpenJoin(ctx, trigger, agentURL)
	})
	if err != nil {
		log.Error().Err(err).Str("room", result.RoomName).Msg("failed to open agent join surface")
		failures = append(failures, "join surface: "+err.Error())
	}

	if len(failures) > 0 {
		o.Metrics.EscalationOutcome("partial")
		if leased {
			o.releaseLease(ctx, task.Key, log)
		}
		o.notify(ctx, trigger)
		return fmt.Errorf("%w: %s", ErrDelivery, strings.Join(failures, "; "))
	}

	o.Metrics.EscalationOutcome("escalated")
	log.Info().Str("room", result.RoomName).Msg("escalated conversation to video")
	return nil
}

// attempt runs one side effect and turns a panic into an error, so a
// misbehaving capability cannot stop the other one from running.
func attempt(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (o *Orchestrator) notify(ctx context.Context, trigger Trigger) {
	if o.Notifier == nil {
		return
	}
	o.Notifier.NotifyFailure(ctx, trigger, FailureNotice)
}

func (o *Orchestrator) releaseLease(ctx context.Context, key string, log zerolog.Logger) {
	if err := o.Lease.Release(ctx, key); err != nil {
		log.Warn().Err(err).Msg("failed to release escalation lease")
	}
}
