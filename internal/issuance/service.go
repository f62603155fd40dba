package issuance

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/davidahmann/roomkey/internal/metrics"
)

const (
	RoomPrefix       = "Room-"
	CustomerPrefix   = "Customer-"
	DefaultAgentName = "Agent"
)

var (
	// ErrMissingKey is a client error: no session key was supplied.
	ErrMissingKey = errors.New("missing session key")
	// ErrSigningFailure is a server error: credentials could not be minted.
	ErrSigningFailure = errors.New("credential signing failed")
)

// Result is the transient output of one issuance call.
type Result struct {
	AgentToken    string `json:"agentToken"`
	CustomerToken string `json:"customerToken"`
	RoomName      string `json:"roomName"`
}

// Minter signs a credential for one identity scoped to one room.
type Minter interface {
	Mint(identity, room string) (string, error)
}

type Service struct {
	Minter  Minter
	Log     zerolog.Logger
	Metrics *metrics.Metrics
}

func NewService(minter Minter, log zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{Minter: minter, Log: log, Metrics: m}
}

func RoomName(sessionKey string) string {
	return RoomPrefix + sessionKey
}

func CustomerIdentity(sessionKey string) string {
	return CustomerPrefix + sessionKey
}

func AgentIdentity(requesterName string) string {
	if strings.TrimSpace(requesterName) == "" {
		return DefaultAgentName
	}
	return requesterName
}

// Issue mints the agent and customer credentials for the room derived from sessionKey.
// Either both credentials are returned or none.
func (s *Service) Issue(ctx context.Context, sessionKey, requesterName string) (Result, error) {
	if strings.TrimSpace(sessionKey) == "" {
		s.Metrics.IssuanceOutcome("missing_key")
		return Result{}, ErrMissingKey
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	room := RoomName(sessionKey)
	agent := AgentIdentity(requesterName)

	agentToken, err := s.Minter.Mint(agent, room)
	if err != nil {
		return Result{}, s.signingFailure(room, "agent", err)
	}
	customerToken, err := s.Minter.Mint(CustomerIdentity(sessionKey), room)
	if err != nil {
		return Result{}, s.signingFailure(room, "customer", err)
	}

	s.Metrics.IssuanceOutcome("issued")
	s.Log.Info().
		Str("room", room).
		Str("agent_identity", agent).
		Msg("issued video credentials")

	return Result{
		AgentToken:    agentToken,
		CustomerToken: customerToken,
		RoomName:      room,
	}, nil
}

func (s *Service) signingFailure(room, participant string, cause error) error {
	s.Metrics.IssuanceOutcome("signing_failure")
	s.Log.Error().
		Err(cause).
		Str("room", room).
		Str("participant", participant).
		Msg("failed to mint video credential")
	return fmt.Errorf("%w: %s credential: %v", ErrSigningFailure, participant, cause)
}
