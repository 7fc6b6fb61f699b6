// Package session keeps the one live conversation session per user between
// inbound messages. Sessions expire after a TTL; an expired session reads as
// absent and the user must start the flow again.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Flow string

const (
	FlowNone      Flow = ""
	FlowAddAgency Flow = "add_agency"
	FlowWrap      Flow = "wrap"
	FlowUnwrap    Flow = "unwrap"
)

type Step string

const (
	StepIdle            Step = ""
	StepAwaitingAddress Step = "awaiting_address"
	StepAwaitingMaxCost Step = "awaiting_max_cost"
	StepAwaitingName    Step = "awaiting_name"
	StepAwaitingTokenID Step = "awaiting_token_id"
)

type Session struct {
	ExternalID int64 `json:"external_id"`
	Flow       Flow  `json:"flow,omitempty"`
	Step       Step  `json:"step,omitempty"`
	// AgencyAddress is the agency picked from the menu. It survives between
	// flows until the session expires.
	AgencyAddress string `json:"agency_address,omitempty"`
	// WrapPrice is the wrap total shown on the agency overview. UnwrapProceeds
	// is the net quoted when the current unwrap flow began and bounds that
	// flow only. Both are base units and are dropped when a flow ends.
	WrapPrice      string    `json:"wrap_price,omitempty"`
	UnwrapProceeds string    `json:"unwrap_proceeds,omitempty"`
	MaxCost        string    `json:"max_cost,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Active reports whether a multi-turn flow is waiting for input.
func (s Session) Active() bool {
	return s.Flow != FlowNone && s.Step != StepIdle
}

// Begin starts flow at step, discarding any flow in progress but keeping the
// selected agency.
func (s *Session) Begin(flow Flow, step Step, now time.Time) {
	s.Flow = flow
	s.Step = step
	s.MaxCost = ""
	s.StartedAt = now
}

// Finish ends the current flow. Only the selected agency survives it.
func (s *Session) Finish() {
	s.Flow = FlowNone
	s.Step = StepIdle
	s.MaxCost = ""
	s.WrapPrice = ""
	s.UnwrapProceeds = ""
}

type Store interface {
	// Get returns the live session, or false when none exists or it expired.
	Get(ctx context.Context, externalID int64) (Session, bool, error)
	// Put stores s and pushes its expiry out by the store TTL.
	Put(ctx context.Context, s Session) error
	Delete(ctx context.Context, externalID int64) error
	Close() error
}

func encode(s Session) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 10 * time.Minute
	}
	return ttl
}
