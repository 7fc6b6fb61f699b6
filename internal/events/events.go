// Package events publishes a record of every wrap, unwrap and approve
// outcome so downstream consumers can follow activity without polling the
// action store.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Type string

const (
	TypeWrapSubmitted    Type = "wrap.submitted"
	TypeWrapFailed       Type = "wrap.failed"
	TypeUnwrapSubmitted  Type = "unwrap.submitted"
	TypeUnwrapFailed     Type = "unwrap.failed"
	TypeApproveSubmitted Type = "approve.submitted"
	TypeApproveFailed    Type = "approve.failed"
	TypeAccountCreated   Type = "account.created"
)

type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	ExternalID int64     `json:"external_id"`
	ChainID    int64     `json:"chain_id"`
	ActionID   string    `json:"action_id,omitempty"`
	Agency     string    `json:"agency,omitempty"`
	Route      string    `json:"route,omitempty"`
	TokenID    string    `json:"token_id,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(kind Type, externalID, chainID int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       kind,
		OccurredAt: time.Now().UTC(),
		ExternalID: externalID,
		ChainID:    chainID,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// LogPublisher writes events to the structured log. It is the fallback
// when no broker is configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.log.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Int64("external_id", event.ExternalID).
		Str("action_id", event.ActionID).
		Str("tx_hash", event.TxHash).
		Str("error", event.Error).
		Msg("event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
func (nopPublisher) Close() error                        { return nil }

// Nop discards every event.
func Nop() Publisher { return nopPublisher{} }
