package server

import (
	"encoding/json"
	"time"

	"github.com/openxword/crossword-server/internal/game"
)

// ClientMessage is the envelope for client-to-server traffic. Exactly one
// field is set per message.
type ClientMessage struct {
	Subscribe *SubscribeMessage `json:"subscribe,omitempty"`
	Propose   *ProposeMessage   `json:"propose,omitempty"`
}

// SubscribeMessage attaches the client to a game session. AfterSeq is the
// last sequence the client has already applied; zero replays from the
// beginning.
type SubscribeMessage struct {
	SessionID string `json:"sessionId"`
	AfterSeq  uint64 `json:"afterSeq,omitempty"`
}

// ProposeMessage submits an event for ordering. Params carries the
// type-specific payload; its shape is validated before the proposal reaches
// the authority.
type ProposeMessage struct {
	SessionID string          `json:"sessionId"`
	Type      string          `json:"type"`
	UserID    string          `json:"user,omitempty"`
	Params    json.RawMessage `json:"params"`
}

// ServerMessage is the envelope for server-to-client traffic.
type ServerMessage struct {
	Ordered  *WireEvent  `json:"ordered,omitempty"`
	Replay   []WireEvent `json:"replay,omitempty"`
	Rejected *Rejection  `json:"rejected,omitempty"`
}

// WireEvent is an ordered event as sent on the channel.
type WireEvent struct {
	Type      string          `json:"type"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    string          `json:"user,omitempty"`
	Params    json.RawMessage `json:"params"`
}

// Rejection reports a proposal that was refused before ordering: malformed
// parameter shape, unknown event type, or an ordering rule violation.
type Rejection struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type,omitempty"`
	Reason    string `json:"reason"`
}

func toWireEvent(evt game.Event) (WireEvent, error) {
	payload, err := game.EncodeParams(evt.Params)
	if err != nil {
		return WireEvent{}, err
	}
	return WireEvent{
		Type:      string(evt.Type),
		Seq:       evt.Seq,
		Timestamp: evt.Timestamp,
		UserID:    evt.UserID,
		Params:    payload,
	}, nil
}

func toWireEvents(events []game.Event) ([]WireEvent, error) {
	wire := make([]WireEvent, 0, len(events))
	for _, evt := range events {
		w, err := toWireEvent(evt)
		if err != nil {
			return nil, err
		}
		wire = append(wire, w)
	}
	return wire, nil
}
