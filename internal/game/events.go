package game

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of a game event and selects its reducer.
type Type string

const (
	// TypeCreate constructs the puzzle and is always the first event of a
	// session.
	TypeCreate Type = "create"
	// TypeUpdateCell writes a letter into a team grid.
	TypeUpdateCell Type = "updateCell"
	// TypeUpdateCursor moves a user's cursor.
	TypeUpdateCursor Type = "updateCursor"
	// TypeAddPing flags a cell to draw teammates' attention.
	TypeAddPing Type = "addPing"
	// TypeUpdateDisplayName sets a user's display name, creating the user on
	// first use.
	TypeUpdateDisplayName Type = "updateDisplayName"
	// TypeUpdateColor sets a user's cursor color.
	TypeUpdateColor Type = "updateColor"
	// TypeUpdateClock starts, pauses, or resets the session clock.
	TypeUpdateClock Type = "updateClock"
	// TypeCheck verifies in-scope cells against the solution.
	TypeCheck Type = "check"
	// TypeReveal fills one cell from the solution and scores it.
	TypeReveal Type = "reveal"
	// TypeReset clears in-scope cells.
	TypeReset Type = "reset"
	// TypeSendChatMessage appends to the session chat.
	TypeSendChatMessage Type = "sendChatMessage"
	// TypeUpdateTeamName renames a team.
	TypeUpdateTeamName Type = "updateTeamName"
	// TypeUpdateTeamID moves a user onto a team.
	TypeUpdateTeamID Type = "updateTeamId"
	// TypeRevealAllClues makes every clue visible to a team.
	TypeRevealAllClues Type = "revealAllClues"
	// TypeStartGame marks the session as started and starts the clock.
	TypeStartGame Type = "startGame"
)

// Event is one immutable entry in a session's ordered history. Seq and
// Timestamp are assigned by the ordering authority, never trusted from the
// proposing client.
type Event struct {
	Type      Type      `json:"type"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user,omitempty"`
	Params    Params    `json:"params"`
}

// Params is the closed union of per-type parameter shapes. Exactly one
// concrete struct implements it per event type.
type Params interface {
	eventType() Type
}

// CreateParams carries the puzzle content for a new session. Solution rows
// use "." for black squares. Circles are cell indices in row-major order,
// arriving as strings from the content source.
type CreateParams struct {
	Info     Info       `json:"info"`
	Solution [][]string `json:"solution"`
	Across   []string   `json:"across"`
	Down     []string   `json:"down"`
	Circles  []string   `json:"circles,omitempty"`
}

// UpdateCellParams writes Value at Cell for the user's team.
type UpdateCellParams struct {
	ID     string   `json:"id"`
	Cell   Position `json:"cell"`
	Value  string   `json:"value"`
	Pencil bool     `json:"pencil,omitempty"`
}

// UpdateCursorParams moves the user's cursor to Cell.
type UpdateCursorParams struct {
	ID   string   `json:"id"`
	Cell Position `json:"cell"`
}

// AddPingParams marks Cell as pinged by the user.
type AddPingParams struct {
	ID   string   `json:"id"`
	Cell Position `json:"cell"`
}

// UpdateDisplayNameParams names a user, creating it if unknown.
type UpdateDisplayNameParams struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// UpdateColorParams recolors a user's cursor.
type UpdateColorParams struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

// Clock actions accepted by UpdateClockParams.
const (
	ClockActionStart = "start"
	ClockActionPause = "pause"
	ClockActionReset = "reset"
)

// UpdateClockParams starts, pauses, or resets the clock.
type UpdateClockParams struct {
	Action string `json:"action"`
}

// CheckParams verifies the scoped cells for the user's team.
type CheckParams struct {
	ID    string `json:"id"`
	Scope Scope  `json:"scope"`
}

// RevealParams reveals exactly one cell for the user's team.
type RevealParams struct {
	ID    string `json:"id"`
	Scope Scope  `json:"scope"`
}

// ResetParams clears the scoped cells. Force permits clearing cells already
// verified correct.
type ResetParams struct {
	ID    string `json:"id"`
	Scope Scope  `json:"scope"`
	Force bool   `json:"force,omitempty"`
}

// SendChatMessageParams appends Text to the chat history.
type SendChatMessageParams struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// UpdateTeamNameParams renames TeamID.
type UpdateTeamNameParams struct {
	ID     string `json:"id"`
	TeamID string `json:"teamId"`
	Name   string `json:"name"`
}

// UpdateTeamIDParams assigns the user to TeamID.
type UpdateTeamIDParams struct {
	ID     string `json:"id"`
	TeamID string `json:"teamId"`
}

// RevealAllCluesParams reveals every clue to TeamID.
type RevealAllCluesParams struct {
	TeamID string `json:"teamId"`
}

// StartGameParams has no fields; the event itself is the signal.
type StartGameParams struct{}

func (CreateParams) eventType() Type            { return TypeCreate }
func (UpdateCellParams) eventType() Type        { return TypeUpdateCell }
func (UpdateCursorParams) eventType() Type      { return TypeUpdateCursor }
func (AddPingParams) eventType() Type           { return TypeAddPing }
func (UpdateDisplayNameParams) eventType() Type { return TypeUpdateDisplayName }
func (UpdateColorParams) eventType() Type       { return TypeUpdateColor }
func (UpdateClockParams) eventType() Type       { return TypeUpdateClock }
func (CheckParams) eventType() Type             { return TypeCheck }
func (RevealParams) eventType() Type            { return TypeReveal }
func (ResetParams) eventType() Type             { return TypeReset }
func (SendChatMessageParams) eventType() Type   { return TypeSendChatMessage }
func (UpdateTeamNameParams) eventType() Type    { return TypeUpdateTeamName }
func (UpdateTeamIDParams) eventType() Type      { return TypeUpdateTeamID }
func (RevealAllCluesParams) eventType() Type    { return TypeRevealAllClues }
func (StartGameParams) eventType() Type         { return TypeStartGame }

// ErrUnknownType reports an event type outside the catalogue.
type ErrUnknownType struct {
	Type Type
}

func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// DecodeParams parses the JSON payload for the given event type. Unknown
// types and malformed shapes are rejected here, before any reducer runs.
func DecodeParams(t Type, payload []byte) (Params, error) {
	var (
		params Params
		err    error
	)
	switch t {
	case TypeCreate:
		params, err = decode[CreateParams](payload)
	case TypeUpdateCell:
		params, err = decode[UpdateCellParams](payload)
	case TypeUpdateCursor:
		params, err = decode[UpdateCursorParams](payload)
	case TypeAddPing:
		params, err = decode[AddPingParams](payload)
	case TypeUpdateDisplayName:
		params, err = decode[UpdateDisplayNameParams](payload)
	case TypeUpdateColor:
		params, err = decode[UpdateColorParams](payload)
	case TypeUpdateClock:
		params, err = decode[UpdateClockParams](payload)
	case TypeCheck:
		params, err = decode[CheckParams](payload)
	case TypeReveal:
		params, err = decode[RevealParams](payload)
	case TypeReset:
		params, err = decode[ResetParams](payload)
	case TypeSendChatMessage:
		params, err = decode[SendChatMessageParams](payload)
	case TypeUpdateTeamName:
		params, err = decode[UpdateTeamNameParams](payload)
	case TypeUpdateTeamID:
		params, err = decode[UpdateTeamIDParams](payload)
	case TypeRevealAllClues:
		params, err = decode[RevealAllCluesParams](payload)
	case TypeStartGame:
		params, err = decode[StartGameParams](payload)
	default:
		return nil, ErrUnknownType{Type: t}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s params: %w", t, err)
	}
	return params, nil
}

// EncodeParams marshals params for persistence.
func EncodeParams(params Params) ([]byte, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", params.eventType(), err)
	}
	return payload, nil
}

func decode[P Params](payload []byte) (Params, error) {
	var p P
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return p, nil
}
