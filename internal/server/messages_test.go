package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openxword/crossword-server/internal/game"
)

func TestClientMessageDecoding(t *testing.T) {
	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(`{"subscribe":{"sessionId":"s1","afterSeq":7}}`), &msg))
	require.NotNil(t, msg.Subscribe)
	assert.Nil(t, msg.Propose)
	assert.Equal(t, "s1", msg.Subscribe.SessionID)
	assert.Equal(t, uint64(7), msg.Subscribe.AfterSeq)

	msg = ClientMessage{}
	require.NoError(t, json.Unmarshal([]byte(`{"propose":{"sessionId":"s1","type":"updateCell","user":"u1","params":{"id":"u1","cell":{"r":0,"c":1},"value":"A"}}}`), &msg))
	require.NotNil(t, msg.Propose)
	assert.Equal(t, "updateCell", msg.Propose.Type)

	params, err := game.DecodeParams(game.Type(msg.Propose.Type), msg.Propose.Params)
	require.NoError(t, err)
	cell, ok := params.(game.UpdateCellParams)
	require.True(t, ok)
	assert.Equal(t, game.Position{Row: 0, Col: 1}, cell.Cell)
	assert.Equal(t, "A", cell.Value)
}

func TestWireEventRoundTrip(t *testing.T) {
	evt := game.Event{
		Type:      game.TypeSendChatMessage,
		Seq:       4,
		Timestamp: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		UserID:    "u1",
		Params:    game.SendChatMessageParams{ID: "u1", Text: "hi"},
	}

	wire, err := toWireEvent(evt)
	require.NoError(t, err)
	assert.Equal(t, "sendChatMessage", wire.Type)
	assert.Equal(t, uint64(4), wire.Seq)

	raw, err := json.Marshal(ServerMessage{Ordered: &wire})
	require.NoError(t, err)

	var decoded ServerMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NotNil(t, decoded.Ordered)
	assert.Nil(t, decoded.Replay)
	assert.Nil(t, decoded.Rejected)

	params, err := game.DecodeParams(game.Type(decoded.Ordered.Type), decoded.Ordered.Params)
	require.NoError(t, err)
	chat, ok := params.(game.SendChatMessageParams)
	require.True(t, ok)
	assert.Equal(t, "hi", chat.Text)
}

func TestRejectionEncoding(t *testing.T) {
	raw, err := json.Marshal(ServerMessage{Rejected: &Rejection{
		SessionID: "s1",
		Type:      "updateCell",
		Reason:    "session requires a create event first",
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"rejected":{"sessionId":"s1","type":"updateCell","reason":"session requires a create event first"}}`, string(raw))
}
