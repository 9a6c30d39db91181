package server

import "encoding/json"

// Websocket message types.
const (
	MessagePing      = "ping"
	MessagePassCard  = "pass_card"
	MessagePong      = "pong"
	MessageRoomState = "room_state"
	MessageRoomGone  = "room_closed"
	MessageError     = "error"
)

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
