package server

import (
	"fmt"
	"time"

	"fourkind-server/internal/fourkind"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// SESSION (POST /session)
// ============================================================================
type CreateSessionRequest struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

type CreateSessionResponse struct {
	Token  string          `json:"token"`
	Player fourkind.Player `json:"player"`
}

// ============================================================================
// ROOMS (POST /rooms, GET /rooms/:code)
// ============================================================================
type CreateRoomRequest struct {
	Visibility string `json:"visibility"`
}

// RoomState is a room as one viewer sees it. Game is nil until the deal.
type RoomState struct {
	Code          string                `json:"code"`
	HostID        string                `json:"hostId"`
	Visibility    Visibility            `json:"visibility"`
	Status        fourkind.Status       `json:"status"`
	Players       []fourkind.Player     `json:"players"`
	PlayerCount   int                   `json:"playerCount"`
	IsHost        bool                  `json:"isHost"`
	Version       int64                 `json:"version"`
	Game          *fourkind.ClientState `json:"game"`
	WinnerID      string                `json:"winnerId,omitempty"`
	WinnerName    string                `json:"winnerName,omitempty"`
	CardCollected *fourkind.Card        `json:"cardCollected,omitempty"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

func NewRoomState(room *Room, viewerID string) *RoomState {
	state := &RoomState{
		Code:          room.Code,
		HostID:        room.HostID,
		Visibility:    room.Visibility,
		Status:        room.Status,
		Players:       room.Players,
		PlayerCount:   len(room.Players),
		IsHost:        viewerID != "" && room.HostID == viewerID,
		Version:       room.Version,
		WinnerID:      room.WinnerID,
		WinnerName:    room.WinnerName,
		CardCollected: room.CardCollected,
		CreatedAt:     room.CreatedAt,
		UpdatedAt:     room.UpdatedAt,
	}
	if room.Game != nil {
		state.Game = room.Game.View(viewerID)
	}
	return state
}

// RoomSummary lists a room without its game.
type RoomSummary struct {
	Code        string            `json:"code"`
	HostID      string            `json:"hostId"`
	Visibility  Visibility        `json:"visibility"`
	Status      fourkind.Status   `json:"status"`
	Players     []fourkind.Player `json:"players"`
	PlayerCount int               `json:"playerCount"`
	WinnerID    string            `json:"winnerId,omitempty"`
	WinnerName  string            `json:"winnerName,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func NewRoomSummaries(rooms []*Room) []RoomSummary {
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomSummary{
			Code:        r.Code,
			HostID:      r.HostID,
			Visibility:  r.Visibility,
			Status:      r.Status,
			Players:     r.Players,
			PlayerCount: len(r.Players),
			WinnerID:    r.WinnerID,
			WinnerName:  r.WinnerName,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out
}

// ============================================================================
// PASS CARD (POST /rooms/:code/pass, websocket pass_card)
// ============================================================================
type PassCardRequest struct {
	Card    *fourkind.Card `json:"card"`
	Version *int64         `json:"version,omitempty"`
}

func (r PassCardRequest) card() (fourkind.Card, error) {
	if r.Card == nil {
		return fourkind.Null, fmt.Errorf("%w: card is required", fourkind.ErrInvalidCard)
	}
	return *r.Card, nil
}
