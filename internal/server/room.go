package server

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"fourkind-server/internal/fourkind"
)

var (
	ErrRoomNotFound       = errors.New("ROOM_NOT_FOUND: Room not found")
	ErrRoomExists         = errors.New("ROOM_EXISTS: Room code already in use")
	ErrRoomFull           = errors.New("ROOM_FULL: Room is full (4/4 players)")
	ErrConflict           = errors.New("CONFLICT: The room changed, fetch the latest state and retry")
	ErrNotInRoom          = errors.New("NOT_IN_ROOM: You are not a member of this room")
	ErrNotHost            = errors.New("NOT_HOST: Only the host can do that")
	ErrGameAlreadyStarted = errors.New("GAME_ALREADY_STARTED: The game has already started")
	ErrInvalidVisibility  = errors.New("INVALID_VISIBILITY: Visibility must be public or private")
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func ParseVisibility(v string) (Visibility, error) {
	switch Visibility(v) {
	case "", VisibilityPublic:
		return VisibilityPublic, nil
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	}
	return "", ErrInvalidVisibility
}

// Room is the stored container of one game. Version increases by one with
// every committed change and guards conditional writes.
type Room struct {
	Code          string              `json:"code"`
	HostID        string              `json:"hostId"`
	Visibility    Visibility          `json:"visibility"`
	Status        fourkind.Status     `json:"status"`
	Players       []fourkind.Player   `json:"players"`
	Game          *fourkind.GameState `json:"game,omitempty"`
	Version       int64               `json:"version"`
	WinnerID      string              `json:"winnerId,omitempty"`
	WinnerName    string              `json:"winnerName,omitempty"`
	CardCollected *fourkind.Card      `json:"cardCollected,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func (r *Room) Clone() *Room {
	out := *r
	out.Players = slices.Clone(r.Players)
	if r.Game != nil {
		game := r.Game.Clone()
		out.Game = &game
	}
	if r.CardCollected != nil {
		c := *r.CardCollected
		out.CardCollected = &c
	}
	return &out
}

func (r *Room) HasPlayer(playerID string) bool {
	return slices.ContainsFunc(r.Players, func(p fourkind.Player) bool { return p.ID == playerID })
}

func (r *Room) IsFull() bool {
	return len(r.Players) >= fourkind.NumPlayers
}

// setGame stores game and copies its outcome onto the room.
func (r *Room) setGame(game fourkind.GameState) {
	r.Game = &game
	r.Status = game.Status
	if winner, ok := game.WinnerPlayer(); ok {
		r.WinnerID = winner.ID
		r.WinnerName = winner.Name
	}
	if rank, ok := game.CollectedRank(); ok {
		r.CardCollected = &rank
	}
}

// checkIntegrity reports rooms that cannot occur through the game manager.
func (r *Room) checkIntegrity() error {
	switch {
	case len(r.Players) > fourkind.NumPlayers:
		return fmt.Errorf("%w: room %s has %d players", fourkind.ErrCorruptState, r.Code, len(r.Players))
	case r.IsFull() && r.Game == nil:
		return fmt.Errorf("%w: room %s is full but has no game", fourkind.ErrCorruptState, r.Code)
	case r.Game == nil && r.Status != fourkind.StatusWaiting:
		return fmt.Errorf("%w: room %s is %s without a game", fourkind.ErrCorruptState, r.Code, r.Status)
	case r.Game == nil:
		return nil
	case r.Game.Status != r.Status:
		return fmt.Errorf("%w: room %s status %s disagrees with game status %s", fourkind.ErrCorruptState, r.Code, r.Status, r.Game.Status)
	}
	for i, seat := range r.Game.Seats {
		if i >= len(r.Players) || r.Players[i].ID != seat.ID {
			return fmt.Errorf("%w: room %s seat %d does not match its players", fourkind.ErrCorruptState, r.Code, i)
		}
	}
	return r.Game.CheckIntegrity()
}

// CardPoints is the leaderboard score for a win collecting rank.
func CardPoints(rank fourkind.Card) int {
	switch rank {
	case fourkind.Four:
		return 1000
	case fourkind.Three:
		return 800
	case fourkind.Two:
		return 700
	case fourkind.One:
		return 500
	}
	return 0
}

type LeaderboardEntry struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Wins       int    `json:"wins"`
	Points     int    `json:"points"`
}

type PlayerStats struct {
	PlayerID string `json:"playerId"`
	Played   int    `json:"played"`
	Wins     int    `json:"wins"`
	Points   int    `json:"points"`
}
