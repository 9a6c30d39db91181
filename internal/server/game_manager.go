package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fourkind-server/internal/fourkind"
)

const (
	// Lobby changes reload and retry when another lobby change commits first.
	lobbyAttempts = 3
	codeAttempts  = 10

	defaultListLimit        = 10
	maxListLimit            = 50
	defaultPlayerRoomsLimit = 20
	defaultLeaderboardLimit = 100
)

// GameManager runs room operations against the store. It holds no room
// state of its own; every operation reads the stored room, computes a new
// value and commits it with a conditional write on Version.
type GameManager struct {
	store    RoomStore
	notifier Notifier
	dealer   *fourkind.Dealer
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewGameManager(store RoomStore, notifier Notifier, dealer *fourkind.Dealer, log logrus.FieldLogger) *GameManager {
	return &GameManager{
		store:    store,
		notifier: notifier,
		dealer:   dealer,
		log:      log,
		now:      time.Now,
	}
}

func (gm *GameManager) CreateGame(ctx context.Context, host fourkind.Player, visibility Visibility) (*Room, error) {
	if host.ID == "" {
		return nil, fourkind.ErrNotAPlayer
	}
	if err := ValidateUsername(host.Name); err != nil {
		return nil, err
	}

	for range codeAttempts {
		now := gm.now()
		room := &Room{
			Code:       GenerateRoomCode(),
			HostID:     host.ID,
			Visibility: visibility,
			Status:     fourkind.StatusWaiting,
			Players:    []fourkind.Player{host},
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		err := gm.store.CreateRoom(ctx, room)
		if errors.Is(err, ErrRoomExists) {
			continue
		}
		if err != nil {
			return nil, err
		}

		gm.log.WithFields(logrus.Fields{"room": room.Code, "host": host.ID, "visibility": visibility}).Info("Room created")
		gm.publish(ctx, room, EventCreated)
		return room, nil
	}
	return nil, fmt.Errorf("failed to allocate a room code after %d attempts", codeAttempts)
}

// JoinGame seats player in the room. Joining a room the player is already in
// succeeds without a change. The fourth player triggers the deal.
func (gm *GameManager) JoinGame(ctx context.Context, code string, player fourkind.Player) (*Room, error) {
	if player.ID == "" {
		return nil, fourkind.ErrNotAPlayer
	}

	room, err := gm.updateLobby(ctx, code, func(room *Room) (string, error) {
		if room.HasPlayer(player.ID) {
			return "", nil
		}
		if room.Status != fourkind.StatusWaiting || room.IsFull() {
			return "", ErrRoomFull
		}

		room.Players = append(room.Players, player)
		if !room.IsFull() {
			return EventJoined, nil
		}
		if err := gm.deal(room); err != nil {
			return "", err
		}
		return EventDealt, nil
	})
	if err != nil {
		return nil, err
	}
	return gm.playBots(ctx, room), nil
}

// LeaveGame removes a player from a room that has not started. The host
// role moves to the next seat and an empty room is deleted.
func (gm *GameManager) LeaveGame(ctx context.Context, code, playerID string) (*Room, error) {
	return gm.updateLobby(ctx, code, func(room *Room) (string, error) {
		if !room.HasPlayer(playerID) {
			return "", ErrNotInRoom
		}
		if room.Status != fourkind.StatusWaiting {
			return "", ErrGameAlreadyStarted
		}

		remaining := room.Players[:0]
		for _, p := range room.Players {
			if p.ID != playerID {
				remaining = append(remaining, p)
			}
		}
		room.Players = remaining

		if len(room.Players) == 0 {
			return EventDeleted, nil
		}
		if room.HostID == playerID {
			room.HostID = room.Players[0].ID
		}
		return EventLeft, nil
	})
}

// AddBots fills the empty seats with computer players and deals.
func (gm *GameManager) AddBots(ctx context.Context, code, hostID string) (*Room, error) {
	room, err := gm.updateLobby(ctx, code, func(room *Room) (string, error) {
		if room.HostID != hostID {
			if !room.HasPlayer(hostID) {
				return "", ErrNotInRoom
			}
			return "", ErrNotHost
		}
		if room.Status != fourkind.StatusWaiting {
			return "", ErrGameAlreadyStarted
		}

		for n := 1; !room.IsFull(); n++ {
			room.Players = append(room.Players, fourkind.Player{
				ID:   fourkind.BotPrefix + uuid.NewString(),
				Name: fmt.Sprintf("Bot %d", n),
			})
		}
		if err := gm.deal(room); err != nil {
			return "", err
		}
		return EventDealt, nil
	})
	if err != nil {
		return nil, err
	}
	return gm.playBots(ctx, room), nil
}

// GetGame returns the stored room after checking it is consistent.
func (gm *GameManager) GetGame(ctx context.Context, code string) (*Room, error) {
	return gm.loadRoom(ctx, code)
}

// ResumeGame loads the room and first plays any bot that is due, so a game
// left on a bot's turn moves on when someone looks at it.
func (gm *GameManager) ResumeGame(ctx context.Context, code string) (*Room, error) {
	room, err := gm.loadRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	return gm.playBots(ctx, room), nil
}

// GetState returns the room as viewerID may see it.
func (gm *GameManager) GetState(ctx context.Context, code, viewerID string) (*RoomState, error) {
	room, err := gm.ResumeGame(ctx, code)
	if err != nil {
		return nil, err
	}
	return NewRoomState(room, viewerID), nil
}

// PassCard validates and commits one pass for playerID. When expectedVersion
// is set it must match the stored version. A pass that loses the race with
// another write fails with ErrConflict and is never retried here.
func (gm *GameManager) PassCard(ctx context.Context, code, playerID string, card fourkind.Card, expectedVersion *int64) (*Room, error) {
	room, err := gm.loadRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != room.Version {
		return nil, ErrConflict
	}
	if room.Game == nil {
		if !room.HasPlayer(playerID) {
			return nil, fourkind.ErrNotAPlayer
		}
		return nil, fourkind.ErrGameNotStarted
	}

	next, err := gm.commitPass(ctx, room, playerID, card)
	if err != nil {
		return nil, err
	}
	return gm.playBots(ctx, next), nil
}

// commitPass applies the pass to room's game and writes the result only if
// the stored room is still at room.Version.
func (gm *GameManager) commitPass(ctx context.Context, room *Room, playerID string, card fourkind.Card) (*Room, error) {
	state, err := fourkind.Pass(*room.Game, playerID, card)
	if err != nil {
		return nil, err
	}

	next := room.Clone()
	next.setGame(state)
	next.Version = room.Version + 1
	next.UpdatedAt = gm.now()

	if err := gm.store.UpdateRoom(ctx, next, room.Version); err != nil {
		if errors.Is(err, ErrConflict) {
			gm.log.WithFields(logrus.Fields{"room": room.Code, "player": playerID, "version": room.Version}).
				Info("Pass lost the race for this turn")
		}
		return nil, err
	}

	entry := gm.log.WithFields(logrus.Fields{
		"room":    next.Code,
		"player":  playerID,
		"card":    card.String(),
		"version": next.Version,
	})
	kind := EventPassed
	if next.Status == fourkind.StatusCompleted {
		kind = EventFinished
		entry.WithField("winner", next.WinnerID).Info("Game won")
	} else {
		entry.Debug("Card passed")
	}
	gm.publish(ctx, next, kind)
	return next, nil
}

// playBots passes for computer players while it is their turn. It runs to
// completion even when the caller's request is cancelled.
func (gm *GameManager) playBots(ctx context.Context, room *Room) *Room {
	ctx = context.WithoutCancel(ctx)
	for room.Game != nil && room.Game.Status == fourkind.StatusRunning {
		current := room.Game.CurrentPlayer()
		if !current.IsBot() {
			break
		}
		card, ok := fourkind.ChooseCard(*room.Game)
		if !ok {
			break
		}
		next, err := gm.commitPass(ctx, room, current.ID, card)
		if err != nil {
			gm.log.WithError(err).WithFields(logrus.Fields{"room": room.Code, "bot": current.ID}).Warn("Bot pass failed")
			break
		}
		room = next
	}
	return room
}

func (gm *GameManager) ListPublicRooms(ctx context.Context, limit int) ([]*Room, error) {
	return gm.store.ListPublicRooms(ctx, clampLimit(limit, defaultListLimit, maxListLimit))
}

func (gm *GameManager) RoomsByPlayer(ctx context.Context, playerID string, limit int) ([]*Room, error) {
	return gm.store.RoomsByPlayer(ctx, playerID, clampLimit(limit, defaultPlayerRoomsLimit, maxListLimit))
}

func (gm *GameManager) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	return gm.store.Leaderboard(ctx, clampLimit(limit, defaultLeaderboardLimit, defaultLeaderboardLimit))
}

func (gm *GameManager) PlayerStats(ctx context.Context, playerID string) (PlayerStats, error) {
	return gm.store.PlayerStats(ctx, playerID)
}

// CleanupRooms deletes waiting rooms idle for longer than retention.
func (gm *GameManager) CleanupRooms(ctx context.Context, retention time.Duration) (int, error) {
	return gm.store.CleanupRooms(ctx, gm.now().Add(-retention))
}

func (gm *GameManager) loadRoom(ctx context.Context, code string) (*Room, error) {
	code = NormalizeRoomCode(code)
	if err := ValidateRoomCode(code); err != nil {
		return nil, err
	}

	room, err := gm.store.GetRoom(ctx, code)
	if err == nil {
		err = room.checkIntegrity()
	}
	if err != nil {
		if errors.Is(err, fourkind.ErrCorruptState) {
			gm.log.WithError(err).WithField("room", code).Error("Stored room is corrupt")
		}
		return nil, err
	}
	return room, nil
}

// updateLobby applies change to a copy of the stored room and commits it.
// change returns the event kind to publish, or "" when nothing changed.
func (gm *GameManager) updateLobby(ctx context.Context, code string, change func(room *Room) (string, error)) (*Room, error) {
	for attempt := range lobbyAttempts {
		room, err := gm.loadRoom(ctx, code)
		if err != nil {
			return nil, err
		}

		next := room.Clone()
		kind, err := change(next)
		if err != nil {
			return nil, err
		}
		if kind == "" {
			return room, nil
		}
		next.Version = room.Version + 1
		next.UpdatedAt = gm.now()

		if kind == EventDeleted {
			err = gm.store.DeleteRoom(ctx, room.Code, room.Version)
		} else {
			err = gm.store.UpdateRoom(ctx, next, room.Version)
		}
		if errors.Is(err, ErrConflict) {
			gm.log.WithFields(logrus.Fields{"room": room.Code, "attempt": attempt + 1}).Debug("Lobby update conflicted, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		gm.log.WithFields(logrus.Fields{"room": next.Code, "event": kind, "players": len(next.Players)}).Info("Room updated")
		gm.publish(ctx, next, kind)
		return next, nil
	}
	return nil, ErrConflict
}

func (gm *GameManager) deal(room *Room) error {
	var players [fourkind.NumPlayers]fourkind.Player
	copy(players[:], room.Players)

	game, err := gm.dealer.Deal(players)
	if err != nil {
		gm.log.WithError(err).WithField("room", room.Code).Error("Deal failed")
		return err
	}
	room.setGame(game)
	return nil
}

// publish reports failures without failing the committed change.
func (gm *GameManager) publish(ctx context.Context, room *Room, kind string) {
	ev := RoomEvent{RoomCode: room.Code, Version: room.Version, Kind: kind}
	if err := gm.notifier.Publish(ctx, ev); err != nil {
		gm.log.WithError(err).WithField("room", room.Code).Warn("Failed to publish room event")
	}
}

func clampLimit(limit, fallback, maximum int) int {
	if limit <= 0 {
		return fallback
	}
	return min(limit, maximum)
}
