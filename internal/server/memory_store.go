package server

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"fourkind-server/internal/fourkind"
)

// MemoryStore keeps rooms in process. Rooms are copied on the way in and on
// the way out so callers never share state with the store.
type MemoryStore struct {
	rooms map[string]*Room
	mu    sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]*Room),
	}
}

func (ms *MemoryStore) CreateRoom(_ context.Context, room *Room) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.rooms[room.Code]; exists {
		return ErrRoomExists
	}
	ms.rooms[room.Code] = room.Clone()
	return nil
}

func (ms *MemoryStore) GetRoom(_ context.Context, code string) (*Room, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	room, exists := ms.rooms[code]
	if !exists {
		return nil, ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (ms *MemoryStore) UpdateRoom(_ context.Context, room *Room, expectedVersion int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored, exists := ms.rooms[room.Code]
	if !exists {
		return ErrRoomNotFound
	}
	if stored.Version != expectedVersion {
		return ErrConflict
	}
	updated := room.Clone()
	updated.CreatedAt = stored.CreatedAt
	ms.rooms[room.Code] = updated
	return nil
}

func (ms *MemoryStore) DeleteRoom(_ context.Context, code string, expectedVersion int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored, exists := ms.rooms[code]
	if !exists {
		return ErrRoomNotFound
	}
	if stored.Version != expectedVersion {
		return ErrConflict
	}
	delete(ms.rooms, code)
	return nil
}

func (ms *MemoryStore) ListPublicRooms(_ context.Context, limit int) ([]*Room, error) {
	return ms.newest(limit, func(r *Room) bool {
		return r.Status == fourkind.StatusWaiting && r.Visibility == VisibilityPublic
	}), nil
}

func (ms *MemoryStore) RoomsByPlayer(_ context.Context, playerID string, limit int) ([]*Room, error) {
	return ms.newest(limit, func(r *Room) bool { return r.HasPlayer(playerID) }), nil
}

func (ms *MemoryStore) newest(limit int, keep func(*Room) bool) []*Room {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	rooms := []*Room{}
	for _, room := range ms.rooms {
		if keep(room) {
			rooms = append(rooms, room.Clone())
		}
	}
	slices.SortFunc(rooms, func(a, b *Room) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	if limit >= 0 && len(rooms) > limit {
		rooms = rooms[:limit]
	}
	return rooms
}

func (ms *MemoryStore) Leaderboard(_ context.Context, limit int) ([]LeaderboardEntry, error) {
	ms.mu.RLock()
	byPlayer := make(map[string]*LeaderboardEntry)
	for _, room := range ms.rooms {
		if room.Status != fourkind.StatusCompleted || room.WinnerID == "" {
			continue
		}
		entry, ok := byPlayer[room.WinnerID]
		if !ok {
			entry = &LeaderboardEntry{PlayerID: room.WinnerID}
			byPlayer[room.WinnerID] = entry
		}
		entry.PlayerName = max(entry.PlayerName, room.WinnerName)
		entry.Wins++
		if room.CardCollected != nil {
			entry.Points += CardPoints(*room.CardCollected)
		}
	}
	ms.mu.RUnlock()

	entries := make([]LeaderboardEntry, 0, len(byPlayer))
	for _, entry := range byPlayer {
		entries = append(entries, *entry)
	}
	slices.SortFunc(entries, func(a, b LeaderboardEntry) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerID, b.PlayerID)
	})
	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (ms *MemoryStore) PlayerStats(_ context.Context, playerID string) (PlayerStats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	stats := PlayerStats{PlayerID: playerID}
	for _, room := range ms.rooms {
		if room.Status != fourkind.StatusCompleted {
			continue
		}
		if room.HasPlayer(playerID) {
			stats.Played++
		}
		if room.WinnerID == playerID {
			stats.Wins++
			if room.CardCollected != nil {
				stats.Points += CardPoints(*room.CardCollected)
			}
		}
	}
	return stats, nil
}

func (ms *MemoryStore) CleanupRooms(_ context.Context, before time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	deleted := 0
	for code, room := range ms.rooms {
		if room.Status == fourkind.StatusWaiting && room.UpdatedAt.Before(before) {
			delete(ms.rooms, code)
			deleted++
		}
	}
	return deleted, nil
}

func (ms *MemoryStore) Health(context.Context) map[string]string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return map[string]string{
		"status":  "up",
		"message": "in-memory store",
		"rooms":   strconv.Itoa(len(ms.rooms)),
	}
}
