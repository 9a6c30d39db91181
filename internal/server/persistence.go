package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fourkind-server/internal/database"
	"fourkind-server/internal/fourkind"
)

// RoomStore persists rooms. UpdateRoom and DeleteRoom only apply when the
// stored version still equals expectedVersion and return ErrConflict
// otherwise.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *Room) error
	GetRoom(ctx context.Context, code string) (*Room, error)
	UpdateRoom(ctx context.Context, room *Room, expectedVersion int64) error
	DeleteRoom(ctx context.Context, code string, expectedVersion int64) error

	ListPublicRooms(ctx context.Context, limit int) ([]*Room, error)
	RoomsByPlayer(ctx context.Context, playerID string, limit int) ([]*Room, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	PlayerStats(ctx context.Context, playerID string) (PlayerStats, error)

	// CleanupRooms deletes waiting rooms not updated since before.
	CleanupRooms(ctx context.Context, before time.Time) (int, error)

	Health(ctx context.Context) map[string]string
}

const uniqueViolation = "23505"

const roomColumns = `code, host_id, visibility, status, players, game, version,
	winner_id, winner_name, card_collected, created_at, updated_at`

// PostgresStore keeps one row per room with players and game as JSONB.
type PostgresStore struct {
	db database.Service
}

func NewPostgresStore(db database.Service) *PostgresStore {
	return &PostgresStore{db: db}
}

func (ps *PostgresStore) CreateRoom(ctx context.Context, room *Room) error {
	args, err := roomArgs(room)
	if err != nil {
		return err
	}

	query := `INSERT INTO rooms (` + roomColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	if _, err := ps.db.Pool().Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrRoomExists
		}
		return fmt.Errorf("failed to create room %s: %w", room.Code, err)
	}
	return nil
}

func (ps *PostgresStore) GetRoom(ctx context.Context, code string) (*Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE code = $1`

	room, err := scanRoom(ps.db.Pool().QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", code, err)
	}
	return room, nil
}

func (ps *PostgresStore) UpdateRoom(ctx context.Context, room *Room, expectedVersion int64) error {
	args, err := roomArgs(room)
	if err != nil {
		return err
	}

	query := `UPDATE rooms SET host_id = $2, visibility = $3, status = $4, players = $5,
			game = $6, version = $7, winner_id = $8, winner_name = $9, card_collected = $10,
			updated_at = $11
		WHERE code = $1 AND version = $12`

	// created_at never changes.
	args = append(append(args[:10:10], args[11]), expectedVersion)

	tag, err := ps.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update room %s: %w", room.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return ps.missingOrConflict(ctx, room.Code)
	}
	return nil
}

func (ps *PostgresStore) DeleteRoom(ctx context.Context, code string, expectedVersion int64) error {
	tag, err := ps.db.Pool().Exec(ctx, `DELETE FROM rooms WHERE code = $1 AND version = $2`, code, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to delete room %s: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return ps.missingOrConflict(ctx, code)
	}
	return nil
}

func (ps *PostgresStore) missingOrConflict(ctx context.Context, code string) error {
	var exists bool
	err := ps.db.Pool().QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check room %s: %w", code, err)
	}
	if !exists {
		return ErrRoomNotFound
	}
	return ErrConflict
}

func (ps *PostgresStore) ListPublicRooms(ctx context.Context, limit int) ([]*Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms
		WHERE status = $1 AND visibility = $2
		ORDER BY created_at DESC
		LIMIT $3`
	return ps.queryRooms(ctx, query, string(fourkind.StatusWaiting), string(VisibilityPublic), limit)
}

func (ps *PostgresStore) RoomsByPlayer(ctx context.Context, playerID string, limit int) ([]*Room, error) {
	member, err := memberFilter(playerID)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + roomColumns + ` FROM rooms
		WHERE players @> $1::jsonb
		ORDER BY created_at DESC
		LIMIT $2`
	return ps.queryRooms(ctx, query, member, limit)
}

func (ps *PostgresStore) queryRooms(ctx context.Context, query string, args ...any) ([]*Room, error) {
	rows, err := ps.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	rooms := []*Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room row: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room rows: %w", err)
	}
	return rooms, nil
}

// pointsSQL mirrors CardPoints.
const pointsSQL = `CASE card_collected WHEN 4 THEN 1000 WHEN 3 THEN 800 WHEN 2 THEN 700 WHEN 1 THEN 500 ELSE 0 END`

func (ps *PostgresStore) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	query := `SELECT winner_id, max(winner_name), count(*), COALESCE(sum(` + pointsSQL + `), 0) AS points
		FROM rooms
		WHERE status = $1 AND winner_id IS NOT NULL
		GROUP BY winner_id
		ORDER BY points DESC, winner_id
		LIMIT $2`

	rows, err := ps.db.Pool().Query(ctx, query, string(fourkind.StatusCompleted), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.PlayerName, &e.Wins, &e.Points); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard rows: %w", err)
	}
	return entries, nil
}

func (ps *PostgresStore) PlayerStats(ctx context.Context, playerID string) (PlayerStats, error) {
	member, err := memberFilter(playerID)
	if err != nil {
		return PlayerStats{}, err
	}

	query := `SELECT
			count(*) FILTER (WHERE players @> $2::jsonb),
			count(*) FILTER (WHERE winner_id = $3),
			COALESCE(sum(` + pointsSQL + `) FILTER (WHERE winner_id = $3), 0)
		FROM rooms
		WHERE status = $1`

	stats := PlayerStats{PlayerID: playerID}
	err = ps.db.Pool().QueryRow(ctx, query, string(fourkind.StatusCompleted), member, playerID).
		Scan(&stats.Played, &stats.Wins, &stats.Points)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("failed to load stats for %s: %w", playerID, err)
	}
	return stats, nil
}

func (ps *PostgresStore) CleanupRooms(ctx context.Context, before time.Time) (int, error) {
	tag, err := ps.db.Pool().Exec(ctx, `DELETE FROM rooms WHERE status = $1 AND updated_at < $2`,
		string(fourkind.StatusWaiting), before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rooms: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (ps *PostgresStore) Health(ctx context.Context) map[string]string {
	return ps.db.Health(ctx)
}

func memberFilter(playerID string) (string, error) {
	data, err := json.Marshal([]map[string]string{{"id": playerID}})
	if err != nil {
		return "", fmt.Errorf("failed to encode player filter: %w", err)
	}
	return string(data), nil
}

// roomArgs returns the room fields in roomColumns order.
func roomArgs(room *Room) ([]any, error) {
	players, err := json.Marshal(room.Players)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize players of room %s: %w", room.Code, err)
	}

	var game *string
	if room.Game != nil {
		data, err := json.Marshal(room.Game)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize game of room %s: %w", room.Code, err)
		}
		s := string(data)
		game = &s
	}

	var card *int16
	if room.CardCollected != nil {
		c := int16(*room.CardCollected)
		card = &c
	}

	return []any{
		room.Code,
		room.HostID,
		string(room.Visibility),
		string(room.Status),
		string(players),
		game,
		room.Version,
		nullString(room.WinnerID),
		nullString(room.WinnerName),
		card,
		room.CreatedAt,
		room.UpdatedAt,
	}, nil
}

func scanRoom(row pgx.Row) (*Room, error) {
	var (
		room       Room
		visibility string
		status     string
		players    []byte
		game       []byte
		winnerID   *string
		winnerName *string
		card       *int16
	)

	err := row.Scan(
		&room.Code,
		&room.HostID,
		&visibility,
		&status,
		&players,
		&game,
		&room.Version,
		&winnerID,
		&winnerName,
		&card,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	room.Visibility = Visibility(visibility)
	room.Status = fourkind.Status(status)
	if err := json.Unmarshal(players, &room.Players); err != nil {
		return nil, fmt.Errorf("%w: players of room %s: %v", fourkind.ErrCorruptState, room.Code, err)
	}
	if game != nil {
		var state fourkind.GameState
		if err := json.Unmarshal(game, &state); err != nil {
			return nil, fmt.Errorf("room %s: %w", room.Code, err)
		}
		room.Game = &state
	}
	if winnerID != nil {
		room.WinnerID = *winnerID
	}
	if winnerName != nil {
		room.WinnerName = *winnerName
	}
	if card != nil {
		c := fourkind.Card(*card)
		room.CardCollected = &c
	}
	return &room, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
