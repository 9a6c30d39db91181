package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fourkind-server/internal/fourkind"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{ErrRoomNotFound, http.StatusNotFound, "ROOM_NOT_FOUND"},
		{fmt.Errorf("load: %w", ErrConflict), http.StatusConflict, "CONFLICT"},
		{fourkind.ErrNotYourTurn, http.StatusBadRequest, "NOT_YOUR_TURN"},
		{fmt.Errorf("pass: %w", fourkind.ErrCannotBounceBack), http.StatusBadRequest, "CANNOT_BOUNCE_BACK"},
		{fourkind.ErrInvalidCard, http.StatusBadRequest, "INVALID_CARD"},
		{fourkind.ErrGameOver, http.StatusBadRequest, "GAME_OVER"},
		{fourkind.ErrNotAPlayer, http.StatusForbidden, "NOT_A_PLAYER"},
		{ErrTokenInvalid, http.StatusUnauthorized, "TOKEN_INVALID"},
		{fourkind.ErrCorruptState, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, body := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestHealthRoute(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s.RegisterRoutes(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"up"`)
}

func TestCreateSessionRoute(t *testing.T) {
	s := newTestServer(t)
	h := s.RegisterRoutes()

	w := doJSON(t, h, http.MethodPost, "/session", "", CreateSessionRequest{Name: "Alice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[CreateSessionResponse](t, w)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "Alice", resp.Player.Name)

	player, err := s.sessions.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Player, player)

	w = doJSON(t, h, http.MethodPost, "/session", "", CreateSessionRequest{Name: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "USERNAME_INVALID", decode[ErrorMessage](t, w).Code)
}

func TestRoomLifecycleRoutes(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t)
	h := s.RegisterRoutes()

	tokens := make([]string, fourkind.NumPlayers)
	players := make([]fourkind.Player, fourkind.NumPlayers)
	for i, name := range []string{"Alice", "Bruno", "Chen", "Dana"} {
		tokens[i], players[i] = login(t, s, name)
	}

	w := doJSON(t, h, http.MethodPost, "/rooms", tokens[0], nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[RoomState](t, w)
	assert.True(created.IsHost)
	assert.Equal(VisibilityPublic, created.Visibility)
	code := created.Code

	w = doJSON(t, h, http.MethodGet, "/rooms", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summaries := decode[[]RoomSummary](t, w)
	require.Len(t, summaries, 1)
	assert.Equal(code, summaries[0].Code)

	for i := 1; i < fourkind.NumPlayers; i++ {
		w = doJSON(t, h, http.MethodPost, "/rooms/"+code+"/join", tokens[i], nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, "/rooms/"+code, tokens[1], nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[RoomState](t, w)
	assert.Equal(fourkind.StatusRunning, state.Status)
	require.NotNil(t, state.Game)
	assert.Equal(1, state.Game.YourSeat)
	for i, seat := range state.Game.Seats {
		for _, card := range seat.Hand {
			assert.Equal(i == 1, card != nil, "seat %d visibility", i)
		}
	}

	turn := state.Game.TurnIndex
	other := (turn + 1) % fourkind.NumPlayers

	w = doJSON(t, h, http.MethodPost, "/rooms/"+code+"/pass", tokens[other], PassCardRequest{Card: ptr(fourkind.One)})
	assert.Equal(http.StatusBadRequest, w.Code)
	assert.Equal("NOT_YOUR_TURN", decode[ErrorMessage](t, w).Code)

	w = doJSON(t, h, http.MethodGet, "/rooms/"+code, tokens[turn], nil)
	mine := decode[RoomState](t, w)
	require.True(t, mine.Game.IsYourTurn)
	require.NotEmpty(t, mine.Game.LegalCards)
	card := mine.Game.LegalCards[0]

	stale := mine.Version - 1
	w = doJSON(t, h, http.MethodPost, "/rooms/"+code+"/pass", tokens[turn], PassCardRequest{Card: &card, Version: &stale})
	assert.Equal(http.StatusConflict, w.Code)

	w = doJSON(t, h, http.MethodPost, "/rooms/"+code+"/pass", tokens[turn], PassCardRequest{Card: &card, Version: &mine.Version})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	passed := decode[RoomState](t, w)
	assert.Equal(mine.Version+1, passed.Version)
	assert.Equal(1, passed.Game.Moves)

	w = doJSON(t, h, http.MethodPost, "/rooms/"+code+"/leave", tokens[2], nil)
	assert.Equal(http.StatusBadRequest, w.Code)
	assert.Equal("GAME_ALREADY_STARTED", decode[ErrorMessage](t, w).Code)

	w = doJSON(t, h, http.MethodGet, "/players/"+players[3].ID+"/rooms", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(decode[[]RoomSummary](t, w), 1)
}

func TestPassRouteValidation(t *testing.T) {
	s := newTestServer(t)
	h := s.RegisterRoutes()
	token, _ := login(t, s, "Alice")

	w := doJSON(t, h, http.MethodPost, "/rooms", token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	code := decode[RoomState](t, w).Code

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing card", map[string]any{}, http.StatusBadRequest, "INVALID_CARD"},
		{"unknown card", map[string]any{"card": "7"}, http.StatusBadRequest, "INVALID_CARD"},
		{"not started", PassCardRequest{Card: ptr(fourkind.One)}, http.StatusBadRequest, "GAME_NOT_STARTED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/rooms/"+code+"/pass", token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorMessage](t, w).Code)
		})
	}
}

func TestRoomRouteErrors(t *testing.T) {
	s := newTestServer(t)
	h := s.RegisterRoutes()
	token, _ := login(t, s, "Alice")

	w := doJSON(t, h, http.MethodGet, "/rooms/ABCD", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, h, http.MethodGet, "/rooms/ABCD", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPost, "/rooms/AB12/join", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ROOM_CODE", decode[ErrorMessage](t, w).Code)

	w = doJSON(t, h, http.MethodPost, "/rooms", token, CreateRoomRequest{Visibility: "secret"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCorruptRoomRoute(t *testing.T) {
	s := newTestServer(t)
	h := s.RegisterRoutes()

	room := runningRoom(t, s.store, 0, nearWinHands)
	corrupt := room.Clone()
	corrupt.Game.Seats[2].Hand = hand("1114")
	require.NoError(t, s.store.UpdateRoom(context.Background(), corrupt, room.Version))

	token := tokenFor(t, s, room.Players[0])

	w := doJSON(t, h, http.MethodGet, "/rooms/"+room.Code, token, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errInternal, decode[ErrorMessage](t, w))
}

func TestBotsAndLeaderboardRoutes(t *testing.T) {
	s := newTestServer(t)
	h := s.RegisterRoutes()

	finished := runningRoom(t, s.store, 0, nearWinHands)
	_, err := s.games.PassCard(context.Background(), finished.Code, finished.Players[0].ID, fourkind.Two, nil)
	require.NoError(t, err)

	w := doJSON(t, h, http.MethodGet, "/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]LeaderboardEntry](t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, 700, entries[0].Points)

	w = doJSON(t, h, http.MethodGet, "/players/"+finished.Players[1].ID+"/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[PlayerStats](t, w).Wins)

	token, _ := login(t, s, "Hana")
	w = doJSON(t, h, http.MethodPost, "/rooms", token, CreateRoomRequest{Visibility: "private"})
	require.Equal(t, http.StatusCreated, w.Code)
	code := decode[RoomState](t, w).Code

	w = doJSON(t, h, http.MethodPost, "/rooms/"+code+"/bots", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state := decode[RoomState](t, w)
	assert.Len(t, state.Players, fourkind.NumPlayers)
	require.NotNil(t, state.Game)
	assert.True(t, state.Game.Seats[3].IsBot)
}

func ptr[T any](v T) *T { return &v }
