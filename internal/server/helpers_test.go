package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"fourkind-server/internal/fourkind"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestManager(t *testing.T) (*GameManager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	dealer := fourkind.NewDealer(rand.New(rand.NewPCG(7, 11)), 0)
	return NewGameManager(store, NewLocalNotifier(testLogger()), dealer, testLogger()), store
}

func newPlayer(name string) fourkind.Player {
	return fourkind.Player{ID: uuid.NewString(), Name: name}
}

func hand(s string) fourkind.Hand {
	h := make(fourkind.Hand, 0, len(s))
	for _, r := range s {
		h = append(h, fourkind.Card(r-'0'))
	}
	return h
}

// runningRoom stores a full room whose game starts from hands with seat
// turn to move.
func runningRoom(t *testing.T, store RoomStore, turn int, hands [fourkind.NumPlayers]string) *Room {
	t.Helper()
	players := []fourkind.Player{newPlayer("Alice"), newPlayer("Bruno"), newPlayer("Chen"), newPlayer("Dana")}
	return storeGame(t, store, players, turn, hands)
}

// botRoom is runningRoom with Alice facing three computer players.
func botRoom(t *testing.T, store RoomStore, turn int, hands [fourkind.NumPlayers]string) *Room {
	t.Helper()
	players := []fourkind.Player{newPlayer("Alice")}
	for n := 1; n < fourkind.NumPlayers; n++ {
		players = append(players, fourkind.Player{ID: fourkind.BotPrefix + uuid.NewString(), Name: fmt.Sprintf("Bot %d", n)})
	}
	return storeGame(t, store, players, turn, hands)
}

func storeGame(t *testing.T, store RoomStore, players []fourkind.Player, turn int, hands [fourkind.NumPlayers]string) *Room {
	t.Helper()

	game := fourkind.GameState{
		TurnIndex:    turn,
		LastSender:   -1,
		LastReceiver: -1,
		Status:       fourkind.StatusRunning,
		Winner:       -1,
	}
	for i := range game.Seats {
		game.Seats[i] = fourkind.Seat{Player: players[i], Hand: hand(hands[i])}
	}
	require.NoError(t, game.CheckIntegrity())

	now := time.Now()
	room := &Room{
		Code:       GenerateRoomCode(),
		HostID:     players[0].ID,
		Visibility: VisibilityPublic,
		Players:    players,
		Version:    5,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	room.setGame(game)
	require.NoError(t, store.CreateRoom(context.Background(), room))
	return room
}

// nearWinHands lets Alice hand Bruno his fourth 2.
var nearWinHands = [fourkind.NumPlayers]string{"02113", "2224", "1334", "1344"}

// fullRoom creates a room and seats three more humans, which deals.
func fullRoom(t *testing.T, gm *GameManager) (*Room, []fourkind.Player) {
	t.Helper()
	ctx := context.Background()

	players := []fourkind.Player{newPlayer("Alice"), newPlayer("Bruno"), newPlayer("Chen"), newPlayer("Dana")}
	room, err := gm.CreateGame(ctx, players[0], VisibilityPublic)
	require.NoError(t, err)
	for _, p := range players[1:] {
		room, err = gm.JoinGame(ctx, room.Code, p)
		require.NoError(t, err)
	}
	require.NotNil(t, room.Game)
	return room, players
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg, err := loadConfig(func(string) string { return "" })
	require.NoError(t, err)
	cfg.Env = "test"
	cfg.PassRateLimit = 1000

	s, err := NewServer(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

// login issues a session for name and returns its token and player.
func login(t *testing.T, s *Server, name string) (string, fourkind.Player) {
	t.Helper()
	token, player, err := s.sessions.Issue(name, "")
	require.NoError(t, err)
	return token, player
}

// tokenFor signs a session for an existing player.
func tokenFor(t *testing.T, s *Server, player fourkind.Player) string {
	t.Helper()
	claims := sessionClaims{
		Name: player.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   player.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.sessions.secret)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
