package fourkind

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// BotPrefix marks player ids that belong to computer opponents.
const BotPrefix = "bot:"

var ErrCorruptState = errors.New("CORRUPT_STATE: Game state violates its invariants")

type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func (p Player) IsBot() bool {
	return strings.HasPrefix(p.ID, BotPrefix)
}

// Seat is a player in their fixed clockwise position together with their hand.
type Seat struct {
	Player
	Hand         Hand  `json:"hand"`
	LastReceived *Card `json:"lastReceived"`
}

// GameState is the authoritative state of one game. Transitions never modify
// a GameState in place; they return a new value.
type GameState struct {
	Seats        [NumPlayers]Seat `json:"seats"`
	TurnIndex    int              `json:"turnIndex"`
	LastPassed   *Card            `json:"lastPassed"`
	LastSender   int              `json:"lastSender"`   // -1 before the first pass
	LastReceiver int              `json:"lastReceiver"` // -1 before the first pass
	Status       Status           `json:"status"`
	Winner       int              `json:"winner"` // -1 until completed
	Moves        int              `json:"moves"`
}

// SeatOf returns the seat index of playerID, or -1.
func (s GameState) SeatOf(playerID string) int {
	if playerID == "" {
		return -1
	}
	for i, seat := range s.Seats {
		if seat.ID == playerID {
			return i
		}
	}
	return -1
}

func (s GameState) CurrentPlayer() Player {
	return s.Seats[s.TurnIndex].Player
}

func (s GameState) WinnerPlayer() (Player, bool) {
	if s.Status != StatusCompleted || s.Winner < 0 || s.Winner >= NumPlayers {
		return Player{}, false
	}
	return s.Seats[s.Winner].Player, true
}

// CollectedRank is the rank the winner holds all four copies of.
func (s GameState) CollectedRank() (Card, bool) {
	if s.Status != StatusCompleted || s.Winner < 0 || s.Winner >= NumPlayers {
		return Null, false
	}
	return s.Seats[s.Winner].Hand.FourOfAKind()
}

// Clone returns a deep copy.
func (s GameState) Clone() GameState {
	out := s
	for i := range out.Seats {
		out.Seats[i].Hand = s.Seats[i].Hand.clone()
		out.Seats[i].LastReceived = copyCard(s.Seats[i].LastReceived)
	}
	out.LastPassed = copyCard(s.LastPassed)
	return out
}

func copyCard(c *Card) *Card {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

// CheckIntegrity verifies the invariants every stored state must satisfy.
// The two-per-rank cap only applies at deal time and is not checked here.
func (s GameState) CheckIntegrity() error {
	if s.Status != StatusRunning && s.Status != StatusCompleted {
		return fmt.Errorf("%w: unexpected status %q", ErrCorruptState, s.Status)
	}

	seen := make(map[string]bool, NumPlayers)
	for i, seat := range s.Seats {
		if seat.ID == "" {
			return fmt.Errorf("%w: seat %d has no player", ErrCorruptState, i)
		}
		if seen[seat.ID] {
			return fmt.Errorf("%w: player %s seated twice", ErrCorruptState, seat.ID)
		}
		seen[seat.ID] = true
	}

	if !inRange(s.TurnIndex) {
		return fmt.Errorf("%w: turn index %d out of range", ErrCorruptState, s.TurnIndex)
	}

	if s.LastPassed == nil {
		if s.Moves != 0 || s.LastSender != -1 || s.LastReceiver != -1 {
			return fmt.Errorf("%w: pass bookkeeping set before the first pass", ErrCorruptState)
		}
	} else {
		if !s.LastPassed.Valid() || !inRange(s.LastSender) || !inRange(s.LastReceiver) {
			return fmt.Errorf("%w: invalid last pass", ErrCorruptState)
		}
		if s.LastReceiver != (s.LastSender+1)%NumPlayers || s.LastReceiver != s.TurnIndex {
			return fmt.Errorf("%w: last pass does not lead to the current turn", ErrCorruptState)
		}
	}

	var totals [Four + 1]int
	for i, seat := range s.Seats {
		want := HandSize
		if i == s.TurnIndex {
			want = HandSize + 1
		}
		if len(seat.Hand) != want {
			return fmt.Errorf("%w: seat %d holds %d cards, want %d", ErrCorruptState, i, len(seat.Hand), want)
		}
		for _, card := range seat.Hand {
			if !card.Valid() {
				return fmt.Errorf("%w: seat %d holds an invalid card", ErrCorruptState, i)
			}
			totals[card]++
		}
		if seat.LastReceived != nil && !seat.LastReceived.Valid() {
			return fmt.Errorf("%w: seat %d last received an invalid card", ErrCorruptState, i)
		}
	}
	if totals[Null] != 1 {
		return fmt.Errorf("%w: %d null cards in play", ErrCorruptState, totals[Null])
	}
	for _, rank := range Ranks {
		if totals[rank] != CopiesPerRank {
			return fmt.Errorf("%w: %d copies of rank %s in play", ErrCorruptState, totals[rank], rank)
		}
	}

	if s.Status == StatusCompleted {
		if s.LastPassed == nil || s.Winner != s.LastReceiver {
			return fmt.Errorf("%w: winner %d is not the last receiver", ErrCorruptState, s.Winner)
		}
		if _, ok := s.Seats[s.Winner].Hand.FourOfAKind(); !ok {
			return fmt.Errorf("%w: winner %d holds no four of a kind", ErrCorruptState, s.Winner)
		}
		return nil
	}

	if s.Winner != -1 {
		return fmt.Errorf("%w: running game has a winner", ErrCorruptState)
	}
	for i, seat := range s.Seats {
		if _, ok := seat.Hand.FourOfAKind(); ok {
			return fmt.Errorf("%w: seat %d holds four of a kind in a running game", ErrCorruptState, i)
		}
	}
	return nil
}

// UnmarshalJSON rejects documents that decode but break the invariants.
func (s *GameState) UnmarshalJSON(data []byte) error {
	type rawState GameState
	var raw rawState
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	state := GameState(raw)
	if err := state.CheckIntegrity(); err != nil {
		return err
	}
	*s = state
	return nil
}

func inRange(i int) bool {
	return i >= 0 && i < NumPlayers
}
