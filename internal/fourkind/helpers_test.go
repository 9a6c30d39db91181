package fourkind_test

import (
	"fourkind-server/internal/fourkind"
)

var players = [fourkind.NumPlayers]fourkind.Player{
	{ID: "A", Name: "Alice"},
	{ID: "B", Name: "Bruno"},
	{ID: "C", Name: "Chen"},
	{ID: "D", Name: "Dana"},
}

func hand(s string) fourkind.Hand {
	h := make(fourkind.Hand, 0, len(s))
	for _, r := range s {
		h = append(h, fourkind.Card(r-'0'))
	}
	return h
}

// newState builds a running game before its first pass.
func newState(turn int, hands [fourkind.NumPlayers]string) fourkind.GameState {
	state := fourkind.GameState{
		TurnIndex:    turn,
		LastSender:   -1,
		LastReceiver: -1,
		Status:       fourkind.StatusRunning,
		Winner:       -1,
	}
	for i := range state.Seats {
		state.Seats[i] = fourkind.Seat{Player: players[i], Hand: hand(hands[i])}
	}
	return state
}

// scenarioState has C holding the Null card, D without any 2.
func scenarioState() fourkind.GameState {
	return newState(2, [fourkind.NumPlayers]string{"1234", "2234", "02134", "1134"})
}

func totalCards(state fourkind.GameState) int {
	n := 0
	for _, seat := range state.Seats {
		n += len(seat.Hand)
	}
	return n
}
