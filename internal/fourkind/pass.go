package fourkind

// ApplyPass moves card from the current seat to the next seat clockwise and
// returns the resulting state. Only the receiver can complete the game. The
// caller must have validated the pass; state itself is left untouched.
func ApplyPass(state GameState, card Card) GameState {
	next := state.Clone()
	sender := state.TurnIndex
	receiver := (sender + 1) % NumPlayers

	next.Seats[sender].Hand = state.Seats[sender].Hand.without(card)
	next.Seats[receiver].Hand = append(next.Seats[receiver].Hand, card)
	next.Seats[receiver].LastReceived = copyCard(&card)

	next.LastPassed = copyCard(&card)
	next.LastSender = sender
	next.LastReceiver = receiver
	next.TurnIndex = receiver
	next.Moves++

	if _, won := next.Seats[receiver].Hand.FourOfAKind(); won {
		next.Status = StatusCompleted
		next.Winner = receiver
	}
	return next
}

// Pass validates and applies one pass.
func Pass(state GameState, playerID string, card Card) (GameState, error) {
	if err := Validate(state, playerID, card); err != nil {
		return state, err
	}
	return ApplyPass(state, card), nil
}
