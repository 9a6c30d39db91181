package fourkind

// ChooseCard picks the pass for the player whose turn it is: the legal card
// they hold the fewest copies of, lowest value first on ties. It returns
// false when the game is not running.
func ChooseCard(state GameState) (Card, bool) {
	legal := LegalCards(state)
	if len(legal) == 0 {
		return Null, false
	}
	hand := state.Seats[state.TurnIndex].Hand
	best := legal[0]
	for _, c := range legal[1:] {
		if hand.Count(c) < hand.Count(best) {
			best = c
		}
	}
	return best, true
}
