package fourkind

import "errors"

// Pass rejections. None of them change the state.
var (
	ErrGameOver           = errors.New("GAME_OVER: The game has already been won")
	ErrGameNotStarted     = errors.New("GAME_NOT_STARTED: Cards have not been dealt yet")
	ErrNotAPlayer         = errors.New("NOT_A_PLAYER: You are not seated in this game")
	ErrNotYourTurn        = errors.New("NOT_YOUR_TURN: It is another player's turn")
	ErrCannotLeadWithNull = errors.New("CANNOT_LEAD_WITH_NULL: The first pass of a game cannot be the 0 card")
	ErrCardNotInHand      = errors.New("CARD_NOT_IN_HAND: You do not hold that card")
	ErrCannotBounceBack   = errors.New("CANNOT_BOUNCE_BACK: You cannot pass back the only copy of the card you just received")
)

var ruleViolations = []error{
	ErrGameOver,
	ErrGameNotStarted,
	ErrInvalidCard,
	ErrNotAPlayer,
	ErrNotYourTurn,
	ErrCannotLeadWithNull,
	ErrCardNotInHand,
	ErrCannotBounceBack,
}

// RuleViolation returns the pass rejection err wraps, or nil when err was
// not caused by the request.
func RuleViolation(err error) error {
	for _, target := range ruleViolations {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

// Validate checks whether playerID may pass card in state. The Null lead
// check runs before turn ownership so a Null lead is refused for every seat.
func Validate(state GameState, playerID string, card Card) error {
	switch state.Status {
	case StatusCompleted:
		return ErrGameOver
	case StatusRunning:
	default:
		return ErrGameNotStarted
	}
	if !card.Valid() {
		return ErrInvalidCard
	}

	seat := state.SeatOf(playerID)
	if seat < 0 {
		return ErrNotAPlayer
	}
	if state.LastPassed == nil && card.IsNull() {
		return ErrCannotLeadWithNull
	}
	if seat != state.TurnIndex {
		return ErrNotYourTurn
	}

	acting := state.Seats[seat]
	if !acting.Hand.Contains(card) {
		return ErrCardNotInHand
	}
	if acting.LastReceived != nil && *acting.LastReceived == card && acting.Hand.Count(card) < 2 {
		return ErrCannotBounceBack
	}
	return nil
}

// LegalCards lists the distinct cards the current player may pass, in
// ascending order.
func LegalCards(state GameState) []Card {
	if state.Status != StatusRunning || !inRange(state.TurnIndex) {
		return nil
	}
	playerID := state.Seats[state.TurnIndex].ID
	var legal []Card
	for c := Null; c <= Four; c++ {
		if Validate(state, playerID, c) == nil {
			legal = append(legal, c)
		}
	}
	return legal
}
