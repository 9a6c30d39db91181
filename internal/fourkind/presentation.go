package fourkind

type ClientState struct {
	Status       Status     `json:"status"`
	Seats        []SeatView `json:"seats"`
	YourSeat     int        `json:"yourSeat"` // -1 for spectators
	TurnIndex    int        `json:"turnIndex"`
	IsYourTurn   bool       `json:"isYourTurn"`
	LegalCards   []Card     `json:"legalCards,omitempty"`
	LastPassed   *Card      `json:"lastPassed"`
	LastSender   int        `json:"lastSender"`
	LastReceiver int        `json:"lastReceiver"`
	Moves        int        `json:"moves"`
	Winner       int        `json:"winner"`
	WinnerID     string     `json:"winnerId,omitempty"`
	Collected    *Card      `json:"collected,omitempty"`
}

type SeatView struct {
	Player
	IsYou    bool `json:"isYou"`
	IsTurn   bool `json:"isTurn"`
	IsBot    bool `json:"isBot"`
	HandSize int  `json:"handSize"`
	// Hidden cards are nil.
	Hand         []*Card `json:"hand"`
	LastReceived *Card   `json:"lastReceived"`
}

// View projects the state for viewerID. The viewer sees their own hand. Other
// hands are hidden except for the card that was just passed, which shows in
// the first slot of its receiver's hand. A completed game shows every hand.
func (s GameState) View(viewerID string) *ClientState {
	you := s.SeatOf(viewerID)
	done := s.Status == StatusCompleted

	seats := make([]SeatView, 0, NumPlayers)
	for i, seat := range s.Seats {
		view := SeatView{
			Player:   seat.Player,
			IsYou:    i == you,
			IsTurn:   !done && i == s.TurnIndex,
			IsBot:    seat.IsBot(),
			HandSize: len(seat.Hand),
		}
		switch {
		case done || i == you:
			view.Hand = visibleHand(seat.Hand, nil)
			view.LastReceived = copyCard(seat.LastReceived)
		case i == s.LastReceiver && s.LastPassed != nil:
			view.Hand = visibleHand(seat.Hand, s.LastPassed)
			view.LastReceived = copyCard(s.LastPassed)
		default:
			view.Hand = make([]*Card, len(seat.Hand))
		}
		seats = append(seats, view)
	}

	state := &ClientState{
		Status:       s.Status,
		Seats:        seats,
		YourSeat:     you,
		TurnIndex:    s.TurnIndex,
		IsYourTurn:   !done && you >= 0 && you == s.TurnIndex,
		LastPassed:   copyCard(s.LastPassed),
		LastSender:   s.LastSender,
		LastReceiver: s.LastReceiver,
		Moves:        s.Moves,
		Winner:       s.Winner,
	}
	if state.IsYourTurn {
		state.LegalCards = LegalCards(s)
	}
	if winner, ok := s.WinnerPlayer(); ok {
		state.WinnerID = winner.ID
	}
	if rank, ok := s.CollectedRank(); ok {
		state.Collected = &rank
	}
	return state
}

// visibleHand exposes the whole hand, or only one instance of reveal when it
// is set. The revealed card is placed first.
func visibleHand(hand Hand, reveal *Card) []*Card {
	out := make([]*Card, len(hand))
	if reveal == nil {
		for i := range hand {
			c := hand[i]
			out[i] = &c
		}
		return out
	}
	if len(out) > 0 && hand.Contains(*reveal) {
		out[0] = copyCard(reveal)
	}
	return out
}
