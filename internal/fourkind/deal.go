package fourkind

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
)

// DefaultMaxDealAttempts bounds the restart loop in Deal.
const DefaultMaxDealAttempts = 10000

var (
	ErrDealExhausted  = errors.New("DEAL_EXHAUSTED: Could not distribute the deck")
	ErrInvalidPlayers = errors.New("INVALID_PLAYERS: A game needs four distinct players")
)

// Dealer distributes fresh decks. It is safe for concurrent use.
type Dealer struct {
	mu          sync.Mutex
	rng         *rand.Rand
	maxAttempts int
}

// NewDealer returns a dealer drawing from rng. A nil rng uses a randomly
// seeded source; maxAttempts <= 0 selects DefaultMaxDealAttempts.
func NewDealer(rng *rand.Rand, maxAttempts int) *Dealer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxDealAttempts
	}
	return &Dealer{rng: rng, maxAttempts: maxAttempts}
}

// Deal seats the players in the given clockwise order and deals the deck.
// One uniformly chosen seat receives the Null card plus four others and
// moves first. Every other seat receives four cards, and no hand is dealt
// more than two copies of a rank. Placements that reach a dead end restart
// the whole deal.
func (d *Dealer) Deal(players [NumPlayers]Player) (GameState, error) {
	if err := checkPlayers(players); err != nil {
		return GameState{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for range d.maxAttempts {
		hands, holder, ok := d.tryDeal()
		if !ok {
			continue
		}
		state := GameState{
			TurnIndex:    holder,
			LastSender:   -1,
			LastReceiver: -1,
			Status:       StatusRunning,
			Winner:       -1,
		}
		for i := range state.Seats {
			state.Seats[i] = Seat{Player: players[i], Hand: hands[i]}
		}
		return state, nil
	}
	return GameState{}, fmt.Errorf("%w after %d attempts", ErrDealExhausted, d.maxAttempts)
}

func (d *Dealer) tryDeal() ([NumPlayers]Hand, int, bool) {
	var hands [NumPlayers]Hand
	holder := d.rng.IntN(NumPlayers)
	for i := range hands {
		hands[i] = make(Hand, 0, HandSize+1)
	}
	hands[holder] = append(hands[holder], Null)

	deck := NewDeck()
	cards := deck[:len(deck)-1]
	d.rng.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })

	for _, card := range cards {
		placed := false
		for _, i := range d.rng.Perm(NumPlayers) {
			capacity := HandSize
			if i == holder {
				capacity = HandSize + 1
			}
			if len(hands[i]) < capacity && hands[i].Count(card) < maxDealtPerRank {
				hands[i] = append(hands[i], card)
				placed = true
				break
			}
		}
		if !placed {
			return hands, holder, false
		}
	}
	return hands, holder, true
}

func checkPlayers(players [NumPlayers]Player) error {
	seen := make(map[string]bool, NumPlayers)
	for i, p := range players {
		if p.ID == "" {
			return fmt.Errorf("%w: seat %d is empty", ErrInvalidPlayers, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: %s appears twice", ErrInvalidPlayers, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}
