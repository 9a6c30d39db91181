package fourkind

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Card is one of the five face values in the deck. The four ranks come in
// four copies each, the Null card exists once.
type Card int8

const (
	Null Card = iota
	One
	Two
	Three
	Four
)

// Ranks lists the scoring cards in ascending order.
var Ranks = []Card{One, Two, Three, Four}

const (
	NumPlayers    = 4
	HandSize      = 4
	CopiesPerRank = 4
	DeckSize      = CopiesPerRank*4 + 1

	// Cap on copies of one rank a hand may be dealt.
	maxDealtPerRank = 2
)

var ErrInvalidCard = errors.New("INVALID_CARD: Card must be one of 0, 1, 2, 3, 4")

// ParseCard reads the wire form of a card ("0" through "4").
func ParseCard(s string) (Card, error) {
	if len(s) != 1 || s[0] < '0' || s[0] > '4' {
		return Null, fmt.Errorf("%w (got %q)", ErrInvalidCard, s)
	}
	return Card(s[0] - '0'), nil
}

func (c Card) Valid() bool {
	return c >= Null && c <= Four
}

func (c Card) IsNull() bool {
	return c == Null
}

func (c Card) String() string {
	if !c.Valid() {
		return "?"
	}
	return string(rune('0' + c))
}

func (c Card) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidCard, c)
	}
	return json.Marshal(c.String())
}

func (c *Card) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCard, err)
	}
	card, err := ParseCard(s)
	if err != nil {
		return err
	}
	*c = card
	return nil
}

// NewDeck returns the full 17 card deck in rank order, Null last.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, rank := range Ranks {
		for range CopiesPerRank {
			deck = append(deck, rank)
		}
	}
	return append(deck, Null)
}

// Hand is an unordered multiset of cards. Methods never modify the receiver.
type Hand []Card

func (h Hand) Count(c Card) int {
	n := 0
	for _, card := range h {
		if card == c {
			n++
		}
	}
	return n
}

func (h Hand) Contains(c Card) bool {
	return h.Count(c) > 0
}

// counts is indexed by card value.
func (h Hand) counts() [Four + 1]int {
	var counts [Four + 1]int
	for _, card := range h {
		if card.Valid() {
			counts[card]++
		}
	}
	return counts
}

// FourOfAKind reports the rank the hand holds every copy of. Null never counts.
func (h Hand) FourOfAKind() (Card, bool) {
	counts := h.counts()
	for _, rank := range Ranks {
		if counts[rank] == CopiesPerRank {
			return rank, true
		}
	}
	return Null, false
}

// without returns a copy of the hand minus one instance of c.
func (h Hand) without(c Card) Hand {
	out := make(Hand, 0, len(h))
	removed := false
	for _, card := range h {
		if !removed && card == c {
			removed = true
			continue
		}
		out = append(out, card)
	}
	return out
}

func (h Hand) clone() Hand {
	out := make(Hand, len(h), len(h)+1)
	copy(out, h)
	return out
}
