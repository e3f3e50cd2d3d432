package engine

import "time"

// ScoringTable holds the penalty points a card left in hand is worth at the
// end of a round.
type ScoringTable struct {
	Low  int // ranks 1..9
	High int // ranks 10..MaxRank
	Skip int
	Wild int
}

// HouseRules holds configurable game rule settings.
type HouseRules struct {
	HandSize      int
	CopiesPerCard int // copies of every (color, rank) pair
	NumWilds      int
	NumSkips      int
	MinPlayers    int
	MaxPlayers    int
	Scoring       ScoringTable
	TurnLimit     time.Duration // 0 disables the turn clock

	// TimeoutDiscardsDrawn makes a timed-out player who had not drawn draw
	// and then immediately discard, instead of keeping the drawn card.
	TimeoutDiscardsDrawn bool
}

// DefaultHouseRules returns the standard rules: a 108 card deck, ten card
// hands and a two minute turn clock.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		HandSize:      10,
		CopiesPerCard: 2,
		NumWilds:      8,
		NumSkips:      4,
		MinPlayers:    2,
		MaxPlayers:    6,
		Scoring: ScoringTable{
			Low:  5,
			High: 10,
			Skip: 15,
			Wild: 25,
		},
		TurnLimit: 2 * time.Minute,
	}
}

// DeckSize is the number of cards in a full deck under these rules.
func (r HouseRules) DeckSize() int {
	return NumColors*MaxRank*r.CopiesPerCard + r.NumWilds + r.NumSkips
}

// BuildDeck returns an unshuffled deck with IDs numbered from 1.
func (r HouseRules) BuildDeck() []Card {
	deck := make([]Card, 0, r.DeckSize())
	id := 1
	for copyN := 0; copyN < r.CopiesPerCard; copyN++ {
		for color := Color(0); color < NumColors; color++ {
			for rank := 1; rank <= MaxRank; rank++ {
				deck = append(deck, NewNatural(id, color, rank))
				id++
			}
		}
	}
	for i := 0; i < r.NumWilds; i++ {
		deck = append(deck, NewWild(id))
		id++
	}
	for i := 0; i < r.NumSkips; i++ {
		deck = append(deck, NewSkip(id))
		id++
	}
	return deck
}

// validate checks that a game can be dealt for n players.
func (r HouseRules) validate(n int) error {
	if n < max(r.MinPlayers, 2) {
		return ErrNotEnoughPlayers.Withf("need at least %d players, have %d", max(r.MinPlayers, 2), n)
	}
	if r.MaxPlayers > 0 && n > r.MaxPlayers {
		return ErrGameFull.Withf("at most %d players allowed", r.MaxPlayers)
	}
	if r.HandSize < 1 {
		return ErrInvariant.Withf("hand size must be positive")
	}
	if n*r.HandSize+2 > r.DeckSize() {
		return ErrInvariant.Withf("deck of %d cannot deal %d hands of %d", r.DeckSize(), n, r.HandSize)
	}
	return nil
}
