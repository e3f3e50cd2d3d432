package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Color of a card. WILD and SKIP cards carry their own pseudo-colors.
type Color uint8

const (
	ColorRed Color = iota
	ColorBlue
	ColorGreen
	ColorYellow
	ColorWild
	ColorSkip
)

// NumColors is the number of natural colors in a deck.
const NumColors = 4

var colorLetters = [...]string{"R", "B", "G", "Y", "W", "S"}

// String returns the single-letter code used on the wire ("R", "B", ...).
func (c Color) String() string {
	if int(c) < len(colorLetters) {
		return colorLetters[c]
	}
	return "?"
}

// ParseColor is the inverse of Color.String.
func ParseColor(s string) (Color, error) {
	for i, l := range colorLetters {
		if strings.EqualFold(s, l) {
			return Color(i), nil
		}
	}
	return 0, fmt.Errorf("unknown color %q", s)
}

// Rank of a card. Natural ranks are 1..MaxRank.
type Rank uint8

const (
	MaxRank = 12

	RankWild Rank = 0xFE
	RankSkip Rank = 0xFF
)

// String returns "1".."12", "W" or "S".
func (r Rank) String() string {
	switch r {
	case RankWild:
		return "W"
	case RankSkip:
		return "S"
	}
	return strconv.Itoa(int(r))
}

// ParseRank is the inverse of Rank.String.
func ParseRank(s string) (Rank, error) {
	switch strings.ToUpper(s) {
	case "W":
		return RankWild, nil
	case "S":
		return RankSkip, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > MaxRank {
		return 0, fmt.Errorf("unknown rank %q", s)
	}
	return Rank(n), nil
}

// Card is an immutable card value. ID is unique within one deck and is how
// clients refer to a card.
type Card struct {
	ID    int
	Color Color
	Rank  Rank
}

// NewNatural returns a natural card with the given color and rank.
func NewNatural(id int, color Color, rank int) Card {
	return Card{ID: id, Color: color, Rank: Rank(rank)}
}

// NewWild returns a WILD card.
func NewWild(id int) Card { return Card{ID: id, Color: ColorWild, Rank: RankWild} }

// NewSkip returns a SKIP card.
func NewSkip(id int) Card { return Card{ID: id, Color: ColorSkip, Rank: RankSkip} }

func (c Card) IsWild() bool    { return c.Rank == RankWild }
func (c Card) IsSkip() bool    { return c.Rank == RankSkip }
func (c Card) IsNatural() bool { return c.Rank >= 1 && c.Rank <= MaxRank }

// String renders the card in short notation: "R7", "B12", "W", "S".
func (c Card) String() string {
	switch {
	case c.IsWild():
		return "W"
	case c.IsSkip():
		return "S"
	}
	return c.Color.String() + c.Rank.String()
}

// ParseCard parses short notation produced by Card.String. The returned card
// has ID 0.
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	switch s {
	case "W":
		return NewWild(0), nil
	case "S":
		return NewSkip(0), nil
	case "":
		return Card{}, fmt.Errorf("empty card")
	}
	color, err := ParseColor(s[:1])
	if err != nil || color >= NumColors {
		return Card{}, fmt.Errorf("bad card %q", s)
	}
	rank, err := ParseRank(s[1:])
	if err != nil || rank == RankWild || rank == RankSkip {
		return Card{}, fmt.Errorf("bad card %q", s)
	}
	return Card{Color: color, Rank: rank}, nil
}

// ParseCards parses a whitespace separated list of cards and numbers them
// from 1 in order.
func ParseCards(s string) ([]Card, error) {
	fields := strings.Fields(s)
	out := make([]Card, 0, len(fields))
	for i, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			return nil, err
		}
		c.ID = i + 1
		out = append(out, c)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Hand helpers
// ---------------------------------------------------------------------------

// indexOfCard returns the position of the card with the given ID, or -1.
func indexOfCard(cards []Card, id int) int {
	for i, c := range cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// takeCards removes the cards with the given IDs from hand and returns them in
// the requested order. The hand is left untouched on error.
func takeCards(hand []Card, ids []int) (rest []Card, taken []Card, err error) {
	seen := make(map[int]bool, len(ids))
	taken = make([]Card, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			return hand, nil, ErrDuplicateCard.Withf("card %d listed twice", id)
		}
		seen[id] = true
		i := indexOfCard(hand, id)
		if i < 0 {
			return hand, nil, ErrCardNotInHand.Withf("card %d is not in hand", id)
		}
		taken = append(taken, hand[i])
	}
	rest = make([]Card, 0, len(hand)-len(ids))
	for _, c := range hand {
		if !seen[c.ID] {
			rest = append(rest, c)
		}
	}
	return rest, taken, nil
}

// Wild and skip sort after every natural under both keys.
func colorKey(c Card) (int, int) { return int(c.Color), int(c.Rank) }
func rankKey(c Card) (int, int)  { return int(c.Rank), int(c.Color) }

// SortByColor orders cards by color then rank. The sort is stable so cards
// that compare equal keep the order the player gave them.
func SortByColor(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		a1, a2 := colorKey(cards[i])
		b1, b2 := colorKey(cards[j])
		if a1 != b1 {
			return a1 < b1
		}
		return a2 < b2
	})
}

// SortByRank orders cards by rank then color, with WILD and SKIP at the end.
func SortByRank(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		a1, a2 := rankKey(cards[i])
		b1, b2 := rankKey(cards[j])
		if a1 != b1 {
			return a1 < b1
		}
		return a2 < b2
	})
}

// FormatCards renders a card slice as space separated short notation.
func FormatCards(cards []Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
