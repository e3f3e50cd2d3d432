package engine

import (
	"sort"
	"strings"
)

// Direction selects which end of a phase deck new cards are added to.
type Direction uint8

const (
	DirEnd Direction = iota
	DirStart
)

func (d Direction) String() string {
	if d == DirStart {
		return "start"
	}
	return "end"
}

// ParseDirection accepts "start" or "end".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "start", "front", "begin":
		return DirStart, nil
	case "end", "back", "":
		return DirEnd, nil
	}
	return 0, ErrBadDirection.Withf("unknown direction %q", s)
}

// ---------------------------------------------------------------------------
// Single group checks
// ---------------------------------------------------------------------------

// splitCards separates naturals from wilds. ok is false when a SKIP is
// present, since a SKIP can never be part of a group.
func splitCards(cards []Card) (naturals []Card, wilds int, ok bool) {
	naturals = make([]Card, 0, len(cards))
	for _, c := range cards {
		switch {
		case c.IsSkip():
			return nil, 0, false
		case c.IsWild():
			wilds++
		default:
			naturals = append(naturals, c)
		}
	}
	return naturals, wilds, true
}

func sameRank(cards []Card) bool {
	for _, c := range cards[1:] {
		if c.Rank != cards[0].Rank {
			return false
		}
	}
	return true
}

func sameColor(cards []Card) bool {
	for _, c := range cards[1:] {
		if c.Color != cards[0].Color {
			return false
		}
	}
	return true
}

// runFits reports whether the naturals plus wilds can be laid out as size
// consecutive ranks inside 1..MaxRank. Naturals must outnumber wilds, which
// also keeps wilds to at most size-2 slots for any run of three or more.
// On long runs this is tighter than size-2 alone: a run of seven with two
// naturals and five wilds is refused, as is [5 W W 8] for a run of four.
func runFits(naturals []Card, wilds, size int) bool {
	if size > MaxRank || wilds >= len(naturals) {
		return false
	}
	seen := make(map[Rank]bool, len(naturals))
	lo, hi := Rank(MaxRank), Rank(1)
	for _, c := range naturals {
		if seen[c.Rank] {
			return false
		}
		seen[c.Rank] = true
		lo = min(lo, c.Rank)
		hi = max(hi, c.Rank)
	}
	return int(hi-lo)+1 <= size
}

// Accepts reports whether cards form exactly this group. A group must hold at
// least one natural card and never a SKIP.
func (g Group) Accepts(cards []Card) bool {
	if len(cards) != g.Size {
		return false
	}
	naturals, wilds, ok := splitCards(cards)
	if !ok || len(naturals) == 0 {
		return false
	}
	switch g.Kind {
	case GroupSet:
		return sameRank(naturals)
	case GroupColor:
		return sameColor(naturals)
	case GroupRun:
		return runFits(naturals, wilds, g.Size)
	case GroupColorRun:
		return sameColor(naturals) && runFits(naturals, wilds, g.Size)
	}
	return false
}

// Arrange returns cards in the order they are stored in a phase deck. Runs are
// laid out in ascending rank with wilds filling the gaps, starting at the
// lowest natural unless that would run past MaxRank. Other groups keep their
// given order with wilds moved to the end.
func Arrange(g Group, cards []Card) []Card {
	naturals, _, _ := splitCards(cards)
	wilds := make([]Card, 0, len(cards)-len(naturals))
	for _, c := range cards {
		if c.IsWild() {
			wilds = append(wilds, c)
		}
	}
	if !g.Kind.IsRun() || len(naturals) == 0 {
		return append(naturals, wilds...)
	}
	sort.SliceStable(naturals, func(i, j int) bool { return naturals[i].Rank < naturals[j].Rank })
	start := min(int(naturals[0].Rank), MaxRank-len(cards)+1)
	out := make([]Card, 0, len(cards))
	ni, wi := 0, 0
	for r := start; r < start+len(cards); r++ {
		if ni < len(naturals) && int(naturals[ni].Rank) == r {
			out = append(out, naturals[ni])
			ni++
			continue
		}
		out = append(out, wilds[wi])
		wi++
	}
	return out
}

// runStart returns the rank represented by the first card of an arranged run.
func runStart(deck []Card) int {
	for i, c := range deck {
		if c.IsNatural() {
			return int(c.Rank) - i
		}
	}
	return 1
}

// anchor returns the first natural card of a deck.
func anchor(deck []Card) (Card, bool) {
	for _, c := range deck {
		if c.IsNatural() {
			return c, true
		}
	}
	return Card{}, false
}

// Extend returns the deck with add placed at the chosen end, or false if the
// result would break the group. For runs the cards are taken in the order
// given and must continue the sequence outward from the deck.
func Extend(g Group, deck []Card, add []Card, dir Direction) ([]Card, bool) {
	if len(add) == 0 {
		return nil, false
	}
	base, ok := anchor(deck)
	if !ok {
		return nil, false
	}
	for _, c := range add {
		if c.IsSkip() {
			return nil, false
		}
		if !c.IsNatural() {
			continue
		}
		switch g.Kind {
		case GroupSet:
			if c.Rank != base.Rank {
				return nil, false
			}
		case GroupColor, GroupColorRun:
			if c.Color != base.Color {
				return nil, false
			}
		}
	}

	out := make([]Card, 0, len(deck)+len(add))
	if !g.Kind.IsRun() {
		if dir == DirStart {
			out = append(append(out, add...), deck...)
		} else {
			out = append(append(out, deck...), add...)
		}
		return out, true
	}

	start := runStart(deck)
	first := start + len(deck)
	if dir == DirStart {
		first = start - len(add)
	}
	if first < 1 || first+len(add)-1 > MaxRank {
		return nil, false
	}
	for j, c := range add {
		if c.IsNatural() && int(c.Rank) != first+j {
			return nil, false
		}
	}
	if dir == DirStart {
		out = append(append(out, add...), deck...)
	} else {
		out = append(append(out, deck...), add...)
	}
	return out, true
}

// ---------------------------------------------------------------------------
// Phase checks
// ---------------------------------------------------------------------------

// Validate reports whether cards can be split, with nothing left over, into
// groups that each satisfy one group of the phase. It depends only on its
// arguments.
func Validate(cards []Card, phase Phase) bool {
	_, ok := Partition(cards, phase)
	return ok
}

// Partition finds an exact split of cards into the phase's groups. The result
// holds one arranged slice per group, in phase order.
func Partition(cards []Card, phase Phase) ([][]Card, bool) {
	if len(phase) == 0 || len(cards) != phase.Size() {
		return nil, false
	}
	return search(cards, phase, true)
}

// FindPhase looks for any subset of hand that completes the phase. Cards not
// used are ignored.
func FindPhase(hand []Card, phase Phase) ([][]Card, bool) {
	if len(phase) == 0 || len(hand) < phase.Size() {
		return nil, false
	}
	return search(hand, phase, false)
}

// search assigns cards to groups one group at a time, trying every
// combination for the current group and backtracking on failure.
func search(cards []Card, phase Phase, exact bool) ([][]Card, bool) {
	if len(phase) == 0 {
		if exact && len(cards) > 0 {
			return nil, false
		}
		return [][]Card{}, true
	}
	g := phase[0]
	if len(cards) < g.Size {
		return nil, false
	}
	var result [][]Card
	found := false
	combinations(len(cards), g.Size, func(idx []int) bool {
		pick := make([]Card, 0, g.Size)
		rest := make([]Card, 0, len(cards)-g.Size)
		k := 0
		for i, c := range cards {
			if k < len(idx) && idx[k] == i {
				pick = append(pick, c)
				k++
				continue
			}
			rest = append(rest, c)
		}
		if !g.Accepts(pick) {
			return false
		}
		tail, ok := search(rest, phase[1:], exact)
		if !ok {
			return false
		}
		result = append([][]Card{Arrange(g, pick)}, tail...)
		found = true
		return true
	})
	return result, found
}

// combinations calls fn with every k-subset of 0..n-1 in lexicographic order
// until fn returns true.
func combinations(n, k int, fn func(idx []int) bool) {
	if k > n || k <= 0 {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if fn(idx) {
			return
		}
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
