// Package engine implements the Phase Ten card game rules.
//
// The engine is a plain value-oriented state machine: players are addressed
// by index, every operation either applies completely or returns a typed
// *Error and leaves the state untouched, and nothing here blocks or touches
// the network. Concurrency, identity and timing are handled by the service
// layer that owns a Game.
package engine

// PlayerState holds one player's hand and progress.
type PlayerState struct {
	Hand           []Card
	PhaseIndex     int  // index into Game.Phases of the phase being worked on
	CompletedPhase bool // went down this round
	DrewCard       bool // drew during the current turn
	IsBot          bool
	PendingSkips   []int // players who skipped this one, oldest first
	Score          int   // accumulated penalty points
}

// PhaseDeck is a group of cards laid down on the table. Cards can only be
// added at either end.
type PhaseDeck struct {
	ID    int
	Owner int
	Group Group
	Cards []Card
}

// LastAction records the most recent applied action for display purposes.
type LastAction struct {
	Player int
	Kind   ActionKind
	Card   Card
	Target int
	Forced bool
}

// Game holds the complete state of one Phase Ten game.
type Game struct {
	Players       []PlayerState
	Phases        []Phase
	DrawPile      []Card // top of the pile is the last element
	DiscardPile   []Card // top of the pile is the last element
	PhaseDecks    []PhaseDeck
	CurrentPlayer int
	Round         int
	TurnNumber    int // increments on every turn advance, across rounds
	Over          bool
	Winner        int // -1 until Over
	WentOut       int // player who emptied their hand to end the last round, -1 if none
	LastAction    LastAction
	Rules         HouseRules
	RNG           uint64

	nextDeckID int
}

// ---------------------------------------------------------------------------
// xorshift64 RNG
// ---------------------------------------------------------------------------

func (g *Game) nextRand() uint64 {
	x := g.RNG
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	g.RNG = x
	return x
}

// randN returns a random number in [0, n).
func (g *Game) randN(n int) int {
	return int(g.nextRand() % uint64(n))
}

func (g *Game) shuffle(cards []Card) {
	for i := len(cards) - 1; i > 0; i-- {
		j := g.randN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// ---------------------------------------------------------------------------
// NewGame and Deal
// ---------------------------------------------------------------------------

// NewGame creates a game for numPlayers seated in turn order. The phase list
// is copied. Call Deal to start the first round.
func NewGame(seed uint64, rules HouseRules, phases []Phase, numPlayers int) (*Game, error) {
	if err := rules.validate(numPlayers); err != nil {
		return nil, err
	}
	if len(phases) == 0 {
		return nil, ErrInvalidPhase.Withf("phase list is empty")
	}
	if err := CheckPhasesFit(phases, rules.HandSize); err != nil {
		return nil, err
	}
	g := &Game{
		Players: make([]PlayerState, numPlayers),
		Phases:  append([]Phase(nil), phases...),
		Winner:  -1,
		WentOut: -1,
		Rules:   rules,
		RNG:     seed,
	}
	if g.RNG == 0 {
		g.RNG = 1 // xorshift can't start at 0
	}
	return g, nil
}

// Deal starts the current round: it rebuilds and shuffles the deck, deals
// HandSize cards to every player, flips the top card onto the discard pile and
// seats the opening player. The opener rotates by one seat every round.
func (g *Game) Deal() {
	deck := g.Rules.BuildDeck()
	g.shuffle(deck)

	n := len(g.Players)
	for p := range g.Players {
		ps := &g.Players[p]
		ps.Hand = make([]Card, 0, g.Rules.HandSize+1)
		ps.CompletedPhase = false
		ps.DrewCard = false
		ps.PendingSkips = nil
	}
	for c := 0; c < g.Rules.HandSize; c++ {
		for p := 0; p < n; p++ {
			top := deck[len(deck)-1]
			deck = deck[:len(deck)-1]
			g.Players[p].Hand = append(g.Players[p].Hand, top)
		}
	}

	g.DiscardPile = []Card{deck[len(deck)-1]}
	g.DrawPile = deck[:len(deck)-1]
	g.PhaseDecks = nil
	g.CurrentPlayer = g.Round % n
}

// ---------------------------------------------------------------------------
// Query methods
// ---------------------------------------------------------------------------

// NumPlayers returns the number of seats.
func (g *Game) NumPlayers() int { return len(g.Players) }

// IsTerminal returns true when the game is over.
func (g *Game) IsTerminal() bool { return g.Over }

// DiscardTop returns the top of the discard pile.
func (g *Game) DiscardTop() (Card, bool) {
	if len(g.DiscardPile) == 0 {
		return Card{}, false
	}
	return g.DiscardPile[len(g.DiscardPile)-1], true
}

// CurrentPhase returns the phase player p is working on. It is nil once p has
// finished every phase.
func (g *Game) CurrentPhase(p int) Phase {
	idx := g.Players[p].PhaseIndex
	if idx >= len(g.Phases) {
		return nil
	}
	return g.Phases[idx]
}

// NextPlayer returns the seat after p, ignoring skips.
func (g *Game) NextPlayer(p int) int { return (p + 1) % len(g.Players) }

// FindDeck returns the index of the phase deck with the given ID, or -1.
func (g *Game) FindDeck(id int) int {
	for i := range g.PhaseDecks {
		if g.PhaseDecks[i].ID == id {
			return i
		}
	}
	return -1
}

// CardCount returns the number of cards in every location combined.
func (g *Game) CardCount() int {
	n := len(g.DrawPile) + len(g.DiscardPile)
	for _, p := range g.Players {
		n += len(p.Hand)
	}
	for _, d := range g.PhaseDecks {
		n += len(d.Cards)
	}
	return n
}

// Verify checks the structural invariants of the game: every card of the
// deck is in exactly one place, the current player is a valid seat while the
// game runs, phase progress is in range and a finished game has a winner.
func (g *Game) Verify() error {
	want := g.Rules.DeckSize()
	seen := make(map[int]bool, want)
	check := func(cards []Card) error {
		for _, c := range cards {
			if seen[c.ID] {
				return ErrInvariant.Withf("card %d (%s) appears twice", c.ID, c)
			}
			seen[c.ID] = true
		}
		return nil
	}
	if err := check(g.DrawPile); err != nil {
		return err
	}
	if err := check(g.DiscardPile); err != nil {
		return err
	}
	for i := range g.Players {
		if err := check(g.Players[i].Hand); err != nil {
			return err
		}
	}
	for i := range g.PhaseDecks {
		if err := check(g.PhaseDecks[i].Cards); err != nil {
			return err
		}
	}
	if len(seen) != want {
		return ErrInvariant.Withf("card conservation broken: have %d cards, want %d", len(seen), want)
	}
	if g.Over {
		if g.Winner < 0 || g.Winner >= len(g.Players) {
			return ErrInvariant.Withf("finished game has no winner")
		}
	} else if g.CurrentPlayer < 0 || g.CurrentPlayer >= len(g.Players) {
		return ErrInvariant.Withf("current player %d out of range", g.CurrentPlayer)
	}
	for i, p := range g.Players {
		if p.PhaseIndex < 0 || p.PhaseIndex > len(g.Phases) {
			return ErrInvariant.Withf("player %d phase index %d out of range", i, p.PhaseIndex)
		}
		if p.PhaseIndex == len(g.Phases) && !g.Over {
			return ErrInvariant.Withf("player %d finished every phase but the game continues", i)
		}
	}
	return nil
}
