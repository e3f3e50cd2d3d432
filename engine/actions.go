package engine

import "errors"

// ActionKind identifies a player action. The string values are the names
// used by clients.
type ActionKind string

const (
	ActionDrawDeck      ActionKind = "draw_deck"
	ActionDrawDiscard   ActionKind = "draw_discard"
	ActionDiscard       ActionKind = "discard"
	ActionSkipPlayer    ActionKind = "skip_player"
	ActionCompletePhase ActionKind = "complete_phase"
	ActionPutDown       ActionKind = "put_down"
	ActionSortByColor   ActionKind = "sort_by_color"
	ActionSortByRank    ActionKind = "sort_by_rank"
)

// Action is one request from a player. Only the fields relevant to Kind are
// read.
type Action struct {
	Kind      ActionKind
	CardID    int       // discard, skip_player
	Target    int       // skip_player: seat being skipped
	Cards     []int     // complete_phase, put_down
	DeckID    int       // put_down
	Direction Direction // put_down
}

// Apply applies an action for player p. On error the game is unchanged.
func (g *Game) Apply(p int, a Action) error {
	if p < 0 || p >= len(g.Players) {
		return ErrPlayerNotFound.Withf("no player at seat %d", p)
	}

	// Reordering a hand is always allowed.
	switch a.Kind {
	case ActionSortByColor:
		SortByColor(g.Players[p].Hand)
		return nil
	case ActionSortByRank:
		SortByRank(g.Players[p].Hand)
		return nil
	}

	if g.Over {
		return ErrGameFinished
	}

	switch a.Kind {
	case ActionDrawDeck:
		return g.drawDeck(p)
	case ActionDrawDiscard:
		return g.drawDiscard(p)
	case ActionDiscard:
		return g.discard(p, a.CardID)
	case ActionSkipPlayer:
		return g.skipPlayer(p, a.CardID, a.Target)
	case ActionCompletePhase:
		return g.completePhase(p, a.Cards)
	case ActionPutDown:
		return g.putDown(p, a.DeckID, a.Direction, a.Cards)
	}
	return ErrUnknownAction.Withf("unknown action %q", a.Kind)
}

func (g *Game) requireTurn(p int) error {
	if p != g.CurrentPlayer {
		return ErrNotYourTurn
	}
	return nil
}

func (g *Game) requireDrawn(p int) error {
	if err := g.requireTurn(p); err != nil {
		return err
	}
	if !g.Players[p].DrewCard {
		return ErrMustDrawFirst
	}
	return nil
}

func (g *Game) requireDrawing(p int) error {
	if err := g.requireTurn(p); err != nil {
		return err
	}
	if g.Players[p].DrewCard {
		return ErrAlreadyDrew
	}
	return nil
}

// refillDrawPile moves everything but the top discard back into the draw pile
// and shuffles it.
func (g *Game) refillDrawPile() error {
	if len(g.DiscardPile) <= 1 {
		return ErrDrawPileEmpty
	}
	top := g.DiscardPile[len(g.DiscardPile)-1]
	g.DrawPile = append(g.DrawPile, g.DiscardPile[:len(g.DiscardPile)-1]...)
	g.DiscardPile = []Card{top}
	g.shuffle(g.DrawPile)
	return nil
}

// drawDeck takes the top card of the draw pile, refilling it from the discard
// pile when it is empty.
func (g *Game) drawDeck(p int) error {
	if err := g.requireDrawing(p); err != nil {
		return err
	}
	if len(g.DrawPile) == 0 {
		if err := g.refillDrawPile(); err != nil {
			return err
		}
	}
	card := g.DrawPile[len(g.DrawPile)-1]
	g.DrawPile = g.DrawPile[:len(g.DrawPile)-1]
	g.Players[p].Hand = append(g.Players[p].Hand, card)
	g.Players[p].DrewCard = true
	g.LastAction = LastAction{Player: p, Kind: ActionDrawDeck, Card: card, Target: -1}
	return nil
}

// drawDiscard takes the top card of the discard pile.
func (g *Game) drawDiscard(p int) error {
	if err := g.requireDrawing(p); err != nil {
		return err
	}
	top, ok := g.DiscardTop()
	if !ok {
		return ErrDiscardEmpty
	}
	if top.IsSkip() {
		return ErrSkipOnDiscard
	}
	g.DiscardPile = g.DiscardPile[:len(g.DiscardPile)-1]
	g.Players[p].Hand = append(g.Players[p].Hand, top)
	g.Players[p].DrewCard = true
	g.LastAction = LastAction{Player: p, Kind: ActionDrawDiscard, Card: top, Target: -1}
	return nil
}

// completePhase lays down the player's current phase. The cards are split
// into one phase deck per group.
func (g *Game) completePhase(p int, ids []int) error {
	if err := g.requireDrawn(p); err != nil {
		return err
	}
	ps := &g.Players[p]
	if ps.CompletedPhase {
		return ErrPhaseAlreadyDone
	}
	phase := g.CurrentPhase(p)
	if phase == nil {
		return ErrPhaseAlreadyDone
	}
	if len(ids) == 0 {
		return ErrNoCards
	}
	rest, taken, err := takeCards(ps.Hand, ids)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return ErrMustKeepCard
	}
	groups, ok := Partition(taken, phase)
	if !ok {
		return ErrPhaseNotSatisfied.Withf("%s does not make %s", FormatCards(taken), phase)
	}
	for i, cards := range groups {
		g.nextDeckID++
		g.PhaseDecks = append(g.PhaseDecks, PhaseDeck{
			ID:    g.nextDeckID,
			Owner: p,
			Group: phase[i],
			Cards: cards,
		})
	}
	ps.Hand = rest
	ps.CompletedPhase = true
	g.LastAction = LastAction{Player: p, Kind: ActionCompletePhase, Target: -1}
	return nil
}

// putDown adds cards from the player's hand to any phase deck on the table.
func (g *Game) putDown(p, deckID int, dir Direction, ids []int) error {
	if err := g.requireDrawn(p); err != nil {
		return err
	}
	ps := &g.Players[p]
	if !ps.CompletedPhase {
		return ErrPhaseNotDone
	}
	di := g.FindDeck(deckID)
	if di < 0 {
		return ErrDeckNotFound.Withf("phase deck %d not found", deckID)
	}
	if len(ids) == 0 {
		return ErrNoCards
	}
	rest, taken, err := takeCards(ps.Hand, ids)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return ErrMustKeepCard
	}
	deck := &g.PhaseDecks[di]
	extended, ok := Extend(deck.Group, deck.Cards, taken, dir)
	if !ok {
		return ErrBadExtension.Withf("%s cannot go at the %s of %s", FormatCards(taken), dir, FormatCards(deck.Cards))
	}
	deck.Cards = extended
	ps.Hand = rest
	g.LastAction = LastAction{Player: p, Kind: ActionPutDown, Target: deck.Owner}
	return nil
}

// discard ends the turn. Emptying the hand ends the round.
func (g *Game) discard(p, cardID int) error {
	if err := g.requireDrawn(p); err != nil {
		return err
	}
	ps := &g.Players[p]
	i := indexOfCard(ps.Hand, cardID)
	if i < 0 {
		return ErrCardNotInHand.Withf("card %d is not in your hand", cardID)
	}
	card := ps.Hand[i]
	ps.Hand = append(ps.Hand[:i:i], ps.Hand[i+1:]...)
	g.DiscardPile = append(g.DiscardPile, card)
	g.LastAction = LastAction{Player: p, Kind: ActionDiscard, Card: card, Target: -1}
	g.finishTurn(p)
	return nil
}

// skipPlayer discards a SKIP and makes target lose their next turn. When
// cardID is 0 the first SKIP in hand is used.
func (g *Game) skipPlayer(p, cardID, target int) error {
	if err := g.requireDrawn(p); err != nil {
		return err
	}
	if target < 0 || target >= len(g.Players) || target == p {
		return ErrInvalidTarget
	}
	ps := &g.Players[p]
	i := -1
	if cardID == 0 {
		for j, c := range ps.Hand {
			if c.IsSkip() {
				i = j
				break
			}
		}
		if i < 0 {
			return ErrNotSkipCard.Withf("you have no SKIP card")
		}
	} else if i = indexOfCard(ps.Hand, cardID); i < 0 {
		return ErrCardNotInHand.Withf("card %d is not in your hand", cardID)
	}
	card := ps.Hand[i]
	if !card.IsSkip() {
		return ErrNotSkipCard
	}
	ps.Hand = append(ps.Hand[:i:i], ps.Hand[i+1:]...)
	g.DiscardPile = append(g.DiscardPile, card)
	g.Players[target].PendingSkips = append(g.Players[target].PendingSkips, p)
	g.LastAction = LastAction{Player: p, Kind: ActionSkipPlayer, Card: card, Target: target}
	g.finishTurn(p)
	return nil
}

// finishTurn runs after a discard: either the round ends or play passes on.
func (g *Game) finishTurn(p int) {
	if len(g.Players[p].Hand) == 0 {
		g.endRound(p)
		return
	}
	g.advanceTurn()
}

// advanceTurn passes play to the next seat, consuming one pending skip from
// every player passed over.
func (g *Game) advanceTurn() {
	g.Players[g.CurrentPlayer].DrewCard = false
	next := g.NextPlayer(g.CurrentPlayer)
	for len(g.Players[next].PendingSkips) > 0 {
		g.Players[next].PendingSkips = g.Players[next].PendingSkips[1:]
		next = g.NextPlayer(next)
	}
	g.CurrentPlayer = next
	g.TurnNumber++
}

// ForceTimeout resolves the current player's turn after their clock ran out.
// A player who had not drawn draws from the deck and keeps the card, unless
// Rules.TimeoutDiscardsDrawn is set. A player who had drawn (or is made to
// discard) gives up the first card in hand.
func (g *Game) ForceTimeout() error {
	if g.Over {
		return ErrGameFinished
	}
	p := g.CurrentPlayer
	if !g.Players[p].DrewCard {
		err := g.drawDeck(p)
		switch {
		case errors.Is(err, ErrDrawPileEmpty):
			// Nothing left to draw anywhere; the turn just passes.
			g.LastAction = LastAction{Player: p, Kind: ActionDrawDeck, Target: -1, Forced: true}
			g.advanceTurn()
			return nil
		case err != nil:
			return err
		}
		g.LastAction.Forced = true
		if !g.Rules.TimeoutDiscardsDrawn {
			g.advanceTurn()
			return nil
		}
	}
	if err := g.discard(p, g.Players[p].Hand[0].ID); err != nil {
		return err
	}
	g.LastAction.Forced = true
	return nil
}
