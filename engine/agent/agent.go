// Package agent implements the decision procedure for bot players.
//
// A Brain inspects the game from one seat and returns the next action that
// seat should take. The caller applies it and asks again until the turn has
// passed, so every bot move goes through the same validation as a human's.
package agent

import (
	engine "github.com/phaseten/phaseten/engine"
)

// Brain is the interface every bot strategy implements.
type Brain interface {
	// NextAction returns the next action for seat, or false when the seat has
	// nothing to do (not its turn, or the game is over).
	NextAction(g *engine.Game, seat int) (engine.Action, bool)
}

// Heuristic is the default bot: deterministic, greedy and cheap.
//
// Draw: take the discard when it is WILD or more useful than the least
// useful card in hand, never a SKIP. Otherwise draw from the deck.
// Play: go down as soon as the current phase can be made, then lay off
// single cards wherever they fit.
// Discard: SKIPs first (bots never target a player), otherwise the least
// useful card, breaking ties by the highest rank.
type Heuristic struct{}

var _ Brain = Heuristic{}

// NextAction implements Brain.
func (h Heuristic) NextAction(g *engine.Game, seat int) (engine.Action, bool) {
	if g.Over || seat != g.CurrentPlayer {
		return engine.Action{}, false
	}
	ps := &g.Players[seat]
	phase := g.CurrentPhase(seat)

	if !ps.DrewCard {
		return h.chooseDraw(g, seat, phase)
	}

	if !ps.CompletedPhase && phase != nil {
		if groups, ok := engine.FindPhase(ps.Hand, phase); ok && phase.Size() < len(ps.Hand) {
			ids := make([]int, 0, phase.Size())
			for _, grp := range groups {
				for _, c := range grp {
					ids = append(ids, c.ID)
				}
			}
			return engine.Action{Kind: engine.ActionCompletePhase, Cards: ids}, true
		}
	}

	if ps.CompletedPhase && len(ps.Hand) > 1 {
		if a, ok := layOff(g, ps.Hand); ok {
			return a, true
		}
	}

	return engine.Action{Kind: engine.ActionDiscard, CardID: chooseDiscard(ps.Hand, phase).ID}, true
}

func (h Heuristic) chooseDraw(g *engine.Game, seat int, phase engine.Phase) (engine.Action, bool) {
	hand := g.Players[seat].Hand
	if top, ok := g.DiscardTop(); ok && g.IsLegal(seat, engine.ActionDrawDiscard) {
		if top.IsWild() {
			return engine.Action{Kind: engine.ActionDrawDiscard}, true
		}
		if len(hand) > 0 {
			worst := chooseDiscard(hand, phase)
			if usefulness(top, hand, phase) > usefulness(worst, hand, phase) {
				return engine.Action{Kind: engine.ActionDrawDiscard}, true
			}
		}
	}
	if g.IsLegal(seat, engine.ActionDrawDeck) {
		return engine.Action{Kind: engine.ActionDrawDeck}, true
	}
	if g.IsLegal(seat, engine.ActionDrawDiscard) {
		return engine.Action{Kind: engine.ActionDrawDiscard}, true
	}
	return engine.Action{}, false
}

// layOff finds the first card in hand that extends any phase deck.
func layOff(g *engine.Game, hand []engine.Card) (engine.Action, bool) {
	for _, c := range hand {
		if c.IsSkip() {
			continue
		}
		for _, d := range g.PhaseDecks {
			for _, dir := range []engine.Direction{engine.DirEnd, engine.DirStart} {
				if _, ok := engine.Extend(d.Group, d.Cards, []engine.Card{c}, dir); ok {
					return engine.Action{
						Kind:      engine.ActionPutDown,
						DeckID:    d.ID,
						Direction: dir,
						Cards:     []int{c.ID},
					}, true
				}
			}
		}
	}
	return engine.Action{}, false
}

// chooseDiscard picks the card to throw away.
func chooseDiscard(hand []engine.Card, phase engine.Phase) engine.Card {
	for _, c := range hand {
		if c.IsSkip() {
			return c
		}
	}
	best := hand[0]
	bestScore := usefulness(best, hand, phase)
	for _, c := range hand[1:] {
		s := usefulness(c, hand, phase)
		if s < bestScore || s == bestScore && rankOf(c) > rankOf(best) {
			best, bestScore = c, s
		}
	}
	return best
}

func rankOf(c engine.Card) int {
	if c.IsNatural() {
		return int(c.Rank)
	}
	return 0
}

// usefulness scores how much c contributes toward phase given the rest of
// hand. Higher is better.
func usefulness(c engine.Card, hand []engine.Card, phase engine.Phase) int {
	switch {
	case c.IsWild():
		return 1000
	case c.IsSkip():
		return -1
	}
	score := 0
	for _, grp := range phase {
		for _, o := range hand {
			if o.ID == c.ID || !o.IsNatural() {
				continue
			}
			d := int(o.Rank) - int(c.Rank)
			if d < 0 {
				d = -d
			}
			switch grp.Kind {
			case engine.GroupSet:
				if d == 0 {
					score += 3
				}
			case engine.GroupColor:
				if o.Color == c.Color {
					score++
				}
			case engine.GroupRun:
				if d > 0 && d < grp.Size {
					score++
				}
			case engine.GroupColorRun:
				if o.Color == c.Color && d > 0 && d < grp.Size {
					score++
				}
			}
		}
	}
	return score
}
