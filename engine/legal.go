package engine

// TurnStage is the sub-state of the current turn.
type TurnStage uint8

const (
	StageDrawing TurnStage = iota
	StageDiscarding
	StageFinished
)

func (s TurnStage) String() string {
	switch s {
	case StageDrawing:
		return "drawing"
	case StageDiscarding:
		return "discarding"
	}
	return "finished"
}

// Stage returns where the current turn stands.
func (g *Game) Stage() TurnStage {
	if g.Over {
		return StageFinished
	}
	if g.Players[g.CurrentPlayer].DrewCard {
		return StageDiscarding
	}
	return StageDrawing
}

// LegalActions lists the action kinds player p may attempt right now. It is
// advisory: argument-dependent checks (which cards, which deck) still happen
// in Apply.
func (g *Game) LegalActions(p int) []ActionKind {
	out := []ActionKind{ActionSortByColor, ActionSortByRank}
	if g.Over || p != g.CurrentPlayer {
		return out
	}
	ps := &g.Players[p]
	if !ps.DrewCard {
		if len(g.DrawPile) > 0 || len(g.DiscardPile) > 1 {
			out = append(out, ActionDrawDeck)
		}
		if top, ok := g.DiscardTop(); ok && !top.IsSkip() {
			out = append(out, ActionDrawDiscard)
		}
		return out
	}
	if len(ps.Hand) > 1 {
		if !ps.CompletedPhase {
			out = append(out, ActionCompletePhase)
		} else if len(g.PhaseDecks) > 0 {
			out = append(out, ActionPutDown)
		}
	}
	out = append(out, ActionDiscard)
	for _, c := range ps.Hand {
		if c.IsSkip() {
			out = append(out, ActionSkipPlayer)
			break
		}
	}
	return out
}

// IsLegal reports whether kind appears in LegalActions(p).
func (g *Game) IsLegal(p int, kind ActionKind) bool {
	for _, k := range g.LegalActions(p) {
		if k == kind {
			return true
		}
	}
	return false
}
