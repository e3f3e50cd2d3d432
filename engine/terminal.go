package engine

// endRound is called when player p empties their hand. Remaining hands are
// scored, every player who went down this round moves to their next phase,
// and either the game ends or a new round is dealt.
func (g *Game) endRound(p int) {
	g.WentOut = p
	g.Players[g.CurrentPlayer].DrewCard = false
	g.scoreRound()

	finished := false
	for i := range g.Players {
		ps := &g.Players[i]
		if ps.CompletedPhase {
			ps.PhaseIndex++
		}
		if ps.PhaseIndex >= len(g.Phases) {
			finished = true
		}
	}

	g.TurnNumber++
	if finished {
		g.Over = true
		g.Winner = g.pickWinner(p)
		return
	}

	g.Round++
	g.Deal()
}

// pickWinner chooses among the players who finished every phase. The player
// who went out wins if they are among them; otherwise the lowest score wins,
// with ties going to the earliest seat.
func (g *Game) pickWinner(wentOut int) int {
	last := len(g.Phases)
	if g.Players[wentOut].PhaseIndex >= last {
		return wentOut
	}
	best := -1
	for i, ps := range g.Players {
		if ps.PhaseIndex < last {
			continue
		}
		if best < 0 || ps.Score < g.Players[best].Score {
			best = i
		}
	}
	return best
}
