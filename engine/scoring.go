package engine

// CardPoints returns the penalty value of a single card.
func (t ScoringTable) CardPoints(c Card) int {
	switch {
	case c.IsWild():
		return t.Wild
	case c.IsSkip():
		return t.Skip
	case c.Rank >= 10:
		return t.High
	}
	return t.Low
}

// HandPenalty sums the penalty value of every card in hand.
func (t ScoringTable) HandPenalty(hand []Card) int {
	total := 0
	for _, c := range hand {
		total += t.CardPoints(c)
	}
	return total
}

// scoreRound adds each player's remaining hand to their running score.
func (g *Game) scoreRound() {
	for i := range g.Players {
		g.Players[i].Score += g.Rules.Scoring.HandPenalty(g.Players[i].Hand)
	}
}

// Standing is a player's position in the overall game.
type Standing struct {
	Player     int
	PhaseIndex int
	Score      int
}

// Standings ranks players by phase progress (most first), then by score
// (lowest first), then by seat.
func (g *Game) Standings() []Standing {
	out := make([]Standing, len(g.Players))
	for i, p := range g.Players {
		out[i] = Standing{Player: i, PhaseIndex: p.PhaseIndex, Score: p.Score}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ahead(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (s Standing) ahead(o Standing) bool {
	if s.PhaseIndex != o.PhaseIndex {
		return s.PhaseIndex > o.PhaseIndex
	}
	if s.Score != o.Score {
		return s.Score < o.Score
	}
	return s.Player < o.Player
}
