package engine

import (
	"testing"
)

func hasKind(kinds []ActionKind, k ActionKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// TestLegalActionsStartOfTurn verifies only draws and sorts are offered.
func TestLegalActionsStartOfTurn(t *testing.T) {
	g := newDealtGame(t, 2)
	rigDiscardTop(t, g, "R3")
	got := g.LegalActions(0)
	for _, k := range []ActionKind{ActionDrawDeck, ActionDrawDiscard, ActionSortByColor, ActionSortByRank} {
		if !hasKind(got, k) {
			t.Errorf("missing %s in %v", k, got)
		}
	}
	for _, k := range []ActionKind{ActionDiscard, ActionCompletePhase, ActionPutDown, ActionSkipPlayer} {
		if hasKind(got, k) {
			t.Errorf("unexpected %s before drawing", k)
		}
	}
	if g.Stage() != StageDrawing {
		t.Errorf("stage = %s, want drawing", g.Stage())
	}
}

// TestLegalActionsOtherPlayer verifies a waiting player can only sort.
func TestLegalActionsOtherPlayer(t *testing.T) {
	g := newDealtGame(t, 2)
	got := g.LegalActions(1)
	if len(got) != 2 || !hasKind(got, ActionSortByRank) {
		t.Errorf("waiting player actions = %v", got)
	}
}

// TestLegalActionsAfterDraw verifies discard, skip and phase actions.
func TestLegalActionsAfterDraw(t *testing.T) {
	g := newGameWithPhases(t, 2, "S3")
	mustApply(t, g, 0, Action{Kind: ActionDrawDeck})
	hand := rigHand(t, g, 0, "R4 B4 G4 S R9")

	got := g.LegalActions(0)
	for _, k := range []ActionKind{ActionDiscard, ActionSkipPlayer, ActionCompletePhase} {
		if !hasKind(got, k) {
			t.Errorf("missing %s in %v", k, got)
		}
	}
	if hasKind(got, ActionDrawDeck) || hasKind(got, ActionPutDown) {
		t.Errorf("unexpected draw or put_down in %v", got)
	}

	mustApply(t, g, 0, Action{Kind: ActionCompletePhase, Cards: ids(hand[:3]...)})
	got = g.LegalActions(0)
	if hasKind(got, ActionCompletePhase) || !hasKind(got, ActionPutDown) {
		t.Errorf("after going down: %v", got)
	}
}

// TestLegalActionsFinished verifies a finished game only allows sorting.
func TestLegalActionsFinished(t *testing.T) {
	g := newDealtGame(t, 2)
	g.Over = true
	g.Winner = 0
	if got := g.LegalActions(0); len(got) != 2 {
		t.Errorf("finished game actions = %v", got)
	}
	if g.Stage() != StageFinished {
		t.Errorf("stage = %s", g.Stage())
	}
	wantErr(t, g.Apply(0, Action{Kind: ActionDrawDeck}), ErrGameFinished)
}
