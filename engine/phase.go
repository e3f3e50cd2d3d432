package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// GroupKind is the shape a group of cards must take.
type GroupKind uint8

const (
	GroupSet      GroupKind = iota // n cards of one rank
	GroupRun                       // n consecutive ranks, any colors
	GroupColor                     // n cards of one color, any ranks
	GroupColorRun                  // n consecutive ranks of one color
)

var groupLetters = [...]string{"S", "R", "C", "X"}

func (k GroupKind) String() string {
	if int(k) < len(groupLetters) {
		return groupLetters[k]
	}
	return "?"
}

// IsRun reports whether the group is rank ordered.
func (k GroupKind) IsRun() bool { return k == GroupRun || k == GroupColorRun }

// Group is one requirement inside a phase, e.g. SET(3).
type Group struct {
	Kind GroupKind
	Size int
}

func (g Group) String() string { return g.Kind.String() + strconv.Itoa(g.Size) }

// Phase is an ordered list of groups that must all be laid down together.
type Phase []Group

// String renders the phase in the compact notation accepted by ParsePhase.
func (p Phase) String() string {
	parts := make([]string, len(p))
	for i, g := range p {
		parts[i] = g.String()
	}
	return strings.Join(parts, "+")
}

// Size is the total number of cards needed to complete the phase.
func (p Phase) Size() int {
	n := 0
	for _, g := range p {
		n += g.Size
	}
	return n
}

// maxGroupSize bounds a single group. Runs longer than MaxRank can never be
// built, and anything larger than a hand is meaningless.
const maxGroupSize = 24

// ParsePhase parses compact phase notation: groups joined by "+", each a kind
// letter followed by a size. S is a set, R a run, C a single color and X a
// single-color run. For example "S3+R4" or "C7".
func ParsePhase(s string) (Phase, error) {
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	if s == "" {
		return nil, ErrInvalidPhase.Withf("empty phase")
	}
	var out Phase
	for _, part := range strings.Split(s, "+") {
		if len(part) < 2 {
			return nil, ErrInvalidPhase.Withf("bad group %q in phase %q", part, s)
		}
		kind := -1
		for i, l := range groupLetters {
			if part[:1] == l {
				kind = i
			}
		}
		if kind < 0 {
			return nil, ErrInvalidPhase.Withf("unknown group kind %q in phase %q", part[:1], s)
		}
		n, err := strconv.Atoi(part[1:])
		if err != nil || n < 1 || n > maxGroupSize {
			return nil, ErrInvalidPhase.Withf("bad group size %q in phase %q", part[1:], s)
		}
		if GroupKind(kind).IsRun() && n > MaxRank {
			return nil, ErrInvalidPhase.Withf("run of %d cannot be built from %d ranks", n, MaxRank)
		}
		out = append(out, Group{Kind: GroupKind(kind), Size: n})
	}
	return out, nil
}

// ParsePhases parses a list of phases, reporting the index of the first bad
// entry.
func ParsePhases(list []string) ([]Phase, error) {
	if len(list) == 0 {
		return nil, ErrInvalidPhase.Withf("phase list is empty")
	}
	out := make([]Phase, 0, len(list))
	for i, s := range list {
		p, err := ParsePhase(s)
		if err != nil {
			return nil, fmt.Errorf("phase %d: %w", i+1, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// CheckPhasesFit rejects phases needing more cards than a dealt hand. A
// player holds one card over the hand size after drawing and must keep one
// to discard.
func CheckPhasesFit(phases []Phase, handSize int) error {
	for i, p := range phases {
		if p.Size() > handSize {
			return ErrInvalidPhase.Withf("phase %d (%s) needs %d cards, a hand holds %d", i+1, p, p.Size(), handSize)
		}
	}
	return nil
}

// DefaultPhaseStrings are the ten classic phases.
var DefaultPhaseStrings = []string{
	"S3+S3",
	"S3+R4",
	"S4+R4",
	"R7",
	"R8",
	"R9",
	"S4+S4",
	"C7",
	"S5+S2",
	"S5+S3",
}

// DefaultPhases returns a fresh copy of the classic phase list.
func DefaultPhases() []Phase {
	out, err := ParsePhases(DefaultPhaseStrings)
	if err != nil {
		panic(err)
	}
	return out
}

// PhaseStrings renders a phase list back into notation.
func PhaseStrings(phases []Phase) []string {
	out := make([]string, len(phases))
	for i, p := range phases {
		out[i] = p.String()
	}
	return out
}
