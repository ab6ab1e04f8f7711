package progression

import (
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════

// XPPerLevel is the slope of the level curve.
const XPPerLevel = 100

// MaxDelta bounds the size of one XP change in either direction.
const MaxDelta = 1_000_000

// CostOf returns the XP required to advance from level to level+1.
func CostOf(level int) int {
	return level * XPPerLevel
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// PillarProgress is the XP, level and streak of one pillar.
type PillarProgress struct {
	XP     int `json:"xp"`
	Level  int `json:"level"`
	Streak int `json:"streak"`
}

// Stats holds the progress of every pillar for one user.
// Fields are addressed through Get and Set, never by name.
type Stats struct {
	Career    PillarProgress `json:"career"`
	Cognition PillarProgress `json:"cognition"`
	Physical  PillarProgress `json:"physical"`
	Social    PillarProgress `json:"social"`
}

// NewStats returns the initial state: level 1, no XP, no streaks.
func NewStats() Stats {
	start := PillarProgress{Level: 1}
	return Stats{Career: start, Cognition: start, Physical: start, Social: start}
}

// Get returns the progress of a pillar.
func (s Stats) Get(p Pillar) (PillarProgress, error) {
	switch p {
	case PillarCareer:
		return s.Career, nil
	case PillarCognition:
		return s.Cognition, nil
	case PillarPhysical:
		return s.Physical, nil
	case PillarSocial:
		return s.Social, nil
	default:
		return PillarProgress{}, shared.ErrUnknownPillar
	}
}

// Set returns a copy of s with the pillar replaced.
func (s Stats) Set(p Pillar, v PillarProgress) (Stats, error) {
	switch p {
	case PillarCareer:
		s.Career = v
	case PillarCognition:
		s.Cognition = v
	case PillarPhysical:
		s.Physical = v
	case PillarSocial:
		s.Social = v
	default:
		return s, shared.ErrUnknownPillar
	}
	return s, nil
}

// Normalized clamps every pillar into a valid state.
func (s Stats) Normalized() Stats {
	s.Career = Normalize(s.Career)
	s.Cognition = Normalize(s.Cognition)
	s.Physical = Normalize(s.Physical)
	s.Social = Normalize(s.Social)
	return s
}

// Normalize rolls XP up or down across level boundaries until
// 0 <= XP < CostOf(Level). Debt below level 1 is forgiven.
func Normalize(p PillarProgress) PillarProgress {
	if p.Level < 1 {
		p.Level = 1
	}
	if p.Streak < 0 {
		p.Streak = 0
	}

	for p.XP >= CostOf(p.Level) {
		p.XP -= CostOf(p.Level)
		p.Level++
	}

	for p.XP < 0 {
		if p.Level > 1 {
			p.Level--
			p.XP += CostOf(p.Level)
			continue
		}
		p.XP = 0
	}

	return p
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLY DELTA
// ══════════════════════════════════════════════════════════════════════════════

// Change describes the effect of one ApplyDelta call.
type Change struct {
	Pillar      Pillar
	Delta       int
	XPBefore    int
	LevelBefore int
	XP          int
	Level       int
	LeveledUp   bool
	LeveledDown bool
}

// Applied reports whether the pillar actually moved.
func (c Change) Applied() bool {
	return c.XP != c.XPBefore || c.Level != c.LevelBefore
}

// ApplyDelta adds delta (which may be negative) to a pillar and normalizes it.
// The delta is clamped to ±MaxDelta; Change.Delta holds the applied value.
// Callers persist the returned stats.
func ApplyDelta(s Stats, p Pillar, delta int) (Stats, Change, error) {
	cur, err := s.Get(p)
	if err != nil {
		return s, Change{}, err
	}
	delta = max(-MaxDelta, min(delta, MaxDelta))

	next := cur
	next.XP += delta
	next = Normalize(next)

	out, err := s.Set(p, next)
	if err != nil {
		return s, Change{}, err
	}

	return out, Change{
		Pillar:      p,
		Delta:       delta,
		XPBefore:    cur.XP,
		LevelBefore: cur.Level,
		XP:          next.XP,
		Level:       next.Level,
		LeveledUp:   next.Level > cur.Level,
		LeveledDown: next.Level < cur.Level,
	}, nil
}

// TotalXP returns the XP needed to reach the pillar's state from level 1.
func TotalXP(p PillarProgress) int {
	total := p.XP
	for l := 1; l < p.Level; l++ {
		total += CostOf(l)
	}
	return total
}
