// Package progression is the pure data and algorithm layer of the engine:
// the pillar enumeration, the XP to level curve, streak arithmetic and the
// addiction clean-time rules. Nothing in this package performs I/O.
package progression

import (
	"strings"
)

// Pillar is one of the four independent life domains.
type Pillar string

const (
	PillarCareer    Pillar = "CAREER"
	PillarCognition Pillar = "COGNITION"
	PillarPhysical  Pillar = "PHYSICAL"
	PillarSocial    Pillar = "SOCIAL"
)

// AllPillars returns the pillars in display order.
func AllPillars() []Pillar {
	return []Pillar{PillarPhysical, PillarCareer, PillarCognition, PillarSocial}
}

// IsValid checks if the pillar is one of the known values.
func (p Pillar) IsValid() bool {
	switch p {
	case PillarCareer, PillarCognition, PillarPhysical, PillarSocial:
		return true
	}
	return false
}

// String returns the canonical upper-case name.
func (p Pillar) String() string {
	return string(p)
}

// Emoji returns the icon used in replies and reports.
func (p Pillar) Emoji() string {
	switch p {
	case PillarCareer:
		return "💼"
	case PillarCognition:
		return "🧠"
	case PillarPhysical:
		return "💪"
	case PillarSocial:
		return "🤝"
	default:
		return "❔"
	}
}

// Label returns a short human-readable name.
func (p Pillar) Label() string {
	switch p {
	case PillarCareer:
		return "Career"
	case PillarCognition:
		return "Cognition"
	case PillarPhysical:
		return "Physical"
	case PillarSocial:
		return "Social"
	default:
		return string(p)
	}
}

// ParsePillar resolves a pillar tag case-insensitively.
// Only the canonical English names are accepted.
func ParsePillar(s string) (Pillar, bool) {
	p := Pillar(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", false
	}
	return p, true
}
