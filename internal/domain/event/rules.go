package event

import (
	"math"
	"time"

	"github.com/lifeos-hub/lifeos/internal/domain/progression"
)

// Fixed rewards.
const (
	SleepXP          = 100
	SleepMinHours    = 7.0 // strictly more than this
	FastMinHours     = 12.0
	FastXPPerHour    = 10
	CycleStartXP     = 15
	DeepWorkXP       = 100
	ShallowWorkXP    = 50
	MoodXP           = 10
	ConsumptionXP    = 10
	IdeaXP           = 20
	SocialXP         = 30
	AddictionStartXP = 50
)

// Rules holds the tunable parts of the reward table.
type Rules struct {
	// MinExerciseReps is the smallest set that earns XP.
	MinExerciseReps int

	// FinancialXP is awarded per financial transaction. Zero makes
	// transactions pure bookkeeping.
	FinancialXP int

	// RelapsePenaltyXP is subtracted from AddictionPillar on a relapse.
	// Zero disables the penalty.
	RelapsePenaltyXP int

	// PenaltyXP is subtracted from every pillar when a day ends without
	// physical activity.
	PenaltyXP int

	// AddictionPillar receives the reward for starting to track a vice.
	AddictionPillar progression.Pillar

	// AddictionStartXP is the reward for starting to track a vice.
	AddictionStartXP int

	// TrackSocialStreak enables the daily streak of the SOCIAL pillar.
	TrackSocialStreak bool

	// DeepWorkThreshold is the cycle length above which DeepWorkXP is paid.
	DeepWorkThreshold time.Duration
}

// DefaultRules returns the documented defaults.
func DefaultRules() Rules {
	return Rules{
		MinExerciseReps:   1,
		FinancialXP:       10,
		RelapsePenaltyXP:  0,
		PenaltyXP:         25,
		AddictionPillar:   progression.PillarPhysical,
		AddictionStartXP:  AddictionStartXP,
		TrackSocialStreak: true,
		DeepWorkThreshold: 2 * time.Hour,
	}
}

// PillarFor resolves the pillar an event is credited to.
// Idea and social events ignore the stated pillar.
func (r Rules) PillarFor(ev Event) progression.Pillar {
	switch ev.Kind {
	case KindIdea:
		return progression.PillarCognition
	case KindSocial:
		return progression.PillarSocial
	case KindAddictionStart, KindAddictionRelapse:
		return r.AddictionPillar
	}

	if ev.Pillar.IsValid() {
		return ev.Pillar
	}

	switch ev.Kind {
	case KindConsumption, KindReps, KindFast, KindSleep:
		return progression.PillarPhysical
	case KindFinancial, KindCycleStart, KindCycleEnd:
		return progression.PillarCareer
	default:
		return progression.PillarCognition
	}
}

// Award returns the XP of an event whose reward depends only on its own
// fields. Cycle ends and addiction events are priced by their handlers.
func (r Rules) Award(ev Event) int {
	switch ev.Kind {
	case KindSleep:
		if ev.Hours > SleepMinHours {
			return SleepXP
		}
		return 0
	case KindFast:
		if ev.Hours >= FastMinHours {
			return int(math.Min(ev.Hours, MaxHours) * FastXPPerHour)
		}
		return 0
	case KindReps:
		if ev.Reps >= r.MinExerciseReps && ev.Reps > 0 {
			return min(ev.Reps, MaxReps)
		}
		return 0
	case KindCycleStart:
		return CycleStartXP
	case KindMood:
		return MoodXP
	case KindConsumption:
		return ConsumptionXP
	case KindFinancial:
		return r.FinancialXP
	case KindIdea:
		return IdeaXP
	case KindSocial:
		return SocialXP
	default:
		return 0
	}
}

// CycleEndXP prices a closed cycle by its length.
func (r Rules) CycleEndXP(elapsed time.Duration) int {
	if elapsed > r.DeepWorkThreshold {
		return DeepWorkXP
	}
	return ShallowWorkXP
}
