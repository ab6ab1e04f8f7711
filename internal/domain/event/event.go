// Package event defines the typed life events produced by the classifier and
// the decoder that turns the classifier's JSON payload into them.
package event

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

// Kind is the discriminant of an event.
type Kind string

const (
	KindMood             Kind = "mood"
	KindConsumption      Kind = "consumption"
	KindCycleStart       Kind = "cycle_start"
	KindCycleEnd         Kind = "cycle_end"
	KindIdea             Kind = "idea"
	KindReps             Kind = "reps"
	KindFast             Kind = "fast"
	KindSleep            Kind = "sleep"
	KindAddictionStart   Kind = "addiction_start"
	KindAddictionRelapse Kind = "addiction_relapse"
	KindSocial           Kind = "social"
	KindFinancial        Kind = "financial"
	KindNote             Kind = "note"
)

// Kinds returns every known kind.
func Kinds() []Kind {
	return []Kind{
		KindMood, KindConsumption, KindCycleStart, KindCycleEnd, KindIdea,
		KindReps, KindFast, KindSleep, KindAddictionStart, KindAddictionRelapse,
		KindSocial, KindFinancial, KindNote,
	}
}

// IsValid checks if the kind is part of the taxonomy.
func (k Kind) IsValid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Financial transaction directions.
const (
	FlowIncome  = "INCOME"
	FlowExpense = "EXPENSE"
)

// Upper bounds of the numeric fields. Anything larger is a misread, not a
// life event.
const (
	MaxHours = 24 * 365
	MaxReps  = 100_000
)

// Event is one classified life event.
// Optional fields are zero when the classifier did not provide them.
type Event struct {
	Kind Kind

	// Reply is the classifier's natural-language confirmation.
	Reply string

	// Pillar is the pillar tag stated by the classifier, empty if none.
	Pillar progression.Pillar

	// Name identifies the subject: the task of a cycle, the vice of an
	// addiction event, the person of a social interaction.
	Name string

	Description string
	Category    string

	Hours  float64
	Reps   int
	Energy int // 1-5, 0 if unknown
	Focus  int // 1-5, 0 if unknown

	// Amount and Flow describe a financial transaction. Amount is never
	// negative; Flow is FlowIncome or FlowExpense.
	Amount decimal.Decimal
	Flow   string
}

// SignedAmount returns the amount as a ledger entry: expenses are negative.
func (e Event) SignedAmount() decimal.Decimal {
	if e.Flow == FlowIncome {
		return e.Amount
	}
	return e.Amount.Neg()
}

// Validate rejects events the engine cannot act on.
func (e Event) Validate() error {
	if !e.Kind.IsValid() {
		return shared.WrapError("event", "Validate", shared.ErrInvalidInput,
			fmt.Sprintf("unknown kind %q", e.Kind), shared.ErrUnknownEventKind)
	}
	if e.Pillar != "" && !e.Pillar.IsValid() {
		return shared.ErrUnknownPillar
	}
	if e.Hours < 0 || e.Reps < 0 {
		return shared.WrapError("event", "Validate", shared.ErrNegativeValue,
			"hours and reps cannot be negative", shared.ErrInvalidEvent)
	}
	if math.IsNaN(e.Hours) || e.Hours > MaxHours || e.Reps > MaxReps {
		return shared.WrapError("event", "Validate", shared.ErrValueOutOfRange,
			fmt.Sprintf("hours must be at most %d and reps at most %d", MaxHours, MaxReps), shared.ErrInvalidEvent)
	}

	switch e.Kind {
	case KindAddictionStart, KindAddictionRelapse:
		if strings.TrimSpace(e.Name) == "" {
			return shared.WrapError("event", "Validate", shared.ErrEmptyValue,
				"addiction events need a name", shared.ErrInvalidEvent)
		}
	case KindFinancial:
		if e.Amount.IsNegative() {
			return shared.WrapError("event", "Validate", shared.ErrNegativeValue,
				"amount cannot be negative", shared.ErrInvalidEvent)
		}
	}
	return nil
}

// Summary returns a short text for logs and activity titles.
func (e Event) Summary() string {
	for _, s := range []string{e.Name, e.Description, e.Reply} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return string(e.Kind)
}
