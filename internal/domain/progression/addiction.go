package progression

import (
	"time"
)

// CleanHours returns the hours elapsed since the last relapse.
// Clock skew never produces a negative interval.
func CleanHours(lastRelapse, now time.Time) float64 {
	h := now.Sub(lastRelapse).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// RecordAfter returns the best clean interval after a relapse that ended a
// streak of clean hours.
func RecordAfter(record, clean float64) float64 {
	if clean > record {
		return clean
	}
	return record
}

// DaysClean returns whole days since the last relapse.
func DaysClean(lastRelapse, now time.Time) int {
	return int(CleanHours(lastRelapse, now) / 24)
}

// Rank is a tier earned by staying clean.
type Rank struct {
	MinDays int
	Title   string
}

var ranks = []Rank{
	{MinDays: 0, Title: "Relapse"},
	{MinDays: 1, Title: "Novice"},
	{MinDays: 3, Title: "Apprentice"},
	{MinDays: 7, Title: "Warrior"},
	{MinDays: 14, Title: "Veteran"},
	{MinDays: 30, Title: "Master"},
	{MinDays: 90, Title: "Legend"},
}

// Ranks returns all tiers in ascending order.
func Ranks() []Rank {
	out := make([]Rank, len(ranks))
	copy(out, ranks)
	return out
}

// RankFor returns the highest tier reached after daysClean days.
func RankFor(daysClean int) Rank {
	best := ranks[0]
	for _, r := range ranks {
		if daysClean >= r.MinDays {
			best = r
		}
	}
	return best
}
