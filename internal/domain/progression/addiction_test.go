package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordRetention(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	record := 0.0
	last := t0

	first := t0.Add(5 * time.Hour)
	record = RecordAfter(record, CleanHours(last, first))
	last = first
	assert.InDelta(t, 5.0, record, 1e-9)

	second := first.Add(time.Hour)
	record = RecordAfter(record, CleanHours(last, second))
	assert.InDelta(t, 5.0, record, 1e-9)
}

func TestCleanHours_NeverNegative(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0.0, CleanHours(now.Add(time.Hour), now))
}

func TestRankFor(t *testing.T) {
	cases := map[int]string{
		0:   "Relapse",
		1:   "Novice",
		2:   "Novice",
		3:   "Apprentice",
		7:   "Warrior",
		13:  "Warrior",
		14:  "Veteran",
		30:  "Master",
		89:  "Master",
		90:  "Legend",
		400: "Legend",
	}
	for days, want := range cases {
		assert.Equal(t, want, RankFor(days).Title, "days=%d", days)
	}
}

func TestDaysClean(t *testing.T) {
	last := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysClean(last, last.Add(23*time.Hour)))
	assert.Equal(t, 1, DaysClean(last, last.Add(25*time.Hour)))
	assert.Equal(t, 7, DaysClean(last, last.Add(7*24*time.Hour)))
}

func TestNextStreak(t *testing.T) {
	assert.Equal(t, 1, NextStreak(0, true))
	assert.Equal(t, 8, NextStreak(7, true))
	assert.Equal(t, 0, NextStreak(7, false))
	assert.Equal(t, 1, NextStreak(-2, true))
}
