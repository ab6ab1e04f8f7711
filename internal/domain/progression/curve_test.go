package progression

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

func statsWith(p Pillar, xp, level int) Stats {
	s, _ := NewStats().Set(p, PillarProgress{XP: xp, Level: level})
	return s
}

func TestCostOf(t *testing.T) {
	assert.Equal(t, 100, CostOf(1))
	assert.Equal(t, 200, CostOf(2))
	assert.Equal(t, 1500, CostOf(15))
}

func TestApplyDelta_MultiLevelRollUp(t *testing.T) {
	s, ch, err := ApplyDelta(NewStats(), PillarPhysical, 250)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Physical.Level)
	assert.Equal(t, 150, s.Physical.XP)
	assert.True(t, ch.LeveledUp)
	assert.False(t, ch.LeveledDown)
	assert.Equal(t, 1, ch.LevelBefore)
	assert.Equal(t, 2, ch.Level)

	s, ch, err = ApplyDelta(NewStats(), PillarCareer, 100+200+300+40)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Career.Level)
	assert.Equal(t, 40, s.Career.XP)
	assert.True(t, ch.LeveledUp)
}

func TestApplyDelta_LargeDelta(t *testing.T) {
	// 1..99 costs sum to 100*99*100/2.
	s, _, err := ApplyDelta(NewStats(), PillarCognition, 495000+7)
	require.NoError(t, err)
	assert.Equal(t, 100, s.Cognition.Level)
	assert.Equal(t, 7, s.Cognition.XP)
}

func TestApplyDelta_ClampsExtremeDeltas(t *testing.T) {
	start := statsWith(PillarPhysical, 500, 10)

	s, ch, err := ApplyDelta(start, PillarPhysical, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, MaxDelta, ch.Delta)
	assert.True(t, ch.LeveledUp)
	assert.Equal(t, TotalXP(start.Physical)+MaxDelta, TotalXP(s.Physical))

	s, ch, err = ApplyDelta(start, PillarPhysical, math.MinInt)
	require.NoError(t, err)
	assert.Equal(t, -MaxDelta, ch.Delta)
	assert.Equal(t, 1, s.Physical.Level)
	assert.Equal(t, 0, s.Physical.XP)
}

func TestApplyDelta_RollDown(t *testing.T) {
	s, ch, err := ApplyDelta(statsWith(PillarSocial, 10, 3), PillarSocial, -60)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Social.Level)
	assert.Equal(t, 150, s.Social.XP)
	assert.True(t, ch.LeveledDown)
	assert.False(t, ch.LeveledUp)
}

func TestApplyDelta_FloorAtLevelOne(t *testing.T) {
	s, ch, err := ApplyDelta(statsWith(PillarPhysical, 30, 2), PillarPhysical, -1000)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Physical.Level)
	assert.Equal(t, 0, s.Physical.XP)
	assert.True(t, ch.LeveledDown)

	s, ch, err = ApplyDelta(NewStats(), PillarPhysical, -25)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Physical.Level)
	assert.Equal(t, 0, s.Physical.XP)
	assert.False(t, ch.Applied())
}

func TestApplyDelta_ZeroIsNoop(t *testing.T) {
	start := statsWith(PillarCareer, 42, 5)
	s, ch, err := ApplyDelta(start, PillarCareer, 0)
	require.NoError(t, err)
	assert.Equal(t, start, s)
	assert.False(t, ch.Applied())
}

func TestApplyDelta_LeavesOtherPillarsAlone(t *testing.T) {
	start := statsWith(PillarCareer, 42, 5)
	s, _, err := ApplyDelta(start, PillarSocial, 130)
	require.NoError(t, err)
	assert.Equal(t, start.Career, s.Career)
	assert.Equal(t, start.Physical, s.Physical)
	assert.Equal(t, start.Cognition, s.Cognition)
}

func TestApplyDelta_UnknownPillar(t *testing.T) {
	_, _, err := ApplyDelta(NewStats(), Pillar("FINANZAS"), 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestApplyDelta_RoundTrip(t *testing.T) {
	deltas := []int{1, 15, 99, 100, 101, 250, 999, 5000}
	for level := 1; level <= 6; level++ {
		for _, xp := range []int{0, 1, CostOf(level) / 2, CostOf(level) - 1} {
			for _, d := range deltas {
				start := statsWith(PillarCareer, xp, level)

				up, _, err := ApplyDelta(start, PillarCareer, d)
				require.NoError(t, err)
				back, _, err := ApplyDelta(up, PillarCareer, -d)
				require.NoError(t, err)

				assert.Equal(t, start.Career, back.Career, "level=%d xp=%d delta=%d", level, xp, d)
			}
		}
	}
}

func TestApplyDelta_RoundTripClampedCase(t *testing.T) {
	start := statsWith(PillarCareer, 20, 1)

	down, _, err := ApplyDelta(start, PillarCareer, -50)
	require.NoError(t, err)
	back, _, err := ApplyDelta(down, PillarCareer, 50)
	require.NoError(t, err)

	// The 30 XP of debt below level 1 was forgiven.
	assert.Equal(t, 50, back.Career.XP)
	assert.Equal(t, 1, back.Career.Level)
}

func TestApplyDelta_PostCondition(t *testing.T) {
	for level := 1; level <= 8; level++ {
		for xp := 0; xp < CostOf(level); xp += 37 {
			for d := -3000; d <= 3000; d += 113 {
				s, _, err := ApplyDelta(statsWith(PillarPhysical, xp, level), PillarPhysical, d)
				require.NoError(t, err)

				got := s.Physical
				assert.GreaterOrEqual(t, got.Level, 1)
				assert.GreaterOrEqual(t, got.XP, 0)
				assert.Less(t, got.XP, CostOf(got.Level))
			}
		}
	}
}

func TestNormalize_ClampsCorruptRows(t *testing.T) {
	got := Normalize(PillarProgress{XP: -40, Level: 0, Streak: -3})
	assert.Equal(t, PillarProgress{XP: 0, Level: 1, Streak: 0}, got)

	got = Normalize(PillarProgress{XP: 350, Level: 1, Streak: 4})
	assert.Equal(t, PillarProgress{XP: 50, Level: 3, Streak: 4}, got)
}

func TestTotalXP(t *testing.T) {
	assert.Equal(t, 0, TotalXP(PillarProgress{Level: 1}))
	assert.Equal(t, 250, TotalXP(PillarProgress{XP: 150, Level: 2}))
}

func TestParsePillar(t *testing.T) {
	p, ok := ParsePillar(" physical ")
	assert.True(t, ok)
	assert.Equal(t, PillarPhysical, p)

	_, ok = ParsePillar("físico")
	assert.False(t, ok)

	_, ok = ParsePillar("")
	assert.False(t, ok)
}
