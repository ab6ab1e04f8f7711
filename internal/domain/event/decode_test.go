package event

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

func TestDecode_Batch(t *testing.T) {
	raw := "Sure! Here you go:\n```json\n" + `{
  "events": [
    {"type": "reps", "reps": 10, "reply": "Nice set of push-ups"},
    {"type": "sleep", "hours": "7.5"},
    {"type": "cycle_start", "name": "Write report", "pillar": "career"},
    {"type": "financial", "amount": "-42.50", "category": "food", "description": "groceries"}
  ]
}` + "\n```"

	res, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, res.Events, 4)
	assert.Empty(t, res.Skipped)

	reps := res.Events[0]
	assert.Equal(t, KindReps, reps.Kind)
	assert.Equal(t, 10, reps.Reps)
	assert.Equal(t, "Nice set of push-ups", reps.Reply)

	assert.Equal(t, KindSleep, res.Events[1].Kind)
	assert.InDelta(t, 7.5, res.Events[1].Hours, 1e-9)

	cycle := res.Events[2]
	assert.Equal(t, progression.PillarCareer, cycle.Pillar)
	assert.Equal(t, "Write report", cycle.Name)

	fin := res.Events[3]
	assert.True(t, decimal.RequireFromString("42.50").Equal(fin.Amount))
	assert.Equal(t, FlowExpense, fin.Flow)
	assert.True(t, decimal.RequireFromString("-42.50").Equal(fin.SignedAmount()))
	assert.Equal(t, "food", fin.Category)
}

func TestDecode_SpanishTags(t *testing.T) {
	raw := `{"events":[
		{"type":"estado","energia":4,"concentracion":9,"resumen":"tired but ok"},
		{"type":"ciclo_inicio","tarea":"Estudiar","pilar":"PENSAR"},
		{"type":"ciclo_fin","resultado":"done"},
		{"type":"consumo","clase":"COMIDA","descripcion":"salad"}
	]}`

	res, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, res.Events, 4)

	mood := res.Events[0]
	assert.Equal(t, KindMood, mood.Kind)
	assert.Equal(t, 4, mood.Energy)
	assert.Equal(t, 0, mood.Focus, "out of range ratings are dropped")
	assert.Equal(t, "tired but ok", mood.Description)

	assert.Equal(t, progression.PillarCognition, res.Events[1].Pillar)
	assert.Equal(t, "Estudiar", res.Events[1].Name)
	assert.Equal(t, KindCycleEnd, res.Events[2].Kind)
	assert.Equal(t, "COMIDA", res.Events[3].Category)
}

func TestDecode_SkipsMalformedItems(t *testing.T) {
	raw := `{"events":[
		{"type":"teleport"},
		{"type":"sleep","hours":"lots"},
		{"type":"addiction_start"},
		{"type":"idea","description":"bot that reads receipts","pillar":"HOBBIES"},
		"not an object",
		{"type":"social","name":"Ana"}
	]}`

	res, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, KindSocial, res.Events[0].Kind)

	require.Len(t, res.Skipped, 5)
	assert.Equal(t, 0, res.Skipped[0].Index)
	assert.True(t, errors.Is(res.Skipped[0].Err, shared.ErrUnknownEventKind))
	assert.True(t, shared.IsValidation(res.Skipped[1].Err))
	assert.True(t, shared.IsValidation(res.Skipped[2].Err))
	assert.True(t, errors.Is(res.Skipped[3].Err, shared.ErrUnknownPillar))
	assert.Equal(t, 4, res.Skipped[4].Index)
}

func TestDecode_SingleObject(t *testing.T) {
	res, err := Decode([]byte(`{"type":"nota","texto":"buy milk"}`))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, KindNote, res.Events[0].Kind)
	assert.Equal(t, "buy milk", res.Events[0].Summary())
}

func TestDecode_EmptyBatch(t *testing.T) {
	res, err := Decode([]byte(`{"events":[]}`))
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Empty(t, res.Skipped)
}

func TestDecode_NotJSON(t *testing.T) {
	_, err := Decode([]byte("the model timed out"))
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, err = Decode([]byte(`{"events": 3}`))
	require.Error(t, err)
}

func TestDecode_NumericFieldRanges(t *testing.T) {
	cases := []struct {
		name    string
		item    string
		skipped bool
		hours   float64
		reps    int
	}{
		{"hours as string", `{"type":"ayuno","hours":"16"}`, false, 16, 0},
		{"fractional reps round down", `{"type":"reps","reps":12.7}`, false, 0, 12},
		{"reps as string", `{"type":"ejercicio","repeticiones":" 25 "}`, false, 0, 25},
		{"longest accepted fast", `{"type":"fast","hours":8760}`, false, MaxHours, 0},
		{"huge fast", `{"type":"ayuno","hours":1e18}`, true, 0, 0},
		{"fast just over a year", `{"type":"fast","hours":8760.5}`, true, 0, 0},
		{"huge reps", `{"type":"reps","reps":9223372036854775807}`, true, 0, 0},
		{"huge negative reps", `{"type":"reps","reps":-1e30}`, true, 0, 0},
		{"negative hours", `{"type":"sleep","hours":-3}`, true, 0, 0},
		{"reps over the cap", `{"type":"reps","reps":100001}`, true, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Decode([]byte(`{"events":[` + tc.item + `]}`))
			require.NoError(t, err)

			if tc.skipped {
				assert.Empty(t, res.Events)
				require.Len(t, res.Skipped, 1)
				assert.True(t, shared.IsValidation(res.Skipped[0].Err))
				return
			}
			require.Len(t, res.Events, 1)
			assert.InDelta(t, tc.hours, res.Events[0].Hours, 1e-9)
			assert.Equal(t, tc.reps, res.Events[0].Reps)
		})
	}
}

func TestValidate_Bounds(t *testing.T) {
	assert.NoError(t, Event{Kind: KindFast, Hours: MaxHours}.Validate())
	assert.NoError(t, Event{Kind: KindReps, Reps: MaxReps}.Validate())

	for _, ev := range []Event{
		{Kind: KindFast, Hours: MaxHours + 1},
		{Kind: KindReps, Reps: MaxReps + 1},
		{Kind: KindSleep, Hours: math.NaN()},
	} {
		err := ev.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrInvalidEvent)
		assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
	}
}
