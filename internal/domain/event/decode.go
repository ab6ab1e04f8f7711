package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lifeos-hub/lifeos/internal/domain/progression"
	"github.com/lifeos-hub/lifeos/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ALIASES
// ══════════════════════════════════════════════════════════════════════════════

// kindAliases maps classifier type tags, including the Spanish tags of the
// first prompt revision, to kinds.
var kindAliases = map[string]Kind{
	"mood":              KindMood,
	"state":             KindMood,
	"estado":            KindMood,
	"consumption":       KindConsumption,
	"consumo":           KindConsumption,
	"cycle_start":       KindCycleStart,
	"ciclo_inicio":      KindCycleStart,
	"cycle_end":         KindCycleEnd,
	"ciclo_fin":         KindCycleEnd,
	"idea":              KindIdea,
	"reps":              KindReps,
	"exercise":          KindReps,
	"ejercicio":         KindReps,
	"fast":              KindFast,
	"ayuno":             KindFast,
	"sleep":             KindSleep,
	"sueno":             KindSleep,
	"sueño":             KindSleep,
	"addiction_start":   KindAddictionStart,
	"adiccion_inicio":   KindAddictionStart,
	"addiction_relapse": KindAddictionRelapse,
	"relapse":           KindAddictionRelapse,
	"recaida":           KindAddictionRelapse,
	"recaída":           KindAddictionRelapse,
	"social":            KindSocial,
	"financial":         KindFinancial,
	"finanzas":          KindFinancial,
	"transaccion":       KindFinancial,
	"note":              KindNote,
	"nota":              KindNote,
}

// pillarAliases maps the classifier's pillar tags to pillars.
var pillarAliases = map[string]progression.Pillar{
	"CAREER":    progression.PillarCareer,
	"PLATA":     progression.PillarCareer,
	"COGNITION": progression.PillarCognition,
	"PENSAR":    progression.PillarCognition,
	"PHYSICAL":  progression.PillarPhysical,
	"FISICO":    progression.PillarPhysical,
	"FÍSICO":    progression.PillarPhysical,
	"SOCIAL":    progression.PillarSocial,
}

// Field aliases, first match wins.
var (
	keysReply       = []string{"reply", "respuesta"}
	keysPillar      = []string{"pillar", "pilar"}
	keysName        = []string{"name", "nombre", "tarea", "task", "persona"}
	keysDescription = []string{"description", "descripcion", "resumen", "texto", "text", "resultado", "summary"}
	keysCategory    = []string{"category", "categoria", "clase", "tipo"}
	keysFlow        = []string{"flow", "direction", "movimiento"}
	keysHours       = []string{"hours", "horas"}
	keysReps        = []string{"reps", "repeticiones", "cantidad", "count"}
	keysEnergy      = []string{"energy", "energia"}
	keysFocus       = []string{"focus", "concentracion"}
	keysAmount      = []string{"amount", "monto"}
)

// ══════════════════════════════════════════════════════════════════════════════
// DECODING
// ══════════════════════════════════════════════════════════════════════════════

// DecodeResult holds the events that decoded and the items that did not.
type DecodeResult struct {
	Events  []Event
	Skipped []SkippedItem
}

// SkippedItem is a payload item that could not become an event.
type SkippedItem struct {
	Index int
	Err   error
}

// Decode parses a classifier payload of the form {"events":[...]}.
// A bare event object is accepted as a one-element batch. Text around the
// outermost braces (prose, code fences) is ignored. Items that fail to decode
// or validate are reported in Skipped and never abort the batch.
func Decode(raw []byte) (DecodeResult, error) {
	body := trimToObject(raw)
	if len(body) == 0 {
		return DecodeResult{}, shared.WrapError("event", "Decode", shared.ErrInvalidFormat,
			"payload has no JSON object", shared.ErrInvalidEvent)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return DecodeResult{}, shared.WrapError("event", "Decode", shared.ErrInvalidFormat,
			"payload is not a JSON object", err)
	}

	var items []json.RawMessage
	if rawEvents, ok := envelope["events"]; ok {
		if err := json.Unmarshal(rawEvents, &items); err != nil {
			return DecodeResult{}, shared.WrapError("event", "Decode", shared.ErrInvalidFormat,
				"events is not a list", err)
		}
	} else {
		items = []json.RawMessage{body}
	}

	var res DecodeResult
	for i, item := range items {
		ev, err := decodeItem(item)
		if err == nil {
			err = ev.Validate()
		}
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedItem{Index: i, Err: err})
			continue
		}
		res.Events = append(res.Events, ev)
	}
	return res, nil
}

func trimToObject(raw []byte) []byte {
	first := bytes.IndexByte(raw, '{')
	last := bytes.LastIndexByte(raw, '}')
	if first == -1 || last < first {
		return nil
	}
	return raw[first : last+1]
}

func decodeItem(item json.RawMessage) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(item))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Event{}, shared.WrapError("event", "Decode", shared.ErrInvalidFormat, "event is not an object", err)
	}

	tag := strings.ToLower(strings.TrimSpace(stringField(fields, []string{"type", "tipo_evento", "kind"})))
	kind, ok := kindAliases[tag]
	if !ok {
		return Event{}, shared.WrapError("event", "Decode", shared.ErrInvalidInput,
			fmt.Sprintf("unknown event type %q", tag), shared.ErrUnknownEventKind)
	}

	ev := Event{
		Kind:        kind,
		Reply:       strings.TrimSpace(stringField(fields, keysReply)),
		Name:        strings.TrimSpace(stringField(fields, keysName)),
		Description: strings.TrimSpace(stringField(fields, keysDescription)),
		Category:    strings.TrimSpace(stringField(fields, keysCategory)),
		Energy:      scaleField(fields, keysEnergy),
		Focus:       scaleField(fields, keysFocus),
	}

	if tagValue := stringField(fields, keysPillar); tagValue != "" {
		p, ok := pillarAliases[strings.ToUpper(strings.TrimSpace(tagValue))]
		if !ok {
			return Event{}, shared.WrapError("event", "Decode", shared.ErrInvalidInput,
				fmt.Sprintf("unknown pillar %q", tagValue), shared.ErrUnknownPillar)
		}
		ev.Pillar = p
	}

	var err error
	if ev.Hours, err = floatField(fields, keysHours); err != nil {
		return Event{}, err
	}
	reps, err := floatField(fields, keysReps)
	if err != nil {
		return Event{}, err
	}
	if math.Abs(reps) > MaxReps || ev.Hours > MaxHours {
		return Event{}, shared.WrapError("event", "Decode", shared.ErrValueOutOfRange,
			"hours or reps out of range", shared.ErrInvalidEvent)
	}
	ev.Reps = int(math.Floor(reps))

	if amount, ok := fields[firstKey(fields, keysAmount)]; ok {
		ev.Amount, err = decimalValue(amount)
		if err != nil {
			return Event{}, err
		}
	}
	if ev.Kind == KindFinancial {
		ev.Flow = normalizeFlow(stringField(fields, keysFlow))
		if ev.Amount.IsNegative() {
			ev.Amount = ev.Amount.Abs()
			ev.Flow = FlowExpense
		}
	}

	return ev, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FIELD HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func firstKey(fields map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return k
		}
	}
	return ""
}

func stringField(fields map[string]any, keys []string) string {
	switch v := fields[firstKey(fields, keys)].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func floatField(fields map[string]any, keys []string) (float64, error) {
	key := firstKey(fields, keys)
	if key == "" {
		return 0, nil
	}

	var f float64
	var err error
	switch v := fields[key].(type) {
	case json.Number:
		f, err = v.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		err = fmt.Errorf("unexpected %T", v)
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, shared.WrapError("event", "Decode", shared.ErrInvalidFormat,
			fmt.Sprintf("field %q is not a number", key), shared.ErrInvalidEvent)
	}
	return f, nil
}

// scaleField reads a 1-5 rating; anything out of range is treated as unknown.
func scaleField(fields map[string]any, keys []string) int {
	f, err := floatField(fields, keys)
	if err != nil {
		return 0
	}
	if f < 0.5 || f >= 5.5 {
		return 0
	}
	return int(math.Round(f))
}

func decimalValue(v any) (decimal.Decimal, error) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		s = strings.TrimPrefix(s, "$")
	default:
		return decimal.Zero, shared.WrapError("event", "Decode", shared.ErrInvalidFormat,
			"amount is not a number", shared.ErrInvalidEvent)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, shared.WrapError("event", "Decode", shared.ErrInvalidFormat,
			"amount is not a number", err)
	}
	return d, nil
}

func normalizeFlow(flow string) string {
	switch strings.ToUpper(strings.TrimSpace(flow)) {
	case "INCOME", "INGRESO":
		return FlowIncome
	default:
		return FlowExpense
	}
}
