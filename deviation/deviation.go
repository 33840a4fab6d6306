package deviation

import "math"

// FieldMap maps a measurement field key to a captured or standard value.
type FieldMap map[string]float64

// Result is the per-field outcome of comparing a captured value against its standard.
type Result struct {
	Value           float64 `json:"value"`
	Std             float64 `json:"std,omitempty"`
	Diff            float64 `json:"diff,omitempty"`
	Tolerance       float64 `json:"tolerance,omitempty"`
	HasStandard     bool    `json:"hasStandard"`
	WithinTolerance bool    `json:"withinTolerance"`
}

// Field categories for default tolerances. The sets are fixed product policy:
// they are keyed by field name, not by machine or schema, so the same key gets
// the same default everywhere.
var (
	loadFields = map[string]struct{}{
		"unwind2": {}, "rewind": {}, "unwind1": {}, "infeed": {}, "oven": {},
	}
	temperatureFields = map[string]struct{}{
		"dryer1": {}, "dryer2": {}, "dryer3": {}, "chillerTemp": {}, "axisTemp": {},
	}
)

// DefaultTolerance returns the category default for a field with no explicit tolerance.
func DefaultTolerance(fieldKey string) float64 {
	if fieldKey == "speed" {
		return 5
	}
	if _, ok := loadFields[fieldKey]; ok {
		return 2
	}
	if _, ok := temperatureFields[fieldKey]; ok {
		return 5
	}
	return 2
}

// round2 rounds to two decimal places. Two-decimal diffs are a stated product
// requirement for the log record, not a display nicety.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Evaluate scores every captured field against the standard. Fields without a
// standard value are recorded with HasStandard=false and no judgment. Explicit
// tolerances win over category defaults.
func Evaluate(captured, standard, tolerances FieldMap) map[string]Result {
	out := make(map[string]Result, len(captured))
	for key, val := range captured {
		std, ok := standard[key]
		if !ok {
			out[key] = Result{Value: val}
			continue
		}
		tol, ok := tolerances[key]
		if !ok {
			tol = DefaultTolerance(key)
		}
		diff := round2(val - std)
		out[key] = Result{
			Value:           val,
			Std:             std,
			Diff:            diff,
			Tolerance:       tol,
			HasStandard:     true,
			WithinTolerance: math.Abs(diff) <= tol,
		}
	}
	return out
}
