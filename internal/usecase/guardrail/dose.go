package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"protocol-rag/internal/usecase/extract"
)

var doseValuePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)(?:\s*(?:-|to)\s*(\d+(?:\.\d+)?))?\s*(mcg|mg|meq|ml|units?|g)(\s*/\s*kg)?$`)

// parsedDose is a dose string converted to its unit class.
type parsedDose struct {
	class unitClass
	perKg bool
	low   float64
	high  float64
}

func parseDose(s string) (parsedDose, bool) {
	m := doseValuePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return parsedDose{}, false
	}
	low, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return parsedDose{}, false
	}
	high := low
	if m[2] != "" {
		if high, err = strconv.ParseFloat(m[2], 64); err != nil {
			return parsedDose{}, false
		}
	}

	d := parsedDose{perKg: m[4] != "", low: low, high: high}
	switch m[3] {
	case "mg":
		d.class = classMass
	case "mcg":
		d.class, d.low, d.high = classMass, low/1000, high/1000
	case "g":
		d.class, d.low, d.high = classMass, low*1000, high*1000
	case "ml":
		d.class = classVol
	case "meq":
		d.class = classMEq
	default:
		d.class = classUnits
	}
	return d, true
}

// DoseValidator checks every dose stated in the answer against the safe-dose table.
// An out-of-range dose fails regardless of what the cited chunks say. So does a
// dose that cannot be parsed or tied to a medication.
type DoseValidator struct {
	extractor *extract.Extractor
	table     map[string][]doseRange
}

func NewDoseValidator(ex *extract.Extractor) *DoseValidator {
	return &DoseValidator{extractor: ex, table: safeDoses}
}

func (v *DoseValidator) Name() string { return NameDose }

func (v *DoseValidator) Validate(_ context.Context, in Input) (PartialVerdict, error) {
	pv := PartialVerdict{Name: NameDose, Passed: true, Score: 1}
	fail := func(reason string) {
		pv.Passed = false
		pv.Score = 0
		pv.Reasons = append(pv.Reasons, reason)
	}

	for _, m := range v.extractor.DoseMentions(in.Answer) {
		if m.Medication == "" {
			fail(fmt.Sprintf("dose %q is not attributable to a medication", m.Dose))
			continue
		}
		dose, ok := parseDose(m.Dose)
		if !ok {
			fail(fmt.Sprintf("unparseable dose for %s: %q", m.Medication, m.Dose))
			continue
		}
		r, ok := v.lookup(m.Medication, dose)
		if !ok {
			pv.Reasons = append(pv.Reasons, fmt.Sprintf("unverifiable dose for %s: %q", m.Medication, m.Dose))
			continue
		}
		if dose.low < r.Min || dose.high > r.Max {
			fail(fmt.Sprintf("unsafe dose for %s: %q outside %s", m.Medication, m.Dose, formatRange(r)))
		}
	}
	return pv, nil
}

func (v *DoseValidator) lookup(name string, d parsedDose) (doseRange, bool) {
	for _, r := range v.table[name] {
		if r.Class == d.class && r.PerKg == d.perKg {
			return r, true
		}
	}
	return doseRange{}, false
}

func formatRange(r doseRange) string {
	unit := string(r.Class)
	if r.PerKg {
		unit += "/kg"
	}
	return strconv.FormatFloat(r.Min, 'g', -1, 64) + "-" + strconv.FormatFloat(r.Max, 'g', -1, 64) + " " + unit
}
