package extract

import "regexp"

// unitKind restricts which dose units are accepted for a medication.
type unitKind int

const (
	unitMass unitKind = iota // mg, mcg, g
	unitAny                  // any recognized unit, including mL, mEq and units
)

func (k unitKind) accepts(unit string) bool {
	switch k {
	case unitMass:
		return unit == "mg" || unit == "mcg" || unit == "g"
	default:
		return true
	}
}

// medicationPattern recognizes one medication by its canonical name and common aliases.
type medicationPattern struct {
	Name    string
	Matcher *regexp.Regexp
	Unit    unitKind
}

func pattern(name string, aliases string, unit unitKind) medicationPattern {
	return medicationPattern{
		Name:    name,
		Matcher: regexp.MustCompile(`(?i)\b(?:` + aliases + `)\b`),
		Unit:    unit,
	}
}

// defaultMedications is ordered; extraction output follows this order first.
var defaultMedications = []medicationPattern{
	pattern("epinephrine", `epinephrine|epi|adrenaline`, unitMass),
	pattern("midazolam", `midazolam|versed`, unitMass),
	pattern("diazepam", `diazepam|valium`, unitMass),
	pattern("lorazepam", `lorazepam|ativan`, unitMass),
	pattern("amiodarone", `amiodarone|cordarone`, unitMass),
	pattern("adenosine", `adenosine|adenocard`, unitMass),
	pattern("atropine", `atropine`, unitMass),
	pattern("naloxone", `naloxone|narcan`, unitMass),
	pattern("fentanyl", `fentanyl`, unitMass),
	pattern("morphine", `morphine`, unitMass),
	pattern("ketamine", `ketamine|ketalar`, unitMass),
	pattern("ondansetron", `ondansetron|zofran`, unitMass),
	pattern("aspirin", `aspirin|asa`, unitMass),
	pattern("nitroglycerin", `nitroglycerin|nitro|ntg`, unitMass),
	pattern("albuterol", `albuterol|ventolin`, unitMass),
	pattern("ipratropium", `ipratropium|atrovent`, unitMass),
	pattern("dextrose", `dextrose|d50|d25|d10`, unitAny),
	pattern("glucagon", `glucagon`, unitMass),
	pattern("diphenhydramine", `diphenhydramine|benadryl`, unitMass),
	pattern("magnesium sulfate", `magnesium\s+sulfate|magnesium|mag\s+sulfate`, unitMass),
	pattern("calcium chloride", `calcium\s+chloride`, unitAny),
	pattern("sodium bicarbonate", `sodium\s+bicarbonate|bicarb`, unitAny),
	pattern("lidocaine", `lidocaine|xylocaine`, unitMass),
}

var (
	dosePattern  = regexp.MustCompile(`(?i)\d+(?:\.\d+)?(?:\s*(?:-|to)\s*\d+(?:\.\d+)?)?\s*(mcg|mg|meq|ml|units?|g)(?:\s*/\s*kg)?\b`)
	routePattern = regexp.MustCompile(`(?i)\b(?:iv\s+push|ivp|iv|io|im|intranasal|intramuscular|intravenous|intraosseous|po|sl|subq|sq|nebulized|neb|pr|et)\b`)

	// "IN" is matched case-sensitively so the preposition "in" is never a route.
	intranasalUpper = regexp.MustCompile(`\bIN\b`)
)

var contraindicationSignals = []string{
	"contraindicated",
	"contraindication",
	"do not give",
	"do not administer",
	"do not use",
	"should not be given",
	"should not be used",
	"not recommended",
	"avoid",
	"withhold",
	"caution",
	"use with caution",
	"hypersensitivity",
}

var actionVerbs = []string{
	"administer", "give", "assess", "monitor", "consider", "obtain", "establish",
	"transport", "contact", "reassess", "repeat", "titrate", "begin", "initiate",
	"perform", "apply", "maintain",
}

const (
	doseWindow             = 60
	minContraindicationLen = 10
	maxContraindicationLen = 300
	maxContraindications   = 5
	maxKeyPoints           = 5
	minStructuredKeyPoints = 3
	maxKeyPointLen         = 300
)
