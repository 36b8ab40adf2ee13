package guardrail

// unitClass is the normalized unit a dose range is expressed in.
type unitClass string

const (
	classMass  unitClass = "mg"
	classVol   unitClass = "ml"
	classMEq   unitClass = "meq"
	classUnits unitClass = "units"
)

// doseRange is a documented safe single-dose range.
type doseRange struct {
	Class unitClass
	PerKg bool
	Min   float64
	Max   float64
}

// safeDoses lists single-dose ranges per canonical medication name.
// Mass ranges are in mg; a medication with no entry for a unit is unverifiable in that unit.
var safeDoses = map[string][]doseRange{
	"epinephrine": {
		{Class: classMass, Min: 0.005, Max: 1},
		{Class: classMass, PerKg: true, Min: 0.001, Max: 0.1},
	},
	"midazolam": {
		{Class: classMass, Min: 0.5, Max: 10},
		{Class: classMass, PerKg: true, Min: 0.05, Max: 0.5},
	},
	"diazepam": {
		{Class: classMass, Min: 1, Max: 20},
		{Class: classMass, PerKg: true, Min: 0.05, Max: 0.5},
	},
	"lorazepam": {
		{Class: classMass, Min: 0.5, Max: 4},
		{Class: classMass, PerKg: true, Min: 0.05, Max: 0.1},
	},
	"amiodarone": {
		{Class: classMass, Min: 1, Max: 300},
		{Class: classMass, PerKg: true, Min: 1, Max: 5},
	},
	"adenosine": {
		{Class: classMass, Min: 3, Max: 12},
		{Class: classMass, PerKg: true, Min: 0.05, Max: 0.3},
	},
	"atropine": {
		{Class: classMass, Min: 0.1, Max: 5},
		{Class: classMass, PerKg: true, Min: 0.01, Max: 0.05},
	},
	"naloxone": {
		{Class: classMass, Min: 0.04, Max: 4},
		{Class: classMass, PerKg: true, Min: 0.01, Max: 0.1},
	},
	"fentanyl": {
		{Class: classMass, Min: 0.0125, Max: 0.2},
		{Class: classMass, PerKg: true, Min: 0.0005, Max: 0.002},
	},
	"morphine": {
		{Class: classMass, Min: 1, Max: 10},
		{Class: classMass, PerKg: true, Min: 0.05, Max: 0.1},
	},
	"ketamine": {
		{Class: classMass, Min: 10, Max: 500},
		{Class: classMass, PerKg: true, Min: 0.1, Max: 5},
	},
	"ondansetron": {
		{Class: classMass, Min: 2, Max: 8},
		{Class: classMass, PerKg: true, Min: 0.1, Max: 0.15},
	},
	"aspirin": {
		{Class: classMass, Min: 81, Max: 325},
	},
	"nitroglycerin": {
		{Class: classMass, Min: 0.3, Max: 0.8},
	},
	"albuterol": {
		{Class: classMass, Min: 1.25, Max: 7.5},
	},
	"ipratropium": {
		{Class: classMass, Min: 0.25, Max: 0.5},
	},
	"dextrose": {
		{Class: classMass, Min: 5000, Max: 25000},
		{Class: classMass, PerKg: true, Min: 200, Max: 1000},
		{Class: classVol, Min: 10, Max: 500},
		{Class: classVol, PerKg: true, Min: 1, Max: 10},
	},
	"glucagon": {
		{Class: classMass, Min: 0.5, Max: 1},
		{Class: classMass, PerKg: true, Min: 0.02, Max: 0.1},
	},
	"diphenhydramine": {
		{Class: classMass, Min: 10, Max: 50},
		{Class: classMass, PerKg: true, Min: 0.5, Max: 1.25},
	},
	"magnesium sulfate": {
		{Class: classMass, Min: 1000, Max: 4000},
		{Class: classMass, PerKg: true, Min: 25, Max: 50},
	},
	"calcium chloride": {
		{Class: classMass, Min: 500, Max: 1000},
		{Class: classMass, PerKg: true, Min: 10, Max: 20},
		{Class: classVol, Min: 5, Max: 10},
	},
	"sodium bicarbonate": {
		{Class: classMEq, Min: 25, Max: 100},
		{Class: classMEq, PerKg: true, Min: 0.5, Max: 1},
	},
	"lidocaine": {
		{Class: classMass, Min: 20, Max: 150},
		{Class: classMass, PerKg: true, Min: 0.5, Max: 1.5},
	},
}
