package normalize

// abbreviation maps a whole-token phrase of domain shorthand to its clinical term.
// Expansions must not contain any abbreviation phrase, otherwise normalization
// would not be idempotent.
type abbreviation struct {
	short string
	full  string
}

var defaultAbbreviations = []abbreviation{
	{"v fib", "ventricular fibrillation"},
	{"v tach", "ventricular tachycardia"},
	{"a fib", "atrial fibrillation"},
	{"vfib", "ventricular fibrillation"},
	{"vtach", "ventricular tachycardia"},
	{"afib", "atrial fibrillation"},
	{"svt", "supraventricular tachycardia"},
	{"pea", "pulseless electrical activity"},
	{"rosc", "return of spontaneous circulation"},
	{"cpr", "cardiopulmonary resuscitation"},
	{"stemi", "st elevation myocardial infarction"},
	{"ami", "acute myocardial infarction"},
	{"mi", "myocardial infarction"},
	{"acs", "acute coronary syndrome"},
	{"chf", "congestive heart failure"},
	{"copd", "chronic obstructive pulmonary disease"},
	{"cva", "stroke"},
	{"tbi", "traumatic brain injury"},
	{"loc", "loss of consciousness"},
	{"ams", "altered mental status"},
	{"sob", "shortness of breath"},
	{"cp", "chest pain"},
	{"od", "overdose"},
	{"sz", "seizure"},
	{"peds", "pediatric"},
	{"ped", "pediatric"},
	{"paeds", "pediatric"},
	{"epi", "epinephrine"},
	{"versed", "midazolam"},
	{"narcan", "naloxone"},
	{"ntg", "nitroglycerin"},
	{"nitro", "nitroglycerin"},
	{"asa", "aspirin"},
	{"zofran", "ondansetron"},
	{"benadryl", "diphenhydramine"},
	{"valium", "diazepam"},
	{"ativan", "lorazepam"},
	{"bicarb", "sodium bicarbonate"},
	{"mag", "magnesium sulfate"},
	{"ns", "normal saline"},
	{"ivp", "iv push"},
	{"bgl", "blood glucose"},
	{"bp", "blood pressure"},
	{"hr", "heart rate"},
	{"rr", "respiratory rate"},
}

// defaultVocabulary is the closed set of clinical terms the spelling pass may correct toward.
// No entry may be an abbreviation key.
var defaultVocabulary = []string{
	"epinephrine", "midazolam", "diazepam", "lorazepam", "amiodarone", "adenosine",
	"atropine", "naloxone", "fentanyl", "morphine", "ketamine", "ondansetron",
	"aspirin", "nitroglycerin", "albuterol", "dextrose", "glucagon", "diphenhydramine",
	"magnesium", "sulfate", "calcium", "chloride", "sodium", "bicarbonate", "lidocaine",
	"ipratropium", "seizure", "seizures", "pediatric", "anaphylaxis", "asthma",
	"hypoglycemia", "hyperglycemia", "cardiac", "arrest", "stroke", "overdose",
	"bradycardia", "tachycardia", "ventricular", "fibrillation", "supraventricular",
	"pulseless", "electrical", "activity", "myocardial", "infarction", "pulmonary",
	"edema", "eclampsia", "preeclampsia", "abdominal", "trauma", "hemorrhage",
	"allergic", "reaction", "respiratory", "distress", "airway", "obstruction",
	"dosage", "contraindication", "contraindications", "intramuscular", "intravenous",
	"intraosseous", "intranasal", "nebulized", "status", "epilepticus", "hypotension",
	"hypertension", "poisoning", "sepsis", "shock", "syncope", "delivery", "newborn",
	"neonatal", "resuscitation", "unconscious", "agitation", "behavioral", "protocol",
	"chronic", "obstructive", "disease", "shortness", "breath", "normal", "saline",
	"elevation", "coronary", "syndrome", "congestive", "heart", "failure", "traumatic",
	"brain", "injury", "consciousness", "altered", "mental", "glucose", "pressure",
	"spontaneous", "circulation", "return", "atrial", "cardiopulmonary", "acute",
}

// condition maps a clinical condition to the phrases that signal it.
// Table order is priority order.
type condition struct {
	name     string
	keywords []string
}

var defaultConditions = []condition{
	{"cardiac arrest", []string{"cardiac arrest", "pulseless electrical activity", "asystole", "ventricular fibrillation", "cardiopulmonary resuscitation", "code"}},
	{"anaphylaxis", []string{"anaphylaxis", "anaphylactic", "allergic reaction", "allergy"}},
	{"seizure", []string{"seizure", "seizures", "status epilepticus", "convulsion", "convulsions", "seizing"}},
	{"stroke", []string{"stroke", "cerebrovascular", "facial droop"}},
	{"acute coronary syndrome", []string{"acute coronary syndrome", "st elevation myocardial infarction", "myocardial infarction", "chest pain"}},
	{"overdose", []string{"overdose", "opioid", "poisoning", "toxic ingestion"}},
	{"hypoglycemia", []string{"hypoglycemia", "low blood sugar", "blood glucose", "diabetic"}},
	{"respiratory distress", []string{"asthma", "bronchospasm", "wheezing", "shortness of breath", "chronic obstructive pulmonary disease", "respiratory distress"}},
	{"tachycardia", []string{"supraventricular tachycardia", "ventricular tachycardia", "tachycardia", "atrial fibrillation"}},
	{"bradycardia", []string{"bradycardia", "heart block"}},
	{"pulmonary edema", []string{"pulmonary edema", "congestive heart failure"}},
	{"trauma", []string{"trauma", "hemorrhage", "traumatic brain injury", "bleeding"}},
	{"pain management", []string{"pain management", "analgesia", "pain"}},
	{"nausea", []string{"nausea", "vomiting"}},
	{"obstetrics", []string{"eclampsia", "preeclampsia", "delivery", "childbirth", "labor"}},
	{"altered mental status", []string{"altered mental status", "unconscious", "loss of consciousness", "syncope"}},
	{"behavioral emergency", []string{"agitation", "behavioral", "excited delirium", "combative"}},
	{"shock", []string{"shock", "sepsis", "hypotension"}},
}
