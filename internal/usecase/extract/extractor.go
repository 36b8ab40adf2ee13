// Package extract mines medications, doses, routes, contraindications and key
// points out of free-text protocol passages.
//
// Extraction is pattern-based and scoped to the drugs in the built-in table.
// Every function is pure; empty or non-clinical text yields empty slices.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"protocol-rag/internal/domain"
)

var (
	structuredLinePattern = regexp.MustCompile(`^(?:\d{1,2}[.)]|[-*•▪◦]|[a-zA-Z][.)])\s+(.+)$`)
	whitespacePattern     = regexp.MustCompile(`\s+`)
)

var routeAliases = map[string]string{
	"ivp":           "iv push",
	"intravenous":   "iv",
	"intramuscular": "im",
	"intraosseous":  "io",
	"intranasal":    "in",
	"sq":            "subq",
	"neb":           "nebulized",
}

// Extractor runs the ordered medication table over text.
type Extractor struct {
	medications []medicationPattern
}

// NewExtractor creates an Extractor over the built-in medication table.
func NewExtractor() *Extractor {
	return &Extractor{medications: defaultMedications}
}

type nameMatch struct {
	pattern int
	start   int
	end     int
}

// Medications returns the medications mentioned in text in table order, then
// text order, each with the first dose and route found in its window.
// Duplicates by (name, dose, route) keep the first occurrence.
func (e *Extractor) Medications(text string) []domain.ExtractedMedication {
	result := []domain.ExtractedMedication{}
	if strings.TrimSpace(text) == "" {
		return result
	}

	var matches []nameMatch
	for i, p := range e.medications {
		for _, loc := range p.Matcher.FindAllStringIndex(text, -1) {
			matches = append(matches, nameMatch{pattern: i, start: loc[0], end: loc[1]})
		}
	}
	if len(matches) == 0 {
		return result
	}

	starts := make([]int, len(matches))
	for i, m := range matches {
		starts[i] = m.start
	}
	sort.Ints(starts)

	seen := make(map[string]struct{})
	// matches is already grouped by table order, then text order within a pattern.
	for _, m := range matches {
		window := doseWindowText(text, m.end, nextStart(starts, m.end))
		med := domain.ExtractedMedication{
			Name:  e.medications[m.pattern].Name,
			Dose:  findDose(window, e.medications[m.pattern].Unit),
			Route: findRoute(window),
		}
		key := med.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, med)
	}
	return result
}

// Names returns the distinct medication names mentioned in text, in table order.
func (e *Extractor) Names(text string) []string {
	names := []string{}
	for _, p := range e.medications {
		if p.Matcher.MatchString(text) {
			names = append(names, p.Name)
		}
	}
	return names
}

// Contraindications keeps sentences carrying a contraindication signal.
func (e *Extractor) Contraindications(text string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, sentence := range domain.SplitSentences(text) {
		if len(out) >= maxContraindications {
			break
		}
		n := len(sentence)
		if n < minContraindicationLen || n > maxContraindicationLen {
			continue
		}
		if !containsAny(strings.ToLower(sentence), contraindicationSignals) {
			continue
		}
		if _, dup := seen[sentence]; dup {
			continue
		}
		seen[sentence] = struct{}{}
		out = append(out, sentence)
	}
	return out
}

// KeyPoints prefers numbered or bulleted lines. With fewer than three of those it
// adds sentences that contain an action verb. Lines equal to the title are skipped.
func (e *Extractor) KeyPoints(text, title string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	normalizedTitle := collapse(title)

	add := func(point string) bool {
		point = strings.TrimSpace(point)
		if point == "" || len(point) > maxKeyPointLen {
			return false
		}
		key := collapse(point)
		if key == normalizedTitle {
			return false
		}
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		out = append(out, point)
		return len(out) >= maxKeyPoints
	}

	for _, line := range domain.SplitLines(text) {
		if m := structuredLinePattern.FindStringSubmatch(line); m != nil {
			if add(m[1]) {
				return out
			}
		}
	}
	if len(out) >= minStructuredKeyPoints {
		return out
	}

	for _, sentence := range domain.SplitSentences(text) {
		if structuredLinePattern.MatchString(sentence) {
			sentence = structuredLinePattern.FindStringSubmatch(sentence)[1]
		}
		if !hasActionVerb(sentence) {
			continue
		}
		if add(sentence) {
			break
		}
	}
	return out
}

func nextStart(sortedStarts []int, after int) int {
	i := sort.SearchInts(sortedStarts, after)
	if i < len(sortedStarts) {
		return sortedStarts[i]
	}
	return -1
}

// doseWindowText is the text after a medication name up to the sentence end,
// the next medication mention, or doseWindow bytes, whichever comes first.
func doseWindowText(text string, from, nextMention int) string {
	end := min(len(text), from+doseWindow)
	if nextMention >= 0 && nextMention < end {
		end = nextMention
	}
	if s := sentenceEnd(text, from, end); s >= 0 {
		end = s
	}
	return text[from:end]
}

func sentenceEnd(text string, from, limit int) int {
	for i := from; i < limit; i++ {
		switch text[i] {
		case '\n', '\r':
			return i
		case '.', '!', '?', ';':
			if i+1 >= len(text) || isSpace(text[i+1]) {
				return i
			}
		}
	}
	return -1
}

// findDose returns the first dose in window whose unit the medication accepts.
func findDose(window string, kind unitKind) string {
	for _, loc := range dosePattern.FindAllStringSubmatchIndex(window, -1) {
		unit := strings.ToLower(window[loc[2]:loc[3]])
		if !kind.accepts(unit) {
			continue
		}
		return strings.ToLower(whitespacePattern.ReplaceAllString(window[loc[0]:loc[1]], " "))
	}
	return ""
}

func findRoute(window string) string {
	route, at := "", -1
	if loc := routePattern.FindStringIndex(window); loc != nil {
		route = strings.ToLower(whitespacePattern.ReplaceAllString(window[loc[0]:loc[1]], " "))
		at = loc[0]
	}
	if loc := intranasalUpper.FindStringIndex(window); loc != nil && (at < 0 || loc[0] < at) {
		route = "in"
	}
	if alias, ok := routeAliases[route]; ok {
		return alias
	}
	return route
}

// DoseMention is one dose found in text and the medication it is attributed to.
// Medication is empty when no medication could be resolved.
type DoseMention struct {
	Medication string
	Dose       string
}

// DoseMentions returns every dose in text, in text order, each attributed to the
// nearest medication name in the same sentence, before or after it. Names whose
// unit kind accepts the dose unit are preferred; on equal distance the earlier
// name wins. A dose in a sentence without any medication belongs to the last
// medication named before that sentence.
func (e *Extractor) DoseMentions(text string) []DoseMention {
	out := []DoseMention{}
	doses := dosePattern.FindAllStringSubmatchIndex(text, -1)
	if len(doses) == 0 {
		return out
	}

	var names []nameMatch
	for i, p := range e.medications {
		for _, loc := range p.Matcher.FindAllStringIndex(text, -1) {
			names = append(names, nameMatch{pattern: i, start: loc[0], end: loc[1]})
		}
	}
	sort.SliceStable(names, func(i, j int) bool { return names[i].start < names[j].start })

	for _, loc := range doses {
		start, end := loc[0], loc[1]
		unit := strings.ToLower(text[loc[2]:loc[3]])
		from, to := sentenceBounds(text, start)

		m := DoseMention{Dose: strings.ToLower(whitespacePattern.ReplaceAllString(text[start:end], " "))}
		if idx := e.nearestName(names, start, end, from, to, unit); idx >= 0 {
			m.Medication = e.medications[names[idx].pattern].Name
		} else {
			for i := len(names) - 1; i >= 0; i-- {
				if names[i].end <= from {
					m.Medication = e.medications[names[i].pattern].Name
					break
				}
			}
		}
		out = append(out, m)
	}
	return out
}

// nearestName returns the index in names of the medication closest to the dose at
// [start, end) within the sentence [from, to), or -1.
func (e *Extractor) nearestName(names []nameMatch, start, end, from, to int, unit string) int {
	best, bestDist, bestAccepts := -1, 0, false
	for i, n := range names {
		if n.start < from || n.end > to {
			continue
		}
		var dist int
		switch {
		case n.end <= start:
			dist = start - n.end
		case n.start >= end:
			dist = n.start - end
		default:
			continue
		}
		accepts := e.medications[n.pattern].Unit.accepts(unit)
		switch {
		case best < 0,
			accepts && !bestAccepts,
			accepts == bestAccepts && dist < bestDist:
			best, bestDist, bestAccepts = i, dist, accepts
		}
	}
	return best
}

// sentenceBounds returns the sentence around pos as [from, to).
func sentenceBounds(text string, pos int) (int, int) {
	from := 0
	for i := pos - 1; i >= 0; i-- {
		c := text[i]
		if c == '\n' || c == '\r' {
			from = i + 1
			break
		}
		if (c == '.' || c == '!' || c == '?' || c == ';') && i+1 < len(text) && isSpace(text[i+1]) {
			from = i + 1
			break
		}
	}
	to := len(text)
	if s := sentenceEnd(text, pos, len(text)); s >= 0 {
		to = s
	}
	return from, to
}

// Doses returns every dose mention in text, lower-cased, in text order.
func Doses(text string) []string {
	out := []string{}
	for _, m := range dosePattern.FindAllString(text, -1) {
		out = append(out, strings.ToLower(whitespacePattern.ReplaceAllString(m, " ")))
	}
	return out
}

// HasActionVerb reports whether sentence contains a clinical instruction verb.
func HasActionVerb(sentence string) bool {
	return hasActionVerb(sentence)
}

func hasActionVerb(sentence string) bool {
	words := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	for _, w := range words {
		for _, verb := range actionVerbs {
			if w == verb {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.ToLower(strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " ")))
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
