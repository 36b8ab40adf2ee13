// Package normalize turns raw responder text into a deterministic NormalizedQuery.
package normalize

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"protocol-rag/internal/domain"
)

var (
	tokenPattern   = regexp.MustCompile(`[\p{L}\p{N}]+(?:[./+-][\p{L}\p{N}]+)*%?`)
	numericPattern = regexp.MustCompile(`\p{N}`)
)

const minCorrectableLength = 5

// Normalizer is pure: the same input always yields the same output, which keeps
// retrieval cache keys stable. It holds only read-only tables.
type Normalizer struct {
	abbreviations [][]string // tokenized short forms, longest first
	expansions    map[string][]string
	vocabulary    []string
	vocabSet      map[string]struct{}
	abbrevTokens  map[string]struct{}
	conditions    []condition
}

// NewNormalizer builds a normalizer over the built-in clinical tables.
func NewNormalizer() *Normalizer {
	return newNormalizer(defaultAbbreviations, defaultVocabulary, defaultConditions)
}

func newNormalizer(abbrevs []abbreviation, vocabulary []string, conditions []condition) *Normalizer {
	n := &Normalizer{
		expansions:   make(map[string][]string, len(abbrevs)),
		vocabulary:   vocabulary,
		vocabSet:     make(map[string]struct{}, len(vocabulary)),
		abbrevTokens: make(map[string]struct{}),
		conditions:   conditions,
	}
	for _, a := range abbrevs {
		short := tokenize(a.short)
		key := strings.Join(short, " ")
		if _, dup := n.expansions[key]; dup {
			continue // first match wins
		}
		n.expansions[key] = tokenize(a.full)
		n.abbreviations = append(n.abbreviations, short)
		for _, t := range short {
			n.abbrevTokens[t] = struct{}{}
		}
	}
	// Longest abbreviation first so "v fib" is tried before a one-token match on "v".
	sort.SliceStable(n.abbreviations, func(i, j int) bool {
		if len(n.abbreviations[i]) != len(n.abbreviations[j]) {
			return len(n.abbreviations[i]) > len(n.abbreviations[j])
		}
		return len(strings.Join(n.abbreviations[i], " ")) > len(strings.Join(n.abbreviations[j], " "))
	})
	for _, v := range vocabulary {
		n.vocabSet[v] = struct{}{}
	}
	return n
}

// Normalize never fails. Text with no recognizable tokens normalizes to its
// lower-cased, trimmed self with no conditions.
func (n *Normalizer) Normalize(raw string) domain.NormalizedQuery {
	lowered := strings.TrimSpace(strings.ToLower(raw))
	tokens := tokenize(lowered)
	if len(tokens) == 0 {
		return domain.NormalizedQuery{Original: raw, Text: lowered, Conditions: []string{}}
	}

	tokens = n.expand(tokens)
	tokens = n.correct(tokens)
	text := strings.Join(tokens, " ")

	return domain.NormalizedQuery{
		Original:   raw,
		Text:       text,
		Conditions: n.extractConditions(tokens),
	}
}

// Variants returns the fusion query set: the normalized query followed by one
// variant per extracted condition, capped at maxVariants.
func (n *Normalizer) Variants(q domain.NormalizedQuery, maxVariants int) []domain.NormalizedQuery {
	variants := []domain.NormalizedQuery{q}
	seen := map[string]struct{}{q.Text: {}}
	for _, c := range q.Conditions {
		if maxVariants > 0 && len(variants) >= maxVariants {
			break
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		variants = append(variants, domain.NormalizedQuery{Original: q.Original, Text: c, Conditions: []string{c}})
	}
	return variants
}

func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

func (n *Normalizer) expand(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		matched := false
		for _, short := range n.abbreviations {
			if !hasPrefixTokens(tokens[i:], short) {
				continue
			}
			out = append(out, n.expansions[strings.Join(short, " ")]...)
			i += len(short)
			matched = true
			break
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return out
}

func hasPrefixTokens(tokens, prefix []string) bool {
	if len(prefix) == 0 || len(tokens) < len(prefix) {
		return false
	}
	for i := range prefix {
		if tokens[i] != prefix[i] {
			return false
		}
	}
	return true
}

// correct only moves a token onto a known clinical term; unknown words are left alone.
func (n *Normalizer) correct(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = n.correctToken(t)
	}
	return out
}

func (n *Normalizer) correctToken(t string) string {
	if _, ok := n.vocabSet[t]; ok {
		return t
	}
	if _, ok := n.abbrevTokens[t]; ok {
		return t
	}
	length := len([]rune(t))
	if length < minCorrectableLength || numericPattern.MatchString(t) || !isAlpha(t) {
		return t
	}
	budget := 1
	if length >= 8 {
		budget = 2
	}

	best, bestDist := "", budget+1
	for _, v := range n.vocabulary {
		if abs(len([]rune(v))-length) > budget {
			continue
		}
		d := levenshtein.ComputeDistance(t, v)
		if d < bestDist {
			best, bestDist = v, d
		}
	}
	if best == "" {
		return t
	}
	return best
}

func (n *Normalizer) extractConditions(tokens []string) []string {
	conditions := []string{}
	for _, c := range n.conditions {
		for _, kw := range c.keywords {
			if containsPhrase(tokens, tokenize(kw)) {
				conditions = append(conditions, c.name)
				break
			}
		}
	}
	return conditions
}

func containsPhrase(tokens, phrase []string) bool {
	for i := range tokens {
		if hasPrefixTokens(tokens[i:], phrase) {
			return true
		}
	}
	return false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
