package guardrail

import (
	"fmt"
	"regexp"
	"strings"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/usecase/extract"
)

var (
	wordPattern   = regexp.MustCompile(`[\p{L}\p{N}]+(?:\.\p{N}+)?`)
	numberPattern = regexp.MustCompile(`^\p{N}+(?:\.\p{N}+)?$`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {}, "on": {},
	"for": {}, "with": {}, "by": {}, "at": {}, "is": {}, "are": {}, "be": {}, "as": {},
	"if": {}, "then": {}, "this": {}, "that": {}, "it": {}, "may": {}, "should": {}, "can": {},
	"per": {}, "from": {}, "every": {}, "patient": {}, "patients": {},
}

// claim is one clinical sentence of an answer.
type claim struct {
	text    string
	words   []string
	numbers []string
}

// analysis is the claim/support breakdown shared by several validators.
type analysis struct {
	claims      []claim
	unsupported []claim
	chunkText   string
}

func (a analysis) passRate() float64 {
	if len(a.claims) == 0 {
		if a.chunkText == "" {
			return 0
		}
		return 1
	}
	return float64(len(a.claims)-len(a.unsupported)) / float64(len(a.claims))
}

func (a analysis) failureRate() float64 {
	return 1 - a.passRate()
}

type chunkIndex struct {
	normalized string
	words      map[string]struct{}
}

// analyze splits the answer into clinical claims and checks each one against the chunks.
// A claim is supported by a chunk that contains it verbatim after normalization, or
// that shares at least minOverlap of its content words and every number it states.
func analyze(ex *extract.Extractor, answer string, chunks []domain.ScoredChunk, minOverlap float64) analysis {
	indexes := make([]chunkIndex, 0, len(chunks))
	var all strings.Builder
	for _, c := range chunks {
		words := tokens(c.Chunk.Content)
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		indexes = append(indexes, chunkIndex{normalized: " " + strings.Join(words, " ") + " ", words: set})
		all.WriteString(c.Chunk.Content)
		all.WriteString("\n")
	}

	a := analysis{chunkText: strings.TrimSpace(all.String())}
	for _, sentence := range domain.SplitSentences(answer) {
		if !isClinical(ex, sentence) {
			continue
		}
		c := newClaim(sentence)
		if len(c.words) == 0 {
			continue
		}
		a.claims = append(a.claims, c)
		if !supported(c, indexes, minOverlap) {
			a.unsupported = append(a.unsupported, c)
		}
	}
	return a
}

func isClinical(ex *extract.Extractor, sentence string) bool {
	return len(ex.Names(sentence)) > 0 || len(extract.Doses(sentence)) > 0 || extract.HasActionVerb(sentence)
}

func newClaim(sentence string) claim {
	c := claim{text: sentence, words: tokens(sentence)}
	for _, w := range c.words {
		if numberPattern.MatchString(w) {
			c.numbers = append(c.numbers, w)
		}
	}
	return c
}

func supported(c claim, indexes []chunkIndex, minOverlap float64) bool {
	phrase := " " + strings.Join(c.words, " ") + " "
	content := contentWords(c.words)
	for _, idx := range indexes {
		if strings.Contains(idx.normalized, phrase) {
			return true
		}
		if !allPresent(c.numbers, idx.words) {
			continue
		}
		if len(content) == 0 {
			continue
		}
		hit := 0
		for _, w := range content {
			if _, ok := idx.words[w]; ok {
				hit++
			}
		}
		if float64(hit)/float64(len(content)) >= minOverlap {
			return true
		}
	}
	return false
}

func tokens(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

func contentWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

func allPresent(needles []string, set map[string]struct{}) bool {
	for _, n := range needles {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

func unsupportedReasons(a analysis) []string {
	reasons := make([]string, 0, len(a.unsupported))
	for _, c := range a.unsupported {
		reasons = append(reasons, fmt.Sprintf("unsupported claim: %q", c.text))
	}
	return reasons
}

func topSimilarity(chunks []domain.ScoredChunk) float64 {
	top := 0.0
	for _, c := range chunks {
		top = max(top, c.Similarity)
	}
	return top
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
