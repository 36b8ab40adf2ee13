package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"protocol-rag/internal/domain"
)

var (
	citationMarker = regexp.MustCompile(`\s*\[(\d+(?:\s*,\s*\d+)*)\]`)
	codeFence      = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	blankRun       = regexp.MustCompile(`[ \t]{2,}`)
)

// OutputValidator parses the LLM output and resolves its citations against the
// retrieved chunks. It does not judge the answer; the guardrail gate does.
type OutputValidator struct{}

// NewOutputValidator creates a validator instance (currently stateless).
func NewOutputValidator() OutputValidator {
	return OutputValidator{}
}

// LLMAnswer is the parsed generation output.
type LLMAnswer struct {
	// Answer has the inline [chunk_id] markers removed.
	Answer string
	// CitedChunkIDs are the retrieved chunk ids the answer cites, in first-cited order.
	CitedChunkIDs []int64
	// UnknownCitations are cited ids that were not retrieved for this request.
	UnknownCitations []string
	Fallback         bool
	Reason           string
}

// rawAnswer models the JSON output the prompt format section enforces.
type rawAnswer struct {
	Answer    string        `json:"answer"`
	Citations []rawCitation `json:"citations"`
	Fallback  bool          `json:"fallback"`
	Reason    string        `json:"reason"`
}

type rawCitation struct {
	ChunkID chunkRef `json:"chunk_id"`
}

// chunkRef accepts both "12" and 12.
type chunkRef string

func (r *chunkRef) UnmarshalJSON(b []byte) error {
	*r = chunkRef(strings.Trim(strings.TrimSpace(string(b)), `"`))
	return nil
}

// Validate parses raw. Well-formed JSON is preferred; truncated JSON falls back to the
// answer field alone, and anything else is taken as plain text with inline markers.
func (v OutputValidator) Validate(raw string, hits []domain.ScoredChunk) (*LLMAnswer, error) {
	trimmed := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}
	if trimmed == "" {
		return nil, errors.New("llm response is empty")
	}

	var parsed rawAnswer
	switch {
	case strings.HasPrefix(trimmed, "{"):
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			answer, ok := extractAnswerOnly(trimmed)
			if !ok {
				return nil, fmt.Errorf("failed to parse llm response: %w", err)
			}
			parsed = rawAnswer{Answer: answer}
		}
	default:
		parsed = rawAnswer{Answer: trimmed}
	}

	parsed.Answer = convertLiteralEscapes(parsed.Answer)
	if strings.TrimSpace(parsed.Answer) == "" && !parsed.Fallback {
		return nil, errors.New("empty answer without fallback")
	}

	refs := make([]string, 0, len(parsed.Citations))
	for _, c := range parsed.Citations {
		if id := strings.TrimSpace(string(c.ChunkID)); id != "" {
			refs = append(refs, id)
		}
	}
	for _, m := range citationMarker.FindAllStringSubmatch(parsed.Answer, -1) {
		for _, id := range strings.Split(m[1], ",") {
			refs = append(refs, strings.TrimSpace(id))
		}
	}

	out := &LLMAnswer{
		Answer:   stripMarkers(parsed.Answer),
		Fallback: parsed.Fallback,
		Reason:   parsed.Reason,
	}
	out.CitedChunkIDs, out.UnknownCitations = resolveCitations(refs, hits)
	return out, nil
}

func resolveCitations(refs []string, hits []domain.ScoredChunk) ([]int64, []string) {
	allowed := make(map[int64]struct{}, len(hits))
	for _, h := range hits {
		allowed[h.Chunk.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(refs))
	var cited []int64
	var unknown []string
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		id, err := strconv.ParseInt(ref, 10, 64)
		if err != nil {
			unknown = append(unknown, ref)
			continue
		}
		if _, ok := allowed[id]; !ok {
			unknown = append(unknown, ref)
			continue
		}
		cited = append(cited, id)
	}
	return cited, unknown
}

func stripMarkers(answer string) string {
	lines := strings.Split(citationMarker.ReplaceAllString(answer, ""), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(blankRun.ReplaceAllString(line, " "), " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractAnswerOnly recovers the "answer" string value from JSON cut off after it.
func extractAnswerOnly(s string) (string, bool) {
	idx := strings.Index(s, `"answer"`)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimLeft(s[idx+len(`"answer"`):], " \t\r\n")
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	rest = strings.TrimLeft(rest[1:], " \t\r\n")
	if !strings.HasPrefix(rest, `"`) {
		return "", false
	}

	escaped := false
	for i := 1; i < len(rest); i++ {
		switch {
		case escaped:
			escaped = false
		case rest[i] == '\\':
			escaped = true
		case rest[i] == '"':
			var value string
			if err := json.Unmarshal([]byte(rest[:i+1]), &value); err != nil {
				return "", false
			}
			return value, true
		}
	}
	return "", false
}

// convertLiteralEscapes turns a literal backslash-n emitted by some models into a newline.
func convertLiteralEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return strings.NewReplacer(`\r\n`, "\n", `\n`, "\n", `\t`, "\t").Replace(s)
}
