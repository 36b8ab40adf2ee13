package domain

import (
	"strings"
)

// SplitSentences splits protocol text at sentence boundaries.
// A boundary is '.', '!', '?' or ';' followed by whitespace or end of text, or a newline.
// Decimal points ("0.5 mg") never split because they are followed by a digit.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' || r == '\r' {
			flush()
			continue
		}
		current.WriteRune(r)

		switch r {
		case '.', '!', '?', ';':
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\t' || runes[i+1] == '\n' || runes[i+1] == '\r' {
				flush()
			}
		}
	}
	flush()

	return sentences
}

// SplitLines splits text into trimmed, non-empty lines.
func SplitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
