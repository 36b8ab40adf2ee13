package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"protocol-rag/internal/domain"
)

// PromptInput contains the pieces that feed into the prompt builder.
type PromptInput struct {
	Query         string
	PromptVersion string
	Hits          []domain.ScoredChunk
}

// PromptBuilder builds the chat messages sent to the LLM.
type PromptBuilder interface {
	Build(input PromptInput) ([]domain.Message, error)
}

// XMLPromptBuilder creates structured prompts that separate context, instructions, query, and format.
type XMLPromptBuilder struct {
	additionalInstructions []string
}

// NewXMLPromptBuilder creates a prompt builder with optional extra instructions appended.
func NewXMLPromptBuilder(additionalInstructions ...string) PromptBuilder {
	return &XMLPromptBuilder{
		additionalInstructions: additionalInstructions,
	}
}

var protocolInstructions = []string{
	"You answer EMS field protocol questions based ONLY on the provided <context>.",
	"1. Read every <document> in the <context> before answering.",
	"2. Answer the <query> using strictly the statements in the <context>. Do not add external clinical knowledge.",
	"3. State medication names, doses, units and routes exactly as written in the cited document. Never convert or round a dose.",
	"4. Keep the answer short: one statement per sentence, at most 8 sentences.",
	"5. End every sentence with the [chunk_id] of the document that supports it.",
	"6. The \"citations\" array must list every chunk_id used in the answer.",
	"7. If the context does not answer the query, set \"fallback\": true and leave \"answer\" empty.",
	"8. Follow the JSON format specified below EXACTLY.",
}

// Build renders the Messages for Chat API.
func (b *XMLPromptBuilder) Build(input PromptInput) ([]domain.Message, error) {
	if input.PromptVersion == "" {
		return nil, fmt.Errorf("prompt version is required")
	}
	if len(input.Hits) == 0 {
		return nil, fmt.Errorf("at least one grounding chunk is required")
	}

	var sysSb strings.Builder
	sysSb.WriteString("<instructions>\n")
	for _, inst := range append(append([]string{}, protocolInstructions...), b.additionalInstructions...) {
		sysSb.WriteString("  <line>")
		sysSb.WriteString(escape(inst))
		sysSb.WriteString("</line>\n")
	}
	sysSb.WriteString("</instructions>\n\n")

	sysSb.WriteString("<format>\n")
	sysSb.WriteString("JSON: {\n")
	sysSb.WriteString("  \"answer\": \"Plain text statements... [chunk_id]\",\n")
	sysSb.WriteString("  \"citations\": [{\"chunk_id\":\"...\"}],\n")
	sysSb.WriteString("  \"fallback\": false,  // Set true ONLY if the context does not answer the query\n")
	sysSb.WriteString("  \"reason\": \"\"  // Explain why fallback is true, if applicable\n")
	sysSb.WriteString("}\n")
	sysSb.WriteString("</format>\n")

	var userSb strings.Builder
	userSb.WriteString(fmt.Sprintf("<context version=\"%s\">\n", escape(input.PromptVersion)))
	for _, hit := range input.Hits {
		c := hit.Chunk
		userSb.WriteString("  <document>\n")
		writeElement(&userSb, "chunk_id", strconv.FormatInt(c.ID, 10))
		writeElement(&userSb, "title", c.ProtocolTitle)
		writeElement(&userSb, "agency", agencyLabel(c))
		writeElement(&userSb, "protocol_number", c.ProtocolNumber)
		if c.Section != "" {
			writeElement(&userSb, "section", c.Section)
		}
		writeElement(&userSb, "protocol_year", strconv.Itoa(c.ProtocolYear))
		writeElement(&userSb, "similarity", fmt.Sprintf("%.6f", hit.Similarity))
		writeElement(&userSb, "chunk_text", c.Content)
		userSb.WriteString("  </document>\n")
	}
	userSb.WriteString("</context>\n\n")

	userSb.WriteString("<query>\n")
	userSb.WriteString(escape(input.Query))
	userSb.WriteString("\n</query>\n")

	return []domain.Message{
		{Role: "system", Content: sysSb.String()},
		{Role: "user", Content: userSb.String()},
	}, nil
}

func writeElement(sb *strings.Builder, name, value string) {
	sb.WriteString("    <")
	sb.WriteString(name)
	sb.WriteString(">")
	sb.WriteString(escape(value))
	sb.WriteString("</")
	sb.WriteString(name)
	sb.WriteString(">\n")
}

func agencyLabel(c domain.ProtocolChunk) string {
	if c.AgencyName != "" {
		return c.AgencyName
	}
	return "agency " + strconv.FormatInt(c.AgencyID, 10)
}

func escape(value string) string {
	s := strings.TrimSpace(value)
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(s)
}
