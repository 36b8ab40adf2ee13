package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	rag_http "protocol-rag/internal/adapter/rag_http"
	"protocol-rag/internal/domain"
)

// Printer renders API responses for a terminal.
type Printer struct {
	out       io.Writer
	useColors bool
}

func NewPrinter(out io.Writer, useColors bool) *Printer {
	return &Printer{out: out, useColors: useColors && resolveColors()}
}

func resolveColors() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// DecisionBadge colors the decision: release green, downgrade yellow, block red.
func (p *Printer) DecisionBadge(d domain.Decision) string {
	label := strings.ToUpper(string(d))
	if !p.useColors {
		return "[" + label + "]"
	}
	switch d {
	case domain.DecisionRelease:
		return color.New(color.FgGreen, color.Bold).Sprint(label)
	case domain.DecisionDowngrade:
		return color.New(color.FgYellow, color.Bold).Sprint(label)
	default:
		return color.New(color.FgRed, color.Bold).Sprint(label)
	}
}

func (p *Printer) header(title string) {
	if p.useColors {
		color.New(color.FgWhite, color.Bold).Fprintf(p.out, "\n%s\n", title)
		return
	}
	fmt.Fprintf(p.out, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
}

// Answer prints an ask response.
func (p *Printer) Answer(resp *rag_http.AskResponse) {
	v := resp.Verdict
	fmt.Fprintf(p.out, "%s  confidence=%.2f citations_ok=%t dose_ok=%t\n",
		p.DecisionBadge(v.Decision), v.Confidence, v.CitationsOK, v.DoseOK)

	if resp.Answer != "" {
		fmt.Fprintf(p.out, "\n%s\n", resp.Answer)
	} else if resp.Message != "" {
		fmt.Fprintf(p.out, "\n%s\n", resp.Message)
	}

	if len(resp.Citations) > 0 {
		p.header("Sources")
		rows := make([][]string, 0, len(resp.Citations))
		for _, c := range resp.Citations {
			rows = append(rows, []string{
				fmt.Sprintf("%d", c.ChunkID),
				agencyLabel(c.AgencyName, c.AgencyID),
				c.ProtocolNumber,
				c.ProtocolTitle,
				fmt.Sprintf("%.3f", c.Similarity),
			})
		}
		p.table([]string{"CHUNK", "AGENCY", "NUMBER", "TITLE", "SIMILARITY"}, rows)
	}

	for _, r := range v.Reasons {
		fmt.Fprintf(p.out, "  - %s\n", r)
	}
}

// Comparison prints a compare response as a medication table and a summary.
func (p *Printer) Comparison(result *domain.ComparisonResult) {
	if len(result.Protocols) == 0 {
		fmt.Fprintln(p.out, "No protocols matched the query.")
		return
	}

	p.header("Protocols")
	rows := make([][]string, 0, len(result.Protocols))
	for _, cp := range result.Protocols {
		meds := make([]string, 0, len(cp.Medications))
		for _, m := range cp.Medications {
			meds = append(meds, medicationLabel(m))
		}
		rows = append(rows, []string{
			agencyLabel(cp.Chunk.AgencyName, cp.Chunk.AgencyID),
			cp.Chunk.ProtocolTitle,
			strings.Join(meds, "; "),
			fmt.Sprintf("%.3f", cp.Similarity),
		})
	}
	p.table([]string{"AGENCY", "PROTOCOL", "MEDICATIONS", "SIMILARITY"}, rows)

	s := result.Summary
	p.header("Summary")
	fmt.Fprintf(p.out, "Common: %s\n", joinOrNone(s.CommonMedications))
	fmt.Fprintf(p.out, "Varying: %s\n", joinOrNone(s.VaryingMedications))
	for _, d := range s.KeyDifferences {
		fmt.Fprintf(p.out, "  - %s\n", d)
	}
}

func (p *Printer) table(headers []string, rows [][]string) {
	table := tablewriter.NewTable(p.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	table.Header(headers)
	_ = table.Bulk(rows)
	_ = table.Render()
}

func agencyLabel(name string, id int64) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("agency %d", id)
}

func medicationLabel(m domain.ExtractedMedication) string {
	parts := []string{m.Name}
	if m.Dose != "" {
		parts = append(parts, m.Dose)
	}
	if m.Route != "" {
		parts = append(parts, m.Route)
	}
	return strings.Join(parts, " ")
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
