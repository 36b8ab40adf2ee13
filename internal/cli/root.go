package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	rag_http "protocol-rag/internal/adapter/rag_http"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *Config
	out     io.Writer
}

// NewRootCommand builds the protocolctl command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:   "protocolctl",
		Short: "Query the EMS protocol service",
		Long: `protocolctl asks protocol questions and compares protocols across agencies
through the protocol-rag HTTP API.

Example usage:
  protocolctl ask "epi dose cardiac arrest" --state CA
  protocolctl compare "peds seizure midazolam" --max 5
  protocolctl ask "stroke scale" --json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is .protocolctl.yaml)")
	root.PersistentFlags().String("server", "", "protocol-rag base URL")
	root.PersistentFlags().Bool("no-color", false, "disable colored output")
	root.PersistentFlags().Bool("json", false, "print the raw JSON response")
	_ = a.v.BindPFlag("server.url", root.PersistentFlags().Lookup("server"))

	root.AddCommand(a.askCommand(), a.compareCommand())
	return root
}

func (a *app) askCommand() *cobra.Command {
	var (
		state  string
		agency int64
	)
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Ask a protocol question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := rag_http.AskRequest{Query: strings.Join(args, " ")}
			if state != "" {
				req.State = &state
			}
			if agency > 0 {
				req.AgencyID = &agency
			}

			resp, err := a.client().Ask(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.jsonOutput(cmd) {
				return a.writeJSON(resp)
			}
			a.printer(cmd).Answer(resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "two-letter state code")
	cmd.Flags().Int64Var(&agency, "agency", 0, "agency id")
	return cmd
}

func (a *app) compareCommand() *cobra.Command {
	var (
		state      string
		maxResults int
	)
	cmd := &cobra.Command{
		Use:   "compare <query>",
		Short: "Compare protocols across agencies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := rag_http.CompareRequest{Query: strings.Join(args, " ")}
			if state != "" {
				req.State = &state
			}
			if maxResults > 0 {
				req.MaxResults = &maxResults
			}

			result, err := a.client().Compare(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.jsonOutput(cmd) {
				return a.writeJSON(result)
			}
			a.printer(cmd).Comparison(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "two-letter state code")
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum protocols to compare (1-10)")
	return cmd
}

func (a *app) client() *Client {
	return NewClient(a.cfg.Server.URL, a.cfg.Server.Timeout)
}

func (a *app) jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func (a *app) printer(cmd *cobra.Command) *Printer {
	noColor, _ := cmd.Flags().GetBool("no-color")
	return NewPrinter(a.out, a.cfg.Output.Colors && !noColor)
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
