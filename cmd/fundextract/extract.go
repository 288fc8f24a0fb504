package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"fund_extractor/pkg/core/pipeline"
	"fund_extractor/pkg/models"
)

func extractCmd(cfgPath *string) *cobra.Command {
	var (
		asJSON      bool
		concurrency int
		persist     bool
	)
	cmd := &cobra.Command{
		Use:   "extract <files...>",
		Short: "Run the extraction pipeline on local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			outcomes := a.processor.ProcessFiles(cmd.Context(), args, concurrency, persist)
			out := cmd.OutOrStdout()
			if asJSON {
				err = writeJSON(out, outcomes)
			} else {
				err = writeSummary(out, outcomes)
			}
			if err != nil {
				return err
			}

			if failed := countFailed(outcomes); failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "files processed at once")
	cmd.Flags().BoolVar(&persist, "store", false, "append results to the configured store")
	return cmd
}

type fileOutput struct {
	File   string                  `json:"file"`
	Result *models.PortfolioResult `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

func writeJSON(w io.Writer, outcomes []pipeline.Outcome) error {
	rows := make([]fileOutput, len(outcomes))
	for i, o := range outcomes {
		rows[i] = fileOutput{File: o.Path, Result: o.Result}
		if o.Err != nil {
			rows[i].Error = o.Err.Error()
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writeSummary(w io.Writer, outcomes []pipeline.Outcome) error {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err != nil {
		return err
	}
	out, err := r.Render(summaryMarkdown(outcomes))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// summaryMarkdown renders one section per file: fund details, a holdings
// table and any warnings.
func summaryMarkdown(outcomes []pipeline.Outcome) string {
	var b strings.Builder
	for _, o := range outcomes {
		fmt.Fprintf(&b, "# %s\n\n", o.Path)
		if o.Err != nil {
			fmt.Fprintf(&b, "**Failed:** %s\n\n", mdEscape(o.Err.Error()))
			continue
		}
		res := o.Result
		info, _ := res.RawData["fund_info"].(map[string]any)
		fmt.Fprintf(&b, "| Fund | Type | AUM | Currency |\n|---|---|---|---|\n| %s | %s | %s | %s |\n\n",
			cell(info["name"]), cell(info["type"]), amount(res), cell(info["currency"]))

		fmt.Fprintf(&b, "## Holdings (%d)\n\n", len(res.Holdings))
		if len(res.Holdings) > 0 {
			b.WriteString("| Stock | ISIN | Sector | % | Value |\n|---|---|---|---|---|\n")
			for _, h := range res.Holdings {
				row, _ := h.Data.(map[string]any)
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
					cell(row["stock_name"]), cell(row["isin"]), cell(row["sector"]), cell(row["percentage"]), cell(row["value"]))
			}
			b.WriteString("\n")
		}

		fmt.Fprintf(&b, "## Sectors (%d)\n\n", len(res.Sectors))
		for _, s := range res.Sectors {
			row, _ := s.Data.(map[string]any)
			fmt.Fprintf(&b, "- %s: %s\n", cell(row["name"]), cell(row["allocation"]))
		}
		if len(res.Sectors) > 0 {
			b.WriteString("\n")
		}

		for _, warning := range res.Warnings {
			fmt.Fprintf(&b, "> %s\n\n", mdEscape(warning))
		}
	}
	return b.String()
}

func amount(res *models.PortfolioResult) string {
	if len(res.Entities.FormattedAmounts) > 0 {
		return res.Entities.FormattedAmounts[0]
	}
	if len(res.Entities.Amounts) > 0 {
		return res.Entities.Amounts[0]
	}
	return ""
}

func cell(v any) string {
	if v == nil {
		return ""
	}
	return mdEscape(fmt.Sprint(v))
}

func mdEscape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

func countFailed(outcomes []pipeline.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
