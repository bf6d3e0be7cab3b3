package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/transitlab/destchoice/internal/expr"
	"github.com/transitlab/destchoice/internal/spec"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <spec-file>",
	Short: "Evaluate a utility spec for a single chooser context",
	Long:  "Loads a specification table (CSV or XLSX) and computes the utility of one alternative from --field and --skim values.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		segment, _ := cmd.Flags().GetString("segment")
		sheet, _ := cmd.Flags().GetString("sheet")
		fieldArgs, _ := cmd.Flags().GetStringArray("field")
		skimArgs, _ := cmd.Flags().GetStringArray("skim")
		breakdown, _ := cmd.Flags().GetBool("breakdown")

		table, err := loadSpecTable(args[0], sheet)
		if err != nil {
			return err
		}

		fields, err := parseKVFloats(fieldArgs)
		if err != nil {
			return eris.Wrap(err, "evaluate: parse --field")
		}
		skims, err := parseKVFloats(skimArgs)
		if err != nil {
			return eris.Wrap(err, "evaluate: parse --skim")
		}

		ctx := expr.MapContext{Fields: fields, Skims: skims}

		if breakdown {
			contribs, total, err := table.Breakdown(segment, ctx)
			if err != nil {
				return eris.Wrap(err, "evaluate")
			}
			formatBreakdown(cmd.OutOrStdout(), contribs, total)
			return nil
		}

		utility, err := table.Utility(segment, ctx)
		if err != nil {
			return eris.Wrap(err, "evaluate")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%.6f\n", utility)
		return nil
	},
}

// loadSpecTable loads a spec table by file extension.
func loadSpecTable(path, sheet string) (*spec.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return spec.LoadXLSX(path, sheet)
	case ".csv":
		return spec.LoadCSV(path)
	default:
		return nil, eris.Errorf("unsupported spec file type: %s", path)
	}
}

// parseKVFloats parses repeated name=value flags into a map.
func parseKVFloats(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, eris.Errorf("expected name=value, got %q", p)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "value for %s", name)
		}
		out[name] = v
	}
	return out, nil
}

func formatBreakdown(w io.Writer, contribs []spec.RowContribution, total float64) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DESCRIPTION\tVALUE\tCOEF\tCONTRIBUTION")
	for _, c := range contribs {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\n", c.Description, c.Value, c.Coefficient, c.Contribution)
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%.4f\n", total)
	tw.Flush()
}

func init() {
	evaluateCmd.Flags().String("segment", "", "coefficient column to use (empty for single-segment specs)")
	evaluateCmd.Flags().String("sheet", "", "sheet name for XLSX specs")
	evaluateCmd.Flags().StringArray("field", nil, "chooser/alternative field as name=value (repeatable)")
	evaluateCmd.Flags().StringArray("skim", nil, "skim value as NAME=value (repeatable)")
	evaluateCmd.Flags().Bool("breakdown", false, "print per-row contributions")

	rootCmd.AddCommand(evaluateCmd)
}
