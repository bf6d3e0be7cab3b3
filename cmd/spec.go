package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/transitlab/destchoice/internal/logit"
)

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Inspect utility specification tables",
}

var specValidateCmd = &cobra.Command{
	Use:   "validate <spec-file>",
	Short: "Parse and compile a spec table, reporting any errors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sheet, _ := cmd.Flags().GetString("sheet")

		table, err := loadSpecTable(args[0], sheet)
		if err != nil {
			return eris.Wrap(err, "spec validate")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d rows, %d segment(s)\n", len(table.Rows), len(table.Segments))
		return nil
	},
}

var specShowCmd = &cobra.Command{
	Use:   "show <spec-file>",
	Short: "Print a spec table's rows and coefficients",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sheet, _ := cmd.Flags().GetString("sheet")

		table, err := loadSpecTable(args[0], sheet)
		if err != nil {
			return eris.Wrap(err, "spec show")
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		header := []string{"DESCRIPTION", "EXPRESSION"}
		for _, seg := range table.Segments {
			header = append(header, strings.ToUpper(seg))
		}
		fmt.Fprintln(tw, strings.Join(header, "\t"))
		for _, row := range table.Rows {
			cells := []string{row.Description, row.Expression}
			for _, c := range row.Coefficients {
				cells = append(cells, fmt.Sprintf("%.4f", c))
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		tw.Flush()
		return nil
	},
}

var specNestsCmd = &cobra.Command{
	Use:   "nests <nests-file>",
	Short: "Validate a nest tree and print its structure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nspec, err := logit.LoadNestSpec(resolveConfigPath(args[0]))
		if err != nil {
			return eris.Wrap(err, "spec nests")
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NEST\tCOEF\tPRODUCT")
		err = logit.WalkNests(nspec, false, func(n logit.Nest) error {
			indent := strings.Repeat("  ", n.Level-1)
			if n.IsLeaf() {
				fmt.Fprintf(tw, "%s%s\t-\t%.4f\n", indent, n.Name, n.ProductOfCoefficients)
				return nil
			}
			fmt.Fprintf(tw, "%s%s\t%.4f\t%.4f\n", indent, n.Name, n.Coefficient, n.ProductOfCoefficients)
			return nil
		})
		if err != nil {
			return eris.Wrap(err, "spec nests")
		}
		return tw.Flush()
	},
}

func init() {
	specValidateCmd.Flags().String("sheet", "", "sheet name for XLSX specs")
	specShowCmd.Flags().String("sheet", "", "sheet name for XLSX specs")

	specCmd.AddCommand(specValidateCmd)
	specCmd.AddCommand(specShowCmd)
	specCmd.AddCommand(specNestsCmd)
	rootCmd.AddCommand(specCmd)
}
