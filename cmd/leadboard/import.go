package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func importCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the stored leads with a spreadsheet",
		Long: `Import reads an .xlsx or .csv file and replaces every stored lead with its rows.
The previous collection is kept as a backup. A file that cannot be read leaves
the stored leads untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := a.importer.Import(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s from %s\n", result.Message, result.FileName)
			fmt.Fprintf(out, "quality score: %.1f%%\n", result.Quality.QualityScore)
			for _, issue := range result.Quality.CommonIssues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
			return nil
		},
	}
}
