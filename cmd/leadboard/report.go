package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"leadboard/internal/comparison"
	"leadboard/internal/dates"
	"leadboard/internal/export"
	"leadboard/internal/filter"
	"leadboard/internal/models"
)

type reportOptions struct {
	comparisonID string
	start, end   string
	filters      models.Filters
	asJSON       bool
	export       bool
}

func reportCmd(a *app) *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print metrics for the saved comparisons or an ad-hoc filter",
		Long: `Report evaluates every saved comparison against the stored leads and expenses.

With --start, --end or any filter flag a single ad-hoc comparison is evaluated
instead. Open date bounds fall back to the range covered by the data.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.report(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.comparisonID, "comparison", "", "only report the saved comparison with this id")
	cmd.Flags().StringVar(&opts.start, "start", "", "range start (YYYY-MM-DD or DD.MM.YYYY)")
	cmd.Flags().StringVar(&opts.end, "end", "", "range end (YYYY-MM-DD or DD.MM.YYYY)")
	cmd.Flags().StringSliceVar(&opts.filters.Sources, "source", nil, "keep only these sources")
	cmd.Flags().StringSliceVar(&opts.filters.Operators, "operator", nil, "keep only these operators")
	cmd.Flags().StringSliceVar(&opts.filters.Statuses, "status", nil, "keep only these statuses")
	cmd.Flags().StringSliceVar(&opts.filters.WhoMeasured, "measurer", nil, "keep only these measurers")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the full results as JSON")
	cmd.Flags().BoolVar(&opts.export, "export", false, "also deliver the report to the configured sink")
	cmd.MarkFlagsMutuallyExclusive("comparison", "start")
	cmd.MarkFlagsMutuallyExclusive("comparison", "end")

	return cmd
}

func (o *reportOptions) adHoc() bool {
	return o.start != "" || o.end != "" || !o.filters.IsEmpty()
}

func (a *app) report(cmd *cobra.Command, opts *reportOptions) error {
	leads, err := a.store.Leads()
	if err != nil {
		return fmt.Errorf("failed to load leads: %w", err)
	}
	expenses, err := a.store.ListExpenses()
	if err != nil {
		return fmt.Errorf("failed to load expenses: %w", err)
	}

	today := models.DayOf(time.Now())
	var results []models.ComparisonResult

	if opts.adHoc() && opts.comparisonID == "" {
		cfg, err := opts.comparison()
		if err != nil {
			return err
		}
		results = append(results, a.evaluator.Evaluate(cfg, leads, expenses, filter.DataRange(leads, today)))
	} else {
		list, err := a.store.ListComparisons()
		if err != nil {
			return fmt.Errorf("failed to load comparisons: %w", err)
		}
		list = comparison.Ensure(list, models.DateRange{})
		results = a.evaluator.EvaluateAll(list, leads, expenses, today)
		if opts.comparisonID != "" {
			results, err = pick(results, opts.comparisonID)
			if err != nil {
				return err
			}
		}
	}

	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else if err := printResults(cmd.OutOrStdout(), results); err != nil {
		return err
	}

	if opts.export {
		return a.exporter.Export(cmd.Context(), a.config.SinkURL, export.ToRecords(results))
	}
	return nil
}

func (o *reportOptions) comparison() (models.Comparison, error) {
	start, err := parseDay(o.start)
	if err != nil {
		return models.Comparison{}, err
	}
	end, err := parseDay(o.end)
	if err != nil {
		return models.Comparison{}, err
	}
	return models.Comparison{
		Name:      "Отчёт",
		Filters:   o.filters,
		DateRange: models.DateRange{StartDate: start, EndDate: end},
	}, nil
}

func pick(results []models.ComparisonResult, id string) ([]models.ComparisonResult, error) {
	for _, r := range results {
		if r.Comparison.ID == id {
			return []models.ComparisonResult{r}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", comparison.ErrNotFound, id)
}

// parseDay accepts YYYY-MM-DD as well as the lead date forms. Empty means unbounded.
func parseDay(s string) (models.Day, error) {
	if s == "" {
		return models.Day{}, nil
	}
	if d, err := models.ParseDay(s); err == nil {
		return d, nil
	}
	if d, ok := dates.ParseString(s); ok {
		return d, nil
	}
	return models.Day{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
}

func printResults(out io.Writer, results []models.ComparisonResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRANGE\tLEADS\tMEASUREMENTS\tCONTRACTS\tREFUSALS\tCONVERSION\tCOST/LEAD\tBUDGET\tROI")
	for _, r := range results {
		m := r.Metrics
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%.1f%%\t%.0f\t%.0f\t%s\n",
			r.Comparison.Name, r.Comparison.DateRange, m.OriginalTotal, m.Measurements,
			m.Contracts, m.Refusals, m.ConversionRate, m.CostPerLead, m.Budget, m.ROI)
	}
	return w.Flush()
}
