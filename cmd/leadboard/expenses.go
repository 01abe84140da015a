package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"leadboard/internal/allocation"
	"leadboard/internal/models"
)

func expensesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "Manage advertising expenses",
	}
	cmd.AddCommand(expensesListCmd(a))
	cmd.AddCommand(expensesAddCmd(a))
	cmd.AddCommand(expensesDeleteCmd(a))
	cmd.AddCommand(expensesTrendCmd(a))
	cmd.AddCommand(expensesAllocateCmd(a))
	return cmd
}

func expensesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			expenses, err := a.store.ListExpenses()
			if err != nil {
				return err
			}
			if len(expenses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No expenses found. Use 'leadboard expenses add' to create one.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTART\tEND\tSOURCE\tAMOUNT\tDESCRIPTION")
			for _, e := range expenses {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n", e.ID, e.StartDate, e.EndDate, e.Source, e.Amount, e.Description)
			}
			return w.Flush()
		},
	}
}

func expensesAddCmd(a *app) *cobra.Command {
	var start, end, source, description string
	var amount float64

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			startDay, err := parseDay(start)
			if err != nil {
				return err
			}
			endDay, err := parseDay(end)
			if err != nil {
				return err
			}

			created, err := a.store.CreateExpense(models.Expense{
				StartDate:   startDay,
				EndDate:     endDay,
				Source:      source,
				Amount:      amount,
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created expense %s\n", created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "first day the expense covers")
	cmd.Flags().StringVar(&end, "end", "", "last day the expense covers")
	cmd.Flags().StringVar(&source, "source", "", "lead source the money was spent on")
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount spent")
	cmd.Flags().StringVar(&description, "description", "", "free text note")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func expensesDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.DeleteExpense(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted expense %s\n", args[0])
			return nil
		},
	}
}

func expensesTrendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trend",
		Short: "Show spending per calendar month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			expenses, err := a.store.ListExpenses()
			if err != nil {
				return err
			}
			return printTrend(cmd.OutOrStdout(), allocation.MonthlyTrend(expenses))
		},
	}
}

func expensesAllocateCmd(a *app) *cobra.Command {
	var start, end string
	var sources []string

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Show the share of each expense that falls into a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			startDay, err := parseDay(start)
			if err != nil {
				return err
			}
			endDay, err := parseDay(end)
			if err != nil {
				return err
			}
			expenses, err := a.store.ListExpenses()
			if err != nil {
				return err
			}

			result := allocation.Allocate(expenses, startDay, endDay, sources)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSOURCE\tDAYS\tOVERLAP\tDAILY\tCOST")
			for _, b := range result.Breakdown {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2f\t%.2f\n",
					b.ID, b.Source, b.ExpenseTotalDays, b.OverlapDays, b.DailyCost, b.ProportionalCost)
			}
			fmt.Fprintf(w, "TOTAL\t\t\t\t\t%.2f\n", result.TotalCost)
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "range start")
	cmd.Flags().StringVar(&end, "end", "", "range end")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "only count expenses for these sources")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func printTrend(out io.Writer, trend []models.MonthlyExpense) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tTOTAL\tBY SOURCE")
	for _, m := range trend {
		sources := make([]string, 0, len(m.BySource))
		for source, amount := range m.BySource {
			sources = append(sources, fmt.Sprintf("%s=%.2f", source, amount))
		}
		sort.Strings(sources)
		fmt.Fprintf(w, "%s\t%.2f\t%s\n", m.Month, m.Total, strings.Join(sources, ", "))
	}
	return w.Flush()
}
