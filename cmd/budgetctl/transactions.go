package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"smartbudget/internal/analytics"
	"smartbudget/internal/budget"
	"smartbudget/internal/core"
)

const dateLayout = "2006-01-02"

type txFlags struct {
	txType      string
	amount      string
	category    string
	description string
	date        string
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.txType, "type", "t", "expense", "income or expense")
	cmd.Flags().StringVarP(&f.amount, "amount", "a", "", "positive amount, e.g. 12.50")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "category, e.g. food, salary")
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "free text; defaults to the category name")
	cmd.Flags().StringVar(&f.date, "date", "", "YYYY-MM-DD (default today)")
}

func parseDay(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func (a *app) addCmd() *cobra.Command {
	var f txFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Example: `  budgetctl add --type expense --amount 45000 --category food --description Lunch
  budgetctl add -t income -a 1500000 -c salary --date 2025-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, store *budget.Store) error {
				loc := store.Location()
				date := time.Now().In(loc)
				if f.date != "" {
					var err error
					if date, err = parseDay(f.date, loc); err != nil {
						return err
					}
				}
				amount, err := core.ParseAmount(f.amount)
				if err != nil {
					return fmt.Errorf("amount %q: %w", f.amount, err)
				}

				draft := core.TransactionDraft{
					Type:        core.TransactionType(f.txType),
					Amount:      amount,
					Category:    core.Category(f.category),
					Description: f.description,
					Date:        date,
				}
				if err := draft.Validate(); err != nil {
					return err
				}
				tx, err := store.Add(ctx, draft.WithDefaultDescription())
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printJSON(cmd, tx)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s: %s %s (%s)\n",
					tx.ID, tx.Type, core.FormatAmount(tx.Amount, store.Settings().Currency), tx.Description)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var (
		txType   string
		category string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := analytics.Query{
				Type:     core.TransactionType(txType),
				Category: core.Category(category),
				Limit:    limit,
			}
			if q.Type != "" && !q.Type.IsValid() {
				return core.ErrInvalidType
			}
			if q.Category != "" && !q.Category.IsValid() {
				return core.ErrInvalidCategory
			}
			return a.withStore(cmd.Context(), func(_ context.Context, store *budget.Store) error {
				return a.printTransactions(cmd, store, store.Filter(q))
			})
		},
	}
	cmd.Flags().StringVarP(&txType, "type", "t", "", "only income or expense")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only this category")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "at most n transactions (0 = all)")
	return cmd
}

func (a *app) updateCmd() *cobra.Command {
	var f txFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a transaction; only flags given are applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, store *budget.Store) error {
				var patch core.TransactionPatch
				flags := cmd.Flags()
				if flags.Changed("type") {
					t := core.TransactionType(f.txType)
					patch.Type = &t
				}
				if flags.Changed("amount") {
					amount, err := core.ParseAmount(f.amount)
					if err != nil {
						return fmt.Errorf("amount %q: %w", f.amount, err)
					}
					patch.Amount = &amount
				}
				if flags.Changed("category") {
					c := core.Category(f.category)
					patch.Category = &c
				}
				if flags.Changed("description") {
					patch.Description = &f.description
				}
				if flags.Changed("date") {
					d, err := parseDay(f.date, store.Location())
					if err != nil {
						return err
					}
					patch.Date = &d
				}
				if patch.IsEmpty() {
					return fmt.Errorf("nothing to update: pass at least one of --type --amount --category --description --date")
				}
				if err := patch.Validate(); err != nil {
					return err
				}

				found, err := store.Update(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return a.reportFound(cmd, "Updated", args[0], found)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a transaction",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, store *budget.Store) error {
				found, err := store.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				return a.reportFound(cmd, "Deleted", args[0], found)
			})
		},
	}
}

func (a *app) monthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "month <year> <month>",
		Short: "List transactions dated in one calendar month (month is 1-12)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid year %q", args[0])
			}
			month, err := strconv.Atoi(args[1])
			if err != nil || month < 1 || month > 12 {
				return fmt.Errorf("invalid month %q: want 1-12", args[1])
			}
			return a.withStore(cmd.Context(), func(_ context.Context, store *budget.Store) error {
				return a.printTransactions(cmd, store, store.TransactionsByMonth(year, time.Month(month)))
			})
		},
	}
}

func (a *app) reportFound(cmd *cobra.Command, verb, id string, found bool) error {
	if a.jsonOut {
		return a.printJSON(cmd, map[string]bool{"found": found})
	}
	if !found {
		fmt.Fprintf(cmd.OutOrStdout(), "No transaction %s\n", id)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, id)
	return nil
}

func (a *app) printTransactions(cmd *cobra.Command, store *budget.Store, txs []core.Transaction) error {
	if a.jsonOut {
		return a.printJSON(cmd, txs)
	}
	out := cmd.OutOrStdout()
	if len(txs) == 0 {
		fmt.Fprintln(out, "No transactions.")
		return nil
	}
	currency := store.Settings().Currency
	return writeTable(out, []string{"ID", "DATE", "TYPE", "CATEGORY", "AMOUNT", "DESCRIPTION"}, func(w io.Writer) {
		for _, tx := range txs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				tx.ID,
				tx.Date.In(store.Location()).Format(dateLayout),
				tx.Type,
				tx.Category.Label(),
				core.FormatAmount(tx.Amount, currency),
				tx.Description)
		}
	})
}

func writeTable(out io.Writer, header []string, rows func(w io.Writer)) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	rows(w)
	return w.Flush()
}
