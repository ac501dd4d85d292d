package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"smartbudget/internal/assistant"
	"smartbudget/internal/budget"
	"smartbudget/internal/core"
	"smartbudget/internal/sheets"
	gsheets "smartbudget/internal/sheets/google"
	"smartbudget/internal/sheets/xlsx"
)

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show total income, expense, balance and savings rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(_ context.Context, store *budget.Store) error {
				sum := store.Summary()
				if a.jsonOut {
					return a.printJSON(cmd, sum)
				}
				currency := store.Settings().Currency
				return writeTable(cmd.OutOrStdout(), []string{"INCOME", "EXPENSE", "BALANCE", "SAVINGS RATE"}, func(w io.Writer) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\n",
						core.FormatAmount(sum.TotalIncome, currency),
						core.FormatAmount(sum.TotalExpense, currency),
						core.FormatAmount(sum.Balance, currency),
						sum.SavingsRate)
				})
			})
		},
	}
}

func (a *app) breakdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "breakdown",
		Short: "Show expense totals per category, largest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(_ context.Context, store *budget.Store) error {
				rows := store.Breakdown()
				if a.jsonOut {
					return a.printJSON(cmd, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No expenses.")
					return nil
				}
				currency := store.Settings().Currency
				return writeTable(cmd.OutOrStdout(), []string{"CATEGORY", "AMOUNT", "SHARE", "COUNT"}, func(w io.Writer) {
					for _, r := range rows {
						fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%d\n",
							r.Category.Label(), core.FormatAmount(r.Amount, currency), r.Percentage, r.TransactionCount)
					}
				})
			})
		},
	}
}

func (a *app) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change user preferences",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(_ context.Context, store *budget.Store) error {
				return a.printSettings(cmd, store.Settings())
			})
		},
	}

	var (
		language      string
		currency      string
		notifications string
	)
	set := &cobra.Command{
		Use:     "set",
		Short:   "Change one or more settings",
		Example: `  budgetctl settings set --language ru --currency usd --notifications=false`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var patch core.SettingsPatch
			flags := cmd.Flags()
			if flags.Changed("language") {
				l := core.Language(strings.ToLower(strings.TrimSpace(language)))
				if !l.IsValid() {
					return fmt.Errorf("invalid language %q: must be en, uz or ru", language)
				}
				patch.Language = &l
			}
			if flags.Changed("currency") {
				c := strings.ToUpper(strings.TrimSpace(currency))
				if c == "" {
					return fmt.Errorf("currency cannot be empty")
				}
				patch.Currency = &c
			}
			if flags.Changed("notifications") {
				b, err := strconv.ParseBool(notifications)
				if err != nil {
					return fmt.Errorf("invalid notifications value %q: want true or false", notifications)
				}
				patch.Notifications = &b
			}
			if patch.Language == nil && patch.Currency == nil && patch.Notifications == nil {
				return fmt.Errorf("nothing to set: pass at least one of --language --currency --notifications")
			}

			return a.withStore(cmd.Context(), func(ctx context.Context, store *budget.Store) error {
				s, err := store.UpdateSettings(ctx, patch)
				if err != nil {
					return err
				}
				return a.printSettings(cmd, s)
			})
		},
	}
	set.Flags().StringVar(&language, "language", "", "en, uz or ru")
	set.Flags().StringVar(&currency, "currency", "", "display currency code, e.g. UZS")
	set.Flags().StringVar(&notifications, "notifications", "", "true or false")

	cmd.AddCommand(show, set)
	return cmd
}

func (a *app) printSettings(cmd *cobra.Command, s core.Settings) error {
	if a.jsonOut {
		return a.printJSON(cmd, s)
	}
	return writeTable(cmd.OutOrStdout(), []string{"LANGUAGE", "CURRENCY", "NOTIFICATIONS"}, func(w io.Writer) {
		fmt.Fprintf(w, "%s\t%s\t%t\n", s.Language, s.Currency, s.Notifications)
	})
}

func (a *app) toolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tool [name]",
		Short: "Run an assistant tool and print its JSON output; without a name, list the tools",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, store *budget.Store) error {
				tb := assistant.NewToolbox(store, a.logger)
				if len(args) == 0 {
					if a.jsonOut {
						return a.printJSON(cmd, tb.Describe())
					}
					return writeTable(cmd.OutOrStdout(), []string{"NAME", "DESCRIPTION"}, func(w io.Writer) {
						for _, t := range tb.Describe() {
							fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
						}
					})
				}
				out, err := tb.Call(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var (
		sheetName string
		xlsxPath  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Rewrite the configured Google Sheet, or an .xlsx file, with every transaction",
		Long: `export clears the sheet named by GOOGLE_SHEET_NAME (or --sheet) in
GOOGLE_SPREADSHEET_ID and writes one row per transaction, newest first.
Service account credentials are read from GOOGLE_SERVICE_ACCOUNT_JSON,
GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.

With --xlsx the same rows are written to a local Excel workbook instead.`,
		Example: `  budgetctl export
  budgetctl export --xlsx ./budget.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sheetName == "" {
				sheetName = a.cfg.GoogleSheetName
			}

			var (
				mirror sheets.TransactionMirror
				target string
			)
			if xlsxPath != "" {
				mirror = xlsx.NewFileMirror(xlsxPath, sheetName, a.logger)
				target = xlsxPath
			} else {
				client, err := gsheets.NewFromEnv(cmd.Context(), a.cfg.GoogleSpreadsheetID, sheetName, a.logger)
				if err != nil {
					return err
				}
				mirror = client
				target = sheetName
			}

			return a.withStore(cmd.Context(), func(ctx context.Context, store *budget.Store) error {
				txs := store.Transactions()
				if err := mirror.Replace(ctx, txs); err != nil {
					return fmt.Errorf("export: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d transactions to %s\n", len(txs), target)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sheetName, "sheet", "", "sheet (tab) name; defaults to GOOGLE_SHEET_NAME")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write an Excel workbook to this path instead of Google Sheets")
	return cmd
}
