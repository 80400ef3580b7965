package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/infrastructure/scheduler"
)

var generateCmd = &cobra.Command{
	Use:   "generate-invoices",
	Short: "Generate the monthly rent invoices",
	Long: `Generate the rent invoice of every occupied unit for a billing period.
Units that already have an invoice for the period are skipped.`,
	Example: `  # Current month
  billingctl generate-invoices

  # A specific period
  billingctl generate-invoices --month 3 --year 2025`,
	RunE: runGenerate,
}

var remindersCmd = &cobra.Command{
	Use:   "send-reminders",
	Short: "Flag unpaid invoices of the previous month",
	RunE:  runReminders,
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate-billing",
	Short: "Regenerate the developer billing invoices of a year",
	Long: `Regenerate the consolidated developer billing invoices of a year.
Without --force the run only happens in January. With --force the unpaid
invoices of the year are deleted and issued again.`,
	Example: `  billingctl regenerate-billing --year 2026 --force`,
	RunE:    runRegenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd, remindersCmd, regenerateCmd)

	generateCmd.Flags().Int("month", 0, "Billing month 1-12 (default: current month)")
	generateCmd.Flags().Int("year", 0, "Billing year (default: current year)")

	regenerateCmd.Flags().Int("year", 0, "Year to regenerate (default: current year)")
	regenerateCmd.Flags().Bool("force", false, "Delete and reissue unpaid invoices outside January")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	month, _ := cmd.Flags().GetInt("month")
	year, _ := cmd.Flags().GetInt("year")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	return s.locked(cmd.Context(), scheduler.JobMonthlyInvoices, func(ctx context.Context) error {
		var period *invoice.Period
		if month != 0 || year != 0 {
			now := time.Now().In(s.app.Config.App.Location())
			if month == 0 {
				month = int(now.Month())
			}
			if year == 0 {
				year = now.Year()
			}
			p, err := invoice.NewPeriod(month, year)
			if err != nil {
				return err
			}
			period = &p
		}

		if period == nil {
			result := s.app.Generator.RunCurrent(ctx, triggeredBy())
			return finish(cmd, result, result.Success)
		}
		result := s.app.Generator.Run(ctx, *period, triggeredBy())
		return finish(cmd, result, result.Success)
	})
}

func runReminders(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	return s.locked(cmd.Context(), scheduler.JobPaymentReminder, func(ctx context.Context) error {
		result := s.app.Reminders.Run(ctx, triggeredBy())
		return finish(cmd, result, result.Success)
	})
}

func runRegenerate(cmd *cobra.Command, _ []string) error {
	year, _ := cmd.Flags().GetInt("year")
	force, _ := cmd.Flags().GetBool("force")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if year == 0 {
		year = time.Now().In(s.app.Config.App.Location()).Year()
	}
	return s.locked(cmd.Context(), scheduler.JobYearlyBilling, func(ctx context.Context) error {
		result := s.app.Billing.RegenerateYear(ctx, year, force, triggeredBy())
		return finish(cmd, result, result.Success || !result.Ran)
	})
}

func finish(cmd *cobra.Command, result any, ok bool) error {
	if err := printResult(cmd, result); err != nil {
		return err
	}
	if !ok {
		return errJobFailed
	}
	return nil
}
