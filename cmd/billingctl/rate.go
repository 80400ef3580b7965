package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	billingapp "github.com/propledger/backend/internal/application/billing"
	"github.com/propledger/backend/internal/domain/identity"
)

var changeRateCmd = &cobra.Command{
	Use:   "change-rate",
	Short: "Set the platform rate per unit",
	Long: `Record a new platform rate and re-price the unpaid developer billing
invoices from the later of today and --effective-from. Paid invoices keep
the amount they were issued with.`,
	Example: `  billingctl change-rate --amount 150
  billingctl change-rate --amount 150 --effective-from 2026-03-01`,
	RunE: runChangeRate,
}

func init() {
	rootCmd.AddCommand(changeRateCmd)

	changeRateCmd.Flags().String("amount", "", "New rate per unit per month (required)")
	changeRateCmd.Flags().String("effective-from", "", "First day the rate applies, YYYY-MM-DD")
	_ = changeRateCmd.MarkFlagRequired("amount")
}

func runChangeRate(cmd *cobra.Command, _ []string) error {
	rawAmount, _ := cmd.Flags().GetString("amount")
	rawFrom, _ := cmd.Flags().GetString("effective-from")

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return fmt.Errorf("invalid --amount %q: %w", rawAmount, err)
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	command := billingapp.ChangeRateCommand{Amount: amount}
	if rawFrom != "" {
		from, err := time.ParseInLocation(time.DateOnly, rawFrom, s.app.Config.App.Location())
		if err != nil {
			return fmt.Errorf("invalid --effective-from %q: %w", rawFrom, err)
		}
		command.EffectiveFrom = &from
	}

	operator := identity.SystemPrincipal()
	operator.Name = "billingctl"
	result, err := s.app.Billing.ChangeRate(cmd.Context(), operator, command)
	if err != nil {
		return err
	}
	return printResult(cmd, result)
}
