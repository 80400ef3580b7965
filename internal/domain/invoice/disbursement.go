package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DisbursableAmount is what the owner is owed for this invoice given the
// current service fee. Owner occupied invoices carry only the fee, so nothing
// is disbursable.
func (i *Invoice) DisbursableAmount(serviceFee decimal.Decimal) decimal.Decimal {
	if i.IsOwnerOccupied {
		return decimal.Zero
	}
	net := i.Amount.Sub(serviceFee)
	if net.IsNegative() {
		return decimal.Zero
	}
	return net
}

// MarkDisbursed records the payout to the owner once. The fee is snapshotted
// here and never recomputed when the registry changes later.
func (i *Invoice) MarkDisbursed(serviceFee decimal.Decimal, d DisbursementDetails) error {
	if i.Disbursement.IsDisbursed {
		return ErrAlreadyDisbursed
	}
	if i.Status != StatusPaid || !i.IsPaid {
		return ErrNotPaid.WithMessage("Only paid invoices can be disbursed")
	}

	fee := serviceFee
	switch {
	case i.IsOwnerOccupied:
		fee = i.Amount
	case fee.IsNegative():
		fee = decimal.Zero
	case fee.GreaterThan(i.Amount):
		fee = i.Amount
	}
	net := i.Amount.Sub(fee)

	date := d.PaymentDate
	if date.IsZero() {
		date = time.Now()
	}
	i.Disbursement = Disbursement{
		IsDisbursed:        true,
		DisbursedAmount:    net,
		DisbursedBy:        d.ActorID,
		DisbursedDate:      &date,
		Method:             d.Method,
		Reference:          d.Reference,
		Notes:              d.Notes,
		ServiceFeeAmount:   fee,
		NetDisbursedAmount: net,
	}
	i.touch()

	i.AddDomainEvent(NewInvoiceDisbursedEvent(i))
	return nil
}

// ReportRow is one invoice joined with its unit, floor, tenant and owner
type ReportRow struct {
	Invoice     Invoice
	UnitNumber  string
	UnitType    string
	FloorNumber int
	TenantName  string
	OwnerID     *uuid.UUID
	OwnerName   string
}

// ReportLine is a report row with the derived disbursement amounts
type ReportLine struct {
	ReportRow
	ServiceFeePerMonth           decimal.Decimal
	DisbursableAmount            decimal.Decimal
	UndisbursedDisbursableAmount decimal.Decimal
}

// ReportTotals sums a disbursement report
type ReportTotals struct {
	CollectedRent           decimal.Decimal
	CollectedServiceCharges decimal.Decimal
	TotalDisbursed          decimal.Decimal
	TotalUndisbursed        decimal.Decimal
}

// Report is the disbursement projection for a property and period
type Report struct {
	PropertyID uuid.UUID
	Period     Period
	Lines      []ReportLine
	Totals     ReportTotals
}

// FeeLookup resolves the current service fee for a unit type
type FeeLookup func(unitType string) decimal.Decimal

// BuildReport projects joined rows into a disbursement report. Cancelled
// invoices are excluded.
func BuildReport(propertyID uuid.UUID, period Period, rows []ReportRow, fee FeeLookup) Report {
	report := Report{
		PropertyID: propertyID,
		Period:     period,
		Lines:      make([]ReportLine, 0, len(rows)),
		Totals: ReportTotals{
			CollectedRent:           decimal.Zero,
			CollectedServiceCharges: decimal.Zero,
			TotalDisbursed:          decimal.Zero,
			TotalUndisbursed:        decimal.Zero,
		},
	}

	for _, row := range rows {
		inv := row.Invoice
		if inv.Status == StatusCancelled {
			continue
		}

		perMonth := fee(row.UnitType)
		line := ReportLine{
			ReportRow:                    row,
			ServiceFeePerMonth:           perMonth,
			DisbursableAmount:            inv.DisbursableAmount(perMonth),
			UndisbursedDisbursableAmount: decimal.Zero,
		}

		if inv.IsPaid {
			report.Totals.CollectedRent = report.Totals.CollectedRent.Add(inv.Amount)
			report.Totals.CollectedServiceCharges = report.Totals.CollectedServiceCharges.Add(inv.TotalServiceCharges)
			if inv.Disbursement.IsDisbursed {
				report.Totals.TotalDisbursed = report.Totals.TotalDisbursed.Add(inv.Disbursement.NetDisbursedAmount)
			} else {
				line.UndisbursedDisbursableAmount = line.DisbursableAmount
				report.Totals.TotalUndisbursed = report.Totals.TotalUndisbursed.Add(line.DisbursableAmount)
			}
		}

		report.Lines = append(report.Lines, line)
	}
	return report
}
