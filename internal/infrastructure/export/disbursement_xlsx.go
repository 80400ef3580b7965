// Package export renders reports as spreadsheet downloads.
package export

import (
	"fmt"
	"io"

	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the MIME type of the generated workbook
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const disbursementSheet = "Disbursements"

var disbursementHeadings = []string{
	"Invoice Number",
	"Unit",
	"Unit Type",
	"Floor",
	"Tenant",
	"Owner",
	"Status",
	"Rent",
	"Service Charges",
	"Service Fee / Month",
	"Disbursable",
	"Disbursed",
	"Net Disbursed",
	"Disbursed On",
	"Undisbursed",
}

// DisbursementFilename names the download for a property and period
func DisbursementFilename(propertyName string, p invoice.Period) string {
	return fmt.Sprintf("disbursements-%s-%s.xlsx", invoice.PropertyPrefix(propertyName), p.String())
}

// WriteDisbursementReport writes the report as a single sheet workbook
// followed by a totals block
func WriteDisbursementReport(w io.Writer, report *invoice.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", disbursementSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("failed to create money style: %w", err)
	}

	for i, h := range disbursementHeadings {
		if err := setCell(f, i+1, 1, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(disbursementHeadings), 1)
	if err := f.SetCellStyle(disbursementSheet, "A1", last, header); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	row := 2
	for _, line := range report.Lines {
		inv := line.Invoice
		disbursedOn := ""
		if inv.Disbursement.DisbursedDate != nil {
			disbursedOn = inv.Disbursement.DisbursedDate.Format("2006-01-02")
		}
		values := []interface{}{
			inv.InvoiceNumber,
			line.UnitNumber,
			line.UnitType,
			line.FloorNumber,
			line.TenantName,
			line.OwnerName,
			string(inv.Status),
			amount(inv.Amount),
			amount(inv.TotalServiceCharges),
			amount(line.ServiceFeePerMonth),
			amount(line.DisbursableAmount),
			yesNo(inv.Disbursement.IsDisbursed),
			amount(inv.Disbursement.NetDisbursedAmount),
			disbursedOn,
			amount(line.UndisbursedDisbursableAmount),
		}
		for col, v := range values {
			if err := setCell(f, col+1, row, v); err != nil {
				return err
			}
		}
		row++
	}

	row++
	totals := []struct {
		label string
		value decimal.Decimal
	}{
		{"Collected Rent", report.Totals.CollectedRent},
		{"Collected Service Charges", report.Totals.CollectedServiceCharges},
		{"Total Disbursed", report.Totals.TotalDisbursed},
		{"Total Undisbursed", report.Totals.TotalUndisbursed},
	}
	for _, t := range totals {
		if err := setCell(f, 1, row, t.label); err != nil {
			return err
		}
		if err := setCell(f, 2, row, amount(t.value)); err != nil {
			return err
		}
		cell, _ := excelize.CoordinatesToCellName(2, row)
		if err := f.SetCellStyle(disbursementSheet, cell, cell, money); err != nil {
			return fmt.Errorf("failed to style totals: %w", err)
		}
		row++
	}

	if len(report.Lines) > 0 {
		first, _ := excelize.CoordinatesToCellName(8, 2)
		lastMoney, _ := excelize.CoordinatesToCellName(len(disbursementHeadings), len(report.Lines)+1)
		if err := f.SetCellStyle(disbursementSheet, first, lastMoney, money); err != nil {
			return fmt.Errorf("failed to style amounts: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, v interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(disbursementSheet, cell, v); err != nil {
		return fmt.Errorf("failed to set %s: %w", cell, err)
	}
	return nil
}

func amount(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
