package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteDisbursementReport(t *testing.T) {
	period := invoice.Period{Month: 3, Year: 2025}
	disbursedOn := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)

	paid := invoice.Invoice{
		InvoiceNumber:       "SUN-2503-001-0420",
		Status:              invoice.StatusPaid,
		IsPaid:              true,
		Amount:              decimal.NewFromInt(22000),
		TotalServiceCharges: decimal.NewFromInt(500),
		Disbursement: invoice.Disbursement{
			IsDisbursed:        true,
			NetDisbursedAmount: decimal.NewFromInt(20000),
			DisbursedDate:      &disbursedOn,
		},
	}
	report := &invoice.Report{
		PropertyID: uuid.New(),
		Period:     period,
		Lines: []invoice.ReportLine{{
			ReportRow: invoice.ReportRow{
				Invoice:     paid,
				UnitNumber:  "A1",
				UnitType:    "2BR",
				FloorNumber: 2,
				TenantName:  "Tenant A1",
				OwnerName:   "Owner A1",
			},
			ServiceFeePerMonth:           decimal.NewFromInt(2000),
			DisbursableAmount:            decimal.NewFromInt(20000),
			UndisbursedDisbursableAmount: decimal.Zero,
		}},
		Totals: invoice.ReportTotals{
			CollectedRent:           decimal.NewFromInt(22000),
			CollectedServiceCharges: decimal.NewFromInt(500),
			TotalDisbursed:          decimal.NewFromInt(20000),
			TotalUndisbursed:        decimal.Zero,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteDisbursementReport(&buf, report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(disbursementSheet)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 7)

	assert.Equal(t, disbursementHeadings, rows[0])
	assert.Equal(t, "SUN-2503-001-0420", rows[1][0])
	assert.Equal(t, "A1", rows[1][1])
	assert.Equal(t, "Tenant A1", rows[1][4])
	assert.Equal(t, "Yes", rows[1][11])
	assert.Equal(t, "2025-04-02", rows[1][13])

	rent, err := f.GetCellValue(disbursementSheet, "H2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "22000", rent)

	assert.Equal(t, "Collected Rent", rows[3][0])
	assert.Equal(t, "Total Undisbursed", rows[6][0])
}

func TestWriteDisbursementReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDisbursementReport(&buf, &invoice.Report{Period: invoice.Period{Month: 1, Year: 2025}}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(disbursementSheet)
	require.NoError(t, err)
	assert.Equal(t, disbursementHeadings, rows[0])
}

func TestDisbursementFilename(t *testing.T) {
	assert.Equal(t, "disbursements-SUN-2025-03.xlsx", DisbursementFilename("Sunset Apartments", invoice.Period{Month: 3, Year: 2025}))
}
