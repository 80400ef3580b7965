package invoice

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kes(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newTestInvoice(t *testing.T, status Status, comp Composition) *Invoice {
	t.Helper()
	inv, err := NewInvoice(NewInvoiceParams{
		Number:      "SUN-2503-001-1234",
		PropertyID:  uuid.New(),
		UnitID:      uuid.New(),
		TenantID:    uuid.New(),
		Period:      Period{Month: 3, Year: 2025},
		Composition: comp,
		Status:      status,
		Now:         time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return inv
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusIssued, true},
		{StatusDraft, StatusPaid, true},
		{StatusDraft, StatusCancelled, true},
		{StatusIssued, StatusPaid, true},
		{StatusIssued, StatusCancelled, false},
		{StatusPaid, StatusCancelled, true},
		{StatusPaid, StatusRefunded, true},
		{StatusPaid, StatusIssued, false},
		{StatusCancelled, StatusPaid, false},
		{StatusRefunded, StatusPaid, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusPaid.IsTerminal())
}

func TestNewInvoice_Composition(t *testing.T) {
	charges := ServiceCharges{
		{ServiceID: uuid.New(), ServiceName: "Water", Amount: kes(500)},
		{ServiceID: uuid.New(), ServiceName: "Security", Amount: kes(300)},
	}

	t.Run("regular tenant pays rent plus fee", func(t *testing.T) {
		inv := newTestInvoice(t, StatusIssued, Composition{Rent: kes(20000), ServiceFee: kes(2000), ServiceCharges: charges})
		assert.True(t, inv.Amount.Equal(kes(22000)))
		assert.True(t, inv.RentOnlyAmount.Equal(kes(20000)))
		assert.True(t, inv.TotalServiceCharges.Equal(kes(800)))
		assert.True(t, inv.TotalAmount.Equal(kes(22800)))
		assert.False(t, inv.IsOwnerOccupied)
		assert.Equal(t, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), inv.DueDate)
		assert.Len(t, inv.PendingEvents(), 1)
	})

	t.Run("owner occupied pays fee only", func(t *testing.T) {
		inv := newTestInvoice(t, StatusIssued, Composition{Rent: kes(20000), ServiceFee: kes(2000), OwnerOccupied: true})
		assert.True(t, inv.Amount.Equal(kes(2000)))
		assert.True(t, inv.OwnerServiceFeeAmount.Equal(kes(2000)))
		assert.True(t, inv.RentOnlyAmount.IsZero())
		assert.True(t, inv.TotalAmount.Equal(kes(2000)))
	})
}

func TestNewInvoice_Validation(t *testing.T) {
	_, err := NewInvoice(NewInvoiceParams{Number: "X", PropertyID: uuid.New(), UnitID: uuid.New(), TenantID: uuid.New(),
		Period: Period{Month: 13, Year: 2025}, Status: StatusIssued})
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = NewInvoice(NewInvoiceParams{Number: "X", PropertyID: uuid.New(), UnitID: uuid.New(), TenantID: uuid.New(),
		Period: Period{Month: 3, Year: 2025}, Status: StatusPaid})
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = NewInvoice(NewInvoiceParams{Number: "", Period: Period{Month: 3, Year: 2025}, Status: StatusIssued})
	assert.Error(t, err)
}

func TestNewInvoice_LeaseStart(t *testing.T) {
	base := func() NewInvoiceParams {
		return NewInvoiceParams{Number: "X", PropertyID: uuid.New(), UnitID: uuid.New(), TenantID: uuid.New(),
			Period: Period{Month: LeaseMonth, Year: 2025}, Status: StatusDraft, Composition: Composition{Rent: kes(100000)}}
	}

	_, err := NewInvoice(base())
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	nairobi := time.FixedZone("EAT", 3*60*60)
	start := time.Date(2025, 2, 1, 9, 30, 0, 0, nairobi)
	p := base()
	p.LeaseStart = &start
	inv, err := NewInvoice(p)
	require.NoError(t, err)
	require.NotNil(t, inv.LeaseStart)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), *inv.LeaseStart)

	monthly := base()
	monthly.Period = Period{Month: 3, Year: 2025}
	monthly.LeaseStart = &start
	_, err = NewInvoice(monthly)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestInvoice_MarkPaid(t *testing.T) {
	t.Run("on time", func(t *testing.T) {
		inv := newTestInvoice(t, StatusIssued, Composition{Rent: kes(10000)})
		require.NoError(t, inv.MarkPaid(Payment{Method: PaymentMethodCash, Reference: "CASH-1", PaidAt: time.Date(2025, 4, 5, 23, 0, 0, 0, time.UTC)}))
		assert.Equal(t, StatusPaid, inv.Status)
		assert.True(t, inv.IsPaid)
		assert.False(t, inv.IsLate)
		assert.Equal(t, "CASH-1", inv.PaymentReference)
	})

	t.Run("late after the 5th of the following month", func(t *testing.T) {
		inv := newTestInvoice(t, StatusIssued, Composition{Rent: kes(10000)})
		require.NoError(t, inv.MarkPaid(Payment{Method: PaymentMethodBank, PaidAt: time.Date(2025, 4, 6, 0, 0, 0, 0, time.UTC)}))
		assert.True(t, inv.IsLate)
	})

	t.Run("paying twice is rejected", func(t *testing.T) {
		inv := newTestInvoice(t, StatusDraft, Composition{Rent: kes(10000)})
		require.NoError(t, inv.MarkPaid(Payment{Method: PaymentMethodMpesa, ReceiptNumber: "QK123"}))
		assert.Equal(t, "QK123", inv.ReceiptNumber)
		assert.ErrorIs(t, inv.MarkPaid(Payment{Method: PaymentMethodCash}), ErrAlreadyPaid)
	})
}

func TestInvoice_Cancel(t *testing.T) {
	actor := uuid.New()
	at := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	t.Run("paid invoice is cancelled with actor and time", func(t *testing.T) {
		inv := newTestInvoice(t, StatusIssued, Composition{Rent: kes(10000)})
		require.NoError(t, inv.MarkPaid(Payment{Method: PaymentMethodCash}))
		require.NoError(t, inv.Cancel(actor, at))
		assert.Equal(t, StatusCancelled, inv.Status)
		assert.Equal(t, actor, *inv.CancelledBy)
		assert.Equal(t, at, *inv.CancelledAt)
		assert.False(t, inv.IsActive())
	})

	for _, status := range []Status{StatusDraft, StatusIssued} {
		t.Run("non paid "+string(status)+" is rejected", func(t *testing.T) {
			inv := newTestInvoice(t, status, Composition{Rent: kes(10000)})
			err := inv.Cancel(actor, at)
			assert.ErrorIs(t, err, shared.ErrInvalidState)
			assert.Equal(t, status, inv.Status)
			assert.Nil(t, inv.CancelledAt)
		})
	}
}

func TestInvoice_AwaitGatewayKeepsStatus(t *testing.T) {
	issued := newTestInvoice(t, StatusIssued, Composition{Rent: kes(10000)})
	require.NoError(t, issued.AwaitGateway(PaymentMethodMpesa, "254712345678"))
	assert.Equal(t, StatusIssued, issued.Status)

	draft := newTestInvoice(t, StatusDraft, Composition{Rent: kes(10000)})
	require.NoError(t, draft.AwaitGateway(PaymentMethodMpesa, "254712345678"))
	assert.Equal(t, StatusDraft, draft.Status)
	assert.Equal(t, "254712345678", draft.PhoneNumber)
}

func TestInvoice_SetServiceChargesRecomputesTotal(t *testing.T) {
	inv := newTestInvoice(t, StatusIssued, Composition{Rent: kes(10000), ServiceFee: kes(1000)})
	require.NoError(t, inv.SetServiceCharges(ServiceCharges{{ServiceName: "Garbage", Amount: kes(250)}}))
	assert.True(t, inv.TotalAmount.Equal(kes(11250)))

	require.NoError(t, inv.MarkPaid(Payment{Method: PaymentMethodCash}))
	assert.ErrorIs(t, inv.SetServiceCharges(nil), shared.ErrInvalidState)
}

func TestServiceCharges_ValueScan(t *testing.T) {
	in := ServiceCharges{{ServiceID: uuid.New(), ServiceName: "Water", Amount: kes(500)}}
	v, err := in.Value()
	require.NoError(t, err)

	var out ServiceCharges
	require.NoError(t, out.Scan(v))
	require.Len(t, out, 1)
	assert.Equal(t, "Water", out[0].ServiceName)

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)
	assert.Error(t, out.Scan(42))
}
