package invoice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/job"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) ObserveRun(run *job.Run) {
	m.Called(run)
}

var firstOfMarch = time.Date(2025, 3, 1, 0, 5, 0, 0, time.UTC)

type generatorScenario struct {
	store    *testutil.Store
	registry *pricing.FixedRegistry
	prop     property.Property
	monthly  property.Unit
	owner    property.Unit
	fixed    property.Unit
}

// newGeneratorScenario seeds a property with three occupied 2BR units: a
// monthly tenant at 20000, an owner occupier and a fixed lease through June.
func newGeneratorScenario() *generatorScenario {
	s := &generatorScenario{store: testutil.NewStore()}
	s.prop = s.store.AddProperty(property.Property{Name: "Riverside", OwnedBy: uuid.New()})
	s.registry = pricing.NewFixedRegistry(pricing.DefaultMonthlyRate).WithFee(s.prop.ID, "2BR", dec(2000))

	unit := func(number string, status property.UnitStatus) property.Unit {
		return s.store.AddUnit(property.Unit{
			PropertyID: s.prop.ID, UnitNumber: number, Type: "2BR",
			RentAmount: dec(20000), IsOccupied: true, Status: status,
		})
	}
	s.monthly = unit("101", property.UnitStatusRented)
	s.owner = unit("102", property.UnitStatusOwnerOccupied)
	s.fixed = unit("103", property.UnitStatusRented)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	s.store.AddTenant(property.Tenant{PropertyID: s.prop.ID, UnitID: s.monthly.ID, Name: "Monthly", RentalType: property.RentalTypeMonthly, RentAmount: dec(20000), IsActive: true})
	s.store.AddTenant(property.Tenant{PropertyID: s.prop.ID, UnitID: s.owner.ID, Name: "Owner", RentalType: property.RentalTypeOwnerOccupied, IsActive: true})
	s.store.AddTenant(property.Tenant{PropertyID: s.prop.ID, UnitID: s.fixed.ID, Name: "Fixed", RentalType: property.RentalTypeFixed, LeaseStartDate: &start, LeaseEndDate: &end, IsActive: true})
	return s
}

func (s *generatorScenario) generator(observer job.Observer) *Generator {
	return NewGenerator(s.store.Scope(), s.store, s.registry, nil, observer, nil).WithClock(fixedClock(firstOfMarch))
}

func TestGenerator_FirstOfMarchScenario(t *testing.T) {
	s := newGeneratorScenario()

	result := s.generator(nil).RunCurrent(context.Background(), "test")

	require.True(t, result.Success, result.Error)
	assert.Equal(t, invoice.Period{Month: 3, Year: 2025}, result.Period)
	assert.Equal(t, 3, result.Candidates)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, map[string]int{SkipFixedLease: 1}, result.Skipped)

	byUnit := map[uuid.UUID]invoice.Invoice{}
	for _, inv := range s.store.Invoices() {
		byUnit[inv.UnitID] = inv
	}
	require.Len(t, byUnit, 2)

	monthly := byUnit[s.monthly.ID]
	assert.True(t, monthly.Amount.Equal(dec(22000)))
	assert.True(t, monthly.TotalAmount.Equal(dec(22000)))
	assert.Equal(t, invoice.StatusIssued, monthly.Status)
	assert.False(t, monthly.IsPaid)
	assert.Equal(t, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), monthly.DueDate.UTC())

	owner := byUnit[s.owner.ID]
	assert.True(t, owner.IsOwnerOccupied)
	assert.True(t, owner.TotalAmount.Equal(dec(2000)))

	_, fixedBilled := byUnit[s.fixed.ID]
	assert.False(t, fixedBilled)

	runs := s.store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, job.NameMonthlyInvoices, runs[0].Job)
	assert.Equal(t, 2, runs[0].Created)
}

func TestGenerator_SecondRunCreatesNothing(t *testing.T) {
	s := newGeneratorScenario()
	gen := s.generator(nil)

	first := gen.RunCurrent(context.Background(), "test")
	second := gen.RunCurrent(context.Background(), "test")

	require.True(t, second.Success)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 1, second.Candidates, "only the skipped fixed lease unit remains a candidate")
	assert.Equal(t, 0, second.Created)
	assert.Len(t, s.store.Invoices(), 2)
}

func TestGenerator_SkipReasons(t *testing.T) {
	s := newGeneratorScenario()
	vacantish := s.store.AddUnit(property.Unit{PropertyID: s.prop.ID, UnitNumber: "104", Type: "2BR", IsOccupied: true, Status: property.UnitStatusMaintenance})
	orphan := s.store.AddUnit(property.Unit{PropertyID: uuid.New(), UnitNumber: "105", IsOccupied: true, Status: property.UnitStatusRented})
	s.store.AddTenant(property.Tenant{UnitID: orphan.ID, RentalType: property.RentalTypeMonthly, IsActive: true})
	s.store.AddUnit(property.Unit{PropertyID: s.prop.ID, UnitNumber: "106", Type: "2BR", IsOccupied: true, Status: property.UnitStatusRented})
	_ = vacantish

	result := s.generator(nil).RunCurrent(context.Background(), "test")

	require.True(t, result.Success)
	assert.Equal(t, 6, result.Candidates)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, map[string]int{
		SkipFixedLease: 1,
		SkipNotRented:  1,
		SkipNoProperty: 1,
		SkipNoTenant:   1,
	}, result.Skipped)
}

func TestGenerator_PerUnitFailureIsCountedAndBatchContinues(t *testing.T) {
	s := newGeneratorScenario()
	s.store.InvoiceCreateHook = func(inv *invoice.Invoice) error {
		if inv.UnitID == s.monthly.ID {
			return errors.New("disk full")
		}
		return nil
	}
	observer := new(mockObserver)
	observer.On("ObserveRun", mock.MatchedBy(func(r *job.Run) bool {
		return r.Job == job.NameMonthlyInvoices && r.Success && r.Errors == 1 && r.Created == 1
	})).Once()

	result := s.generator(observer).RunCurrent(context.Background(), "scheduler")

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Errors)
	assert.Len(t, s.store.Invoices(), 1)
	observer.AssertExpectations(t)
}

func TestGenerator_SequenceContinuesAfterExistingInvoices(t *testing.T) {
	s := newGeneratorScenario()
	gen := s.generator(nil)
	result := gen.Run(context.Background(), invoice.Period{Month: 7, Year: 2025}, "test")

	require.True(t, result.Success)
	assert.Equal(t, 3, result.Created, "the lease ended in June")
	seqs := map[string]bool{}
	for _, inv := range s.store.Invoices() {
		seqs[inv.InvoiceNumber[:12]] = true
	}
	assert.Equal(t, map[string]bool{"RIV-2507-001": true, "RIV-2507-002": true, "RIV-2507-003": true}, seqs)
}
