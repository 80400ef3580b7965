package invoice

import (
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/identity"
	"github.com/propledger/backend/internal/domain/pricing"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/tests/testutil"
	"github.com/shopspring/decimal"
)

type fixture struct {
	store     *testutil.Store
	registry  *pricing.FixedRegistry
	publisher *testutil.RecordingPublisher

	developer property.Contact
	caretaker uuid.UUID
	prop      property.Property
	floor     property.Floor
	unit      property.Unit
	tenant    property.Tenant
	tenantUID uuid.UUID
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

// newFixture seeds one property with a rented 1BR unit at 10000 rent, a 1000
// service fee and a mandatory 500 water charge.
func newFixture() *fixture {
	f := &fixture{
		store:     testutil.NewStore(),
		publisher: testutil.NewRecordingPublisher(),
		caretaker: uuid.New(),
		tenantUID: uuid.New(),
	}
	f.developer = f.store.AddContact(property.Contact{Name: "John Wanjiku", Email: "john@example.com"})
	f.prop = f.store.AddProperty(property.Property{
		Name:         "Sunset Apartments",
		OwnedBy:      f.developer.ID,
		CaretakerIDs: []uuid.UUID{f.caretaker},
	})
	f.floor = f.store.AddFloor(property.Floor{PropertyID: f.prop.ID, FloorNumber: 1})
	f.unit = f.addUnit("A1", property.UnitStatusRented)
	f.tenant = f.store.AddTenant(property.Tenant{
		UserID:      &f.tenantUID,
		PropertyID:  f.prop.ID,
		UnitID:      f.unit.ID,
		Name:        "Jane Achieng",
		PhoneNumber: "0712345678",
		RentalType:  property.RentalTypeMonthly,
		RentAmount:  dec(10000),
		IsActive:    true,
	})
	f.store.AddService(property.Service{PropertyID: f.prop.ID, Name: "Water", Amount: dec(500), IsMandatory: true, IsActive: true})
	f.store.AddService(property.Service{PropertyID: f.prop.ID, Name: "Gym", Amount: dec(2000), IsActive: true})
	f.registry = pricing.NewFixedRegistry(pricing.DefaultMonthlyRate).WithFee(f.prop.ID, "1BR", dec(1000))
	return f
}

func (f *fixture) addUnit(number string, status property.UnitStatus) property.Unit {
	return f.store.AddUnit(property.Unit{
		PropertyID: f.prop.ID,
		FloorID:    f.floor.ID,
		UnitNumber: number,
		Type:       "1BR",
		RentAmount: dec(10000),
		IsOccupied: true,
		Status:     status,
	})
}

func (f *fixture) addTenant(unit property.Unit, rentalType property.RentalType) property.Tenant {
	return f.store.AddTenant(property.Tenant{
		PropertyID: f.prop.ID,
		UnitID:     unit.ID,
		Name:       "Tenant " + unit.UnitNumber,
		RentalType: rentalType,
		IsActive:   true,
	})
}

func (f *fixture) caretakerPrincipal() identity.Principal {
	return identity.Principal{UserID: f.caretaker, Role: identity.RoleCaretaker, PropertyIDs: []uuid.UUID{f.prop.ID}}
}

func (f *fixture) developerPrincipal() identity.Principal {
	return identity.Principal{UserID: f.developer.ID, Role: identity.RoleDeveloper, PropertyIDs: []uuid.UUID{f.prop.ID}}
}

func (f *fixture) tenantPrincipal() identity.Principal {
	return identity.Principal{UserID: f.tenantUID, Role: identity.RoleTenant}
}

func (f *fixture) paymentService(now time.Time) *PaymentService {
	return NewPaymentService(f.store.Scope(), f.store.InvoiceRepository(), f.store, f.registry, f.publisher, nil).
		WithClock(fixedClock(now))
}
