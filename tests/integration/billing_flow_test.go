package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	invoiceapp "github.com/propledger/backend/internal/application/invoice"
	"github.com/propledger/backend/internal/domain/billing"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/domain/job"
	"github.com/propledger/backend/internal/domain/payment"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/domain/shared"
	"github.com/propledger/backend/internal/infrastructure/event"
	"github.com/propledger/backend/internal/infrastructure/migration"
	"github.com/propledger/backend/internal/infrastructure/persistence"
	"github.com/propledger/backend/internal/infrastructure/persistence/models"
)

var defaultRate = decimal.NewFromInt(1000)

type rentedUnit struct {
	propertyID uuid.UUID
	unitID     uuid.UUID
	tenantID   uuid.UUID
}

// seedRentedUnit inserts an owner, a property with one floor and a rented
// unit with its active monthly tenant
func seedRentedUnit(t *testing.T, db *gorm.DB, propertyName, unitNumber string) rentedUnit {
	t.Helper()
	now := time.Now().UTC()
	base := func() models.BaseModel {
		return models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	}

	owner := models.UserModel{BaseModel: base(), Name: "Owner " + unitNumber, Role: "owner"}
	prop := models.PropertyModel{BaseModel: base(), Name: propertyName, Status: "active", OwnedBy: owner.ID}
	floor := models.FloorModel{BaseModel: base(), PropertyID: prop.ID, FloorNumber: 1}
	unit := models.UnitModel{
		BaseModel:  base(),
		PropertyID: prop.ID,
		FloorID:    floor.ID,
		UnitNumber: unitNumber,
		UnitType:   "2BR",
		RentAmount: decimal.NewFromInt(25000),
		IsOccupied: true,
		Status:     "rented",
		OwnerID:    &owner.ID,
	}
	tenant := models.TenantModel{
		BaseModel:  base(),
		PropertyID: prop.ID,
		UnitID:     unit.ID,
		Name:       "Tenant " + unitNumber,
		RentalType: "monthly",
		RentAmount: decimal.NewFromInt(25000),
		IsActive:   true,
	}
	for _, row := range []any{&owner, &prop, &floor, &unit, &tenant} {
		require.NoError(t, db.Create(row).Error)
	}
	return rentedUnit{propertyID: prop.ID, unitID: unit.ID, tenantID: tenant.ID}
}

func issuedInvoice(t *testing.T, u rentedUnit, number string, period invoice.Period) *invoice.Invoice {
	t.Helper()
	inv, err := invoice.NewInvoice(invoice.NewInvoiceParams{
		Number:     number,
		PropertyID: u.propertyID,
		UnitID:     u.unitID,
		TenantID:   u.tenantID,
		Period:     period,
		Composition: invoice.Composition{
			Rent:       decimal.NewFromInt(25000),
			ServiceFee: decimal.NewFromInt(1500),
		},
		Status: invoice.StatusIssued,
		Now:    time.Now(),
	})
	require.NoError(t, err)
	return inv
}

func TestMigrations_DownAndUpAgain(t *testing.T) {
	tdb := NewTestDB(t)
	tables := []string{"invoices", "payment_reminders", "billing_accounts", "billing_invoices", "mpesa_transactions", "batch_job_runs"}
	for _, table := range tables {
		assert.True(t, tdb.DB.Migrator().HasTable(table), table)
	}

	migrate(t, tdb.DSN, func(m *migration.Migrator) error { return m.Down() })
	for _, table := range tables {
		assert.False(t, tdb.DB.Migrator().HasTable(table), table)
	}

	migrate(t, tdb.DSN, func(m *migration.Migrator) error { return m.Up() })
	migrate(t, tdb.DSN, func(m *migration.Migrator) error {
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(1), version)
		assert.False(t, dirty)
		return nil
	})
	assert.True(t, tdb.DB.Migrator().HasTable("invoices"))
}

func TestInvoiceRepository_OneActiveInvoicePerUnitPeriod(t *testing.T) {
	tdb := NewTestDB(t)
	ctx := context.Background()
	repo := persistence.NewGormInvoiceRepository(tdb.DB)
	u := seedRentedUnit(t, tdb.DB, "Riverside", "A1")
	period, err := invoice.NewPeriod(3, 2026)
	require.NoError(t, err)

	first := issuedInvoice(t, u, "INV-RIV-0001", period)
	require.NoError(t, repo.Create(ctx, first))

	err = repo.Create(ctx, issuedInvoice(t, u, "INV-RIV-0002", period))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	// a cancelled invoice frees the slot
	require.NoError(t, first.Cancel(uuid.New(), time.Now()))
	require.NoError(t, repo.SaveWithLock(ctx, first))
	require.NoError(t, repo.Create(ctx, issuedInvoice(t, u, "INV-RIV-0003", period)))

	active, err := repo.FindActiveForUnitPeriod(ctx, u.unitID, period)
	require.NoError(t, err)
	assert.Equal(t, "INV-RIV-0003", active.InvoiceNumber)
}

func TestInvoiceRepository_LeaseInvoicesPerTenantLease(t *testing.T) {
	tdb := NewTestDB(t)
	ctx := context.Background()
	repo := persistence.NewGormInvoiceRepository(tdb.DB)
	u := seedRentedUnit(t, tdb.DB, "Riverside", "L1")
	now := time.Now().UTC()
	successor := models.TenantModel{
		BaseModel:  models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PropertyID: u.propertyID,
		UnitID:     u.unitID,
		Name:       "Successor L1",
		RentalType: "fixed",
		RentAmount: decimal.NewFromInt(150000),
		IsActive:   true,
	}
	require.NoError(t, tdb.DB.Create(&successor).Error)

	lease := func(number string, tenantID uuid.UUID, start time.Time) *invoice.Invoice {
		inv, err := invoice.NewInvoice(invoice.NewInvoiceParams{
			Number: number, PropertyID: u.propertyID, UnitID: u.unitID, TenantID: tenantID,
			Period:      invoice.Period{Month: invoice.LeaseMonth, Year: start.Year()},
			LeaseStart:  &start,
			Composition: invoice.Composition{Rent: decimal.NewFromInt(150000)},
			Status:      invoice.StatusIssued,
			Now:         start,
		})
		require.NoError(t, err)
		return inv
	}
	firstStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	secondStart := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, lease("INV-RIV-L001", u.tenantID, firstStart)))
	require.NoError(t, repo.Create(ctx, lease("INV-RIV-L002", successor.ID, secondStart)))
	assert.ErrorIs(t, repo.Create(ctx, lease("INV-RIV-L003", u.tenantID, firstStart)), shared.ErrAlreadyExists)
	require.NoError(t, repo.Create(ctx, lease("INV-RIV-L004", u.tenantID, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))))

	found, err := repo.FindLeaseInvoice(ctx, successor.ID, secondStart)
	require.NoError(t, err)
	assert.Equal(t, "INV-RIV-L002", found.InvoiceNumber)

	// monthly invoices of the unit are unaffected by its lease invoices
	period, err := invoice.NewPeriod(9, 2026)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, issuedInvoice(t, u, "INV-RIV-0901", period)))
}

func TestBillingInvoiceRepository_DeleteUnpaidKeepsInvoicesWithTransactions(t *testing.T) {
	tdb := NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	developer := models.UserModel{BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}, Name: "Jane Wanjiru", Role: "developer"}
	require.NoError(t, tdb.DB.Create(&developer).Error)

	account, err := billing.NewAccount(property.Contact{ID: developer.ID, Name: developer.Name}, defaultRate)
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormBillingAccountRepository(tdb.DB).Save(ctx, account))

	repo := persistence.NewGormBillingInvoiceRepository(tdb.DB)
	props := []property.Property{{ID: uuid.New(), Name: "Riverside"}}
	var held *billing.Invoice
	for month := 1; month <= 3; month++ {
		inv, err := billing.NewInvoice(billing.FormatPlainNumber(2026, month, int64(month)), account, 2026, month, props, defaultRate)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, inv))
		if month == 2 {
			held = inv
		}
	}
	pending, err := payment.NewTransaction(payment.NewTransactionParams{
		Response:         &payment.STKPushResponse{CheckoutRequestID: "ws_CO_020220261200", PhoneNumber: "254712345678"},
		Type:             payment.TypeBillingInvoice,
		TargetID:         held.ID,
		Amount:           held.TotalAmount,
		AccountReference: held.InvoiceNumber,
	})
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormTransactionRepository(tdb.DB).Create(ctx, pending))

	n, err := repo.DeleteUnpaidForYear(ctx, developer.ID, 2026)
	require.NoError(t, err, "the referencing transaction must not trip the foreign key")
	assert.Equal(t, int64(2), n)

	left, err := repo.FindByDeveloperYear(ctx, developer.ID, 2026)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, held.ID, left[0].ID)
}

func TestInvoiceRepository_StaleWriteConflicts(t *testing.T) {
	tdb := NewTestDB(t)
	ctx := context.Background()
	repo := persistence.NewGormInvoiceRepository(tdb.DB)
	u := seedRentedUnit(t, tdb.DB, "Hilltop", "B2")
	period, err := invoice.NewPeriod(4, 2026)
	require.NoError(t, err)

	inv := issuedInvoice(t, u, "INV-HIL-0001", period)
	require.NoError(t, repo.Create(ctx, inv))

	a, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	b, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)

	require.NoError(t, a.Cancel(uuid.New(), time.Now()))
	require.NoError(t, repo.SaveWithLock(ctx, a))

	require.NoError(t, b.Cancel(uuid.New(), time.Now()))
	assert.ErrorIs(t, repo.SaveWithLock(ctx, b), shared.ErrConcurrencyConflict)
}

func TestGenerator_RunIsIdempotentAndRecorded(t *testing.T) {
	tdb := NewTestDB(t)
	ctx := context.Background()
	db := tdb.DB
	seedRentedUnit(t, db, "Lakeview", "C1")
	seedRentedUnit(t, db, "Lakeview Annex", "C2")

	log := zaptest.NewLogger(t)
	gen := invoiceapp.NewGenerator(
		persistence.NewGormTransactionScope(db, defaultRate),
		persistence.NewGormPropertyReader(db),
		persistence.NewGormRateRegistry(db, defaultRate),
		event.NewBus(log),
		nil,
		log,
	)
	period, err := invoice.NewPeriod(5, 2026)
	require.NoError(t, err)

	first := gen.Run(ctx, period, "integration")
	require.True(t, first.Success, first.Error)
	assert.Equal(t, 2, first.Created)
	assert.Zero(t, first.Errors)

	second := gen.Run(ctx, period, "integration")
	require.True(t, second.Success, second.Error)
	assert.Zero(t, second.Created)
	assert.Zero(t, second.Candidates)

	var count int64
	require.NoError(t, db.Model(&models.InvoiceModel{}).
		Where("month = ? AND year = ?", period.Month, period.Year).
		Count(&count).Error)
	assert.Equal(t, int64(2), count)

	runs, err := persistence.NewGormJobRunRepository(db).FindRecent(ctx, job.NameMonthlyInvoices, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.True(t, run.Success)
		assert.Equal(t, "integration", run.TriggeredBy)
	}
}
