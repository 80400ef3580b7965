package persistence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/invoice"
	"github.com/propledger/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupBillingTestDB opens an in-memory SQLite database migrated with every
// billing model. A single connection keeps the memory database alive.
func setupBillingTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func kes(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

type seededUnit struct {
	propertyID uuid.UUID
	unitID     uuid.UUID
	tenantID   uuid.UUID
	ownerID    uuid.UUID
}

// seedUnit inserts a property with one floor, one rented unit, its owner and
// an active tenant
func seedUnit(t *testing.T, db *gorm.DB, propertyName, unitNumber string) seededUnit {
	now := time.Now().UTC()
	owner := models.UserModel{BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}, Name: "Owner " + unitNumber, Role: "owner"}
	prop := models.PropertyModel{BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}, Name: propertyName, Status: "active", OwnedBy: uuid.New()}
	floor := models.FloorModel{BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}, PropertyID: prop.ID, FloorNumber: 2}
	unit := models.UnitModel{
		BaseModel:  models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PropertyID: prop.ID,
		FloorID:    floor.ID,
		UnitNumber: unitNumber,
		UnitType:   "2BR",
		RentAmount: kes(20000),
		IsOccupied: true,
		Status:     "rented",
		OwnerID:    &owner.ID,
	}
	tenant := models.TenantModel{
		BaseModel:  models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PropertyID: prop.ID,
		UnitID:     unit.ID,
		Name:       "Tenant " + unitNumber,
		RentalType: "monthly",
		RentAmount: kes(20000),
		IsActive:   true,
	}
	for _, row := range []interface{}{&owner, &prop, &floor, &unit, &tenant} {
		require.NoError(t, db.Create(row).Error)
	}
	return seededUnit{propertyID: prop.ID, unitID: unit.ID, tenantID: tenant.ID, ownerID: owner.ID}
}

func newIssuedInvoice(t *testing.T, u seededUnit, number string, period invoice.Period) *invoice.Invoice {
	inv, err := invoice.NewInvoice(invoice.NewInvoiceParams{
		Number:     number,
		PropertyID: u.propertyID,
		UnitID:     u.unitID,
		TenantID:   u.tenantID,
		Period:     period,
		Composition: invoice.Composition{
			Rent:       kes(20000),
			ServiceFee: kes(2000),
		},
		Status: invoice.StatusIssued,
		Now:    time.Date(period.Year, time.Month(period.Month), 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return inv
}

func newLeaseInvoice(t *testing.T, u seededUnit, tenantID uuid.UUID, number string, period invoice.Period, start time.Time) *invoice.Invoice {
	inv, err := invoice.NewInvoice(invoice.NewInvoiceParams{
		Number:      number,
		PropertyID:  u.propertyID,
		UnitID:      u.unitID,
		TenantID:    tenantID,
		Period:      period,
		LeaseStart:  &start,
		Composition: invoice.Composition{Rent: kes(200000), ServiceFee: kes(2000)},
		Status:      invoice.StatusIssued,
		Now:         start,
	})
	require.NoError(t, err)
	return inv
}
