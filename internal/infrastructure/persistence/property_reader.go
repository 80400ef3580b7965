package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/propledger/backend/internal/domain/property"
	"github.com/propledger/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPropertyReader implements property.Reader over the property
// management tables. It never writes.
type GormPropertyReader struct {
	db *gorm.DB
}

// NewGormPropertyReader creates a new GormPropertyReader
func NewGormPropertyReader(db *gorm.DB) *GormPropertyReader {
	return &GormPropertyReader{db: db}
}

// PropertyByID finds a property by ID with its caretakers
func (r *GormPropertyReader) PropertyByID(ctx context.Context, id uuid.UUID) (*property.Property, error) {
	var model models.PropertyModel
	if err := r.db.WithContext(ctx).Preload("Caretakers").First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// UnitByID finds a unit by ID
func (r *GormPropertyReader) UnitByID(ctx context.Context, id uuid.UUID) (*property.Unit, error) {
	var model models.UnitModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FloorByID finds a floor by ID
func (r *GormPropertyReader) FloorByID(ctx context.Context, id uuid.UUID) (*property.Floor, error) {
	var model models.FloorModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// TenantByID finds a tenant by ID
func (r *GormPropertyReader) TenantByID(ctx context.Context, id uuid.UUID) (*property.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// ActiveTenantForUnit finds the most recent active tenant of a unit
func (r *GormPropertyReader) ActiveTenantForUnit(ctx context.Context, unitID uuid.UUID) (*property.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).
		Where("unit_id = ? AND is_active = ?", unitID, true).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// OccupiedUnits lists every occupied unit ordered by unit number
func (r *GormPropertyReader) OccupiedUnits(ctx context.Context) ([]property.Unit, error) {
	var rows []models.UnitModel
	if err := r.db.WithContext(ctx).
		Where("is_occupied = ?", true).
		Order("unit_number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	units := make([]property.Unit, 0, len(rows))
	for i := range rows {
		units = append(units, *rows[i].ToDomain())
	}
	return units, nil
}

// MandatoryServices lists the active mandatory services of a property
func (r *GormPropertyReader) MandatoryServices(ctx context.Context, propertyID uuid.UUID) ([]property.Service, error) {
	var rows []models.ServiceModel
	if err := r.db.WithContext(ctx).
		Where("property_id = ? AND is_mandatory = ? AND is_active = ?", propertyID, true, true).
		Order("name ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	services := make([]property.Service, 0, len(rows))
	for i := range rows {
		services = append(services, rows[i].ToDomain())
	}
	return services, nil
}

// ActivePropertiesByDeveloper lists a developer's active properties, oldest first
func (r *GormPropertyReader) ActivePropertiesByDeveloper(ctx context.Context, developerID uuid.UUID) ([]property.Property, error) {
	var rows []models.PropertyModel
	if err := r.db.WithContext(ctx).
		Preload("Caretakers").
		Where("owned_by = ? AND status = ?", developerID, property.StatusActive).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	props := make([]property.Property, 0, len(rows))
	for i := range rows {
		props = append(props, *rows[i].ToDomain())
	}
	return props, nil
}

type developerPropertyRow struct {
	OwnedBy    uuid.UUID
	PropertyID uuid.UUID
	Name       *string
	Email      *string
	Phone      *string
}

// DevelopersWithActiveProperties lists developers owning an active property.
// A developer without a user row is still returned with an empty contact.
func (r *GormPropertyReader) DevelopersWithActiveProperties(ctx context.Context) ([]property.Developer, error) {
	var rows []developerPropertyRow
	if err := r.db.WithContext(ctx).
		Table("properties AS p").
		Select("p.owned_by, p.id AS property_id, u.name, u.email, u.phone").
		Joins("LEFT JOIN users u ON u.id = p.owned_by").
		Where("p.status = ?", property.StatusActive).
		Order("p.owned_by ASC, p.created_at ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	var developers []property.Developer
	index := make(map[uuid.UUID]int)
	for _, row := range rows {
		i, ok := index[row.OwnedBy]
		if !ok {
			dev := property.Developer{Contact: property.Contact{ID: row.OwnedBy}}
			if row.Name != nil {
				dev.Name = *row.Name
			}
			if row.Email != nil {
				dev.Email = *row.Email
			}
			if row.Phone != nil {
				dev.Phone = *row.Phone
			}
			developers = append(developers, dev)
			i = len(developers) - 1
			index[row.OwnedBy] = i
		}
		developers[i].ActivePropertyIDs = append(developers[i].ActivePropertyIDs, row.PropertyID)
	}
	return developers, nil
}

// ContactByID finds a platform user by ID
func (r *GormPropertyReader) ContactByID(ctx context.Context, id uuid.UUID) (*property.Contact, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToContact(), nil
}

// Ensure GormPropertyReader implements property.Reader
var _ property.Reader = (*GormPropertyReader)(nil)
