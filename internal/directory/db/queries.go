package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	dbmodels "github.com/NiKuma0/secunda-tz/internal/directory/db/models"
	e "github.com/NiKuma0/secunda-tz/internal/directory/errors"
	"github.com/NiKuma0/secunda-tz/internal/directory/metrics"
	"github.com/NiKuma0/secunda-tz/internal/directory/models"
	"gorm.io/gorm"
)

// organizations is the base of every read. The inner joins drop
// organizations without a building, so each row resolves to exactly one
// building.
func (r *Repository) organizations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&dbmodels.Organization{}).
		Joins("JOIN organization_buildings ON organization_buildings.organization_id = organizations.id").
		Joins("JOIN buildings ON buildings.id = organization_buildings.building_id")
}

// query narrows the base query by scopes and applies the page window.
func (r *Repository) query(ctx context.Context, page models.Page, scopes ...func(*gorm.DB) *gorm.DB) *gorm.DB {
	return r.organizations(ctx).
		Scopes(scopes...).
		Scopes(paginate(page))
}

func paginate(page models.Page) func(*gorm.DB) *gorm.DB {
	page = page.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(page.Limit).Offset(page.Offset)
	}
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("organizations.id")
}

// list runs query and maps the page of results. The building and the
// specializations are preloaded with one extra query each. A query without
// matches yields an empty, non-nil slice.
func (r *Repository) list(ctx context.Context, operation string, page models.Page, scopes ...func(*gorm.DB) *gorm.DB) ([]models.Organization, error) {
	begin := time.Now()

	var rows []dbmodels.Organization
	err := r.query(ctx, page, scopes...).
		Preload("BuildingLink.Building").
		Preload("Specializations").
		Find(&rows).Error
	if err != nil {
		metrics.ObserveQuery(operation, begin, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to list organizations (%s): %w", operation, err)
	}

	outcome := metrics.OutcomeOK
	if len(rows) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	metrics.ObserveQuery(operation, begin, outcome)

	return toOrganizations(rows), nil
}

// GetOrganization returns the organization with the given id, or nil and no
// error when there is none.
func (r *Repository) GetOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	orgs, err := r.list(ctx, "get_by_id", models.Page{Limit: 1}, byID(id))
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, nil
	}
	return &orgs[0], nil
}

// ListByBuildingAddress matches the building address exactly.
func (r *Repository) ListByBuildingAddress(ctx context.Context, address string, page models.Page) ([]models.Organization, error) {
	return r.list(ctx, "by_building_address", page, orderByID, byAddress(address))
}

func (r *Repository) ListByBuildingID(ctx context.Context, buildingID int64, page models.Page) ([]models.Organization, error) {
	return r.list(ctx, "by_building_id", page, orderByID, byBuildingID(buildingID))
}

// ListByName matches the organization name exactly.
func (r *Repository) ListByName(ctx context.Context, name string, page models.Page) ([]models.Organization, error) {
	return r.list(ctx, "by_name", page, orderByID, byName(name))
}

// ListBySpecializations returns the organizations linked to every one of
// ids. Other specializations an organization has do not matter. Duplicate
// ids count once; an empty list is rejected with ErrInvalidInput.
func (r *Repository) ListBySpecializations(ctx context.Context, ids []int64, page models.Page) ([]models.Organization, error) {
	unique := distinct(ids)
	if len(unique) == 0 {
		return nil, e.InvalidInput("at least one specialization id is required")
	}
	return r.list(ctx, "by_specializations", page, orderByID, bySpecializations(unique))
}

// ListByRadius returns the organizations whose building lies within radiusM
// meters of center.
func (r *Repository) ListByRadius(ctx context.Context, center models.Point, radiusM float64, page models.Page) ([]models.Organization, error) {
	return r.list(ctx, "by_radius", page, orderByID, byRadius(center, radiusM))
}

// ListByBox returns the organizations whose building lies inside the box,
// edges included. Boxes MaxBoxLongitudeSpan degrees wide or wider are
// rejected with ErrInvalidInput.
func (r *Repository) ListByBox(ctx context.Context, box models.BoundingBox, page models.Page) ([]models.Organization, error) {
	if box.LongitudeSpan() >= models.MaxBoxLongitudeSpan {
		return nil, e.InvalidInput("box must span less than %g degrees of longitude", models.MaxBoxLongitudeSpan)
	}
	return r.list(ctx, "by_box", page, orderByID, byBox(box))
}

// Search runs a full-text query over organization names and building
// addresses, best rank first.
func (r *Repository) Search(ctx context.Context, text string, page models.Page) ([]models.Organization, error) {
	return r.list(ctx, "search", page, byText(text))
}

func byID(id int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("organizations.id = ?", id)
	}
}

func byAddress(address string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("buildings.address = ?", address)
	}
}

func byBuildingID(id int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("buildings.id = ?", id)
	}
}

func byName(name string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("organizations.name = ?", name)
	}
}

// bySpecializations keeps organizations matching all of ids, which must be
// distinct.
func bySpecializations(ids []int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Joins("JOIN organization_specializations ON organization_specializations.organization_id = organizations.id").
			Where("organization_specializations.specialization_id IN ?", ids).
			Group("organizations.id").
			Having("COUNT(DISTINCT organization_specializations.specialization_id) = ?", len(ids))
	}
}

func byRadius(center models.Point, radiusM float64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(withinRadius(center, radiusM))
	}
}

func byBox(box models.BoundingBox) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(withinBox(box))
	}
}

func byText(text string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(matchesText(text)).Order(byTextRank(text))
	}
}

func distinct(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toOrganizations(rows []dbmodels.Organization) []models.Organization {
	out := make([]models.Organization, 0, len(rows))
	for i := range rows {
		out = append(out, toOrganization(&rows[i]))
	}
	return out
}

func toOrganization(o *dbmodels.Organization) models.Organization {
	org := models.Organization{
		ID:              o.ID,
		Name:            o.Name,
		Phone:           o.Phone,
		Specializations: make([]models.Specialization, 0, len(o.Specializations)),
	}

	if link := o.BuildingLink; link != nil {
		org.BuildingID = link.BuildingID
		org.BuildingAddress = link.Building.Address
		org.BuildingCoordinates = models.Coordinates{link.Building.Point.Longitude, link.Building.Point.Latitude}
	}

	for _, s := range o.Specializations {
		org.Specializations = append(org.Specializations, models.Specialization{
			ID:       s.ID,
			Name:     s.Name,
			ParentID: s.ParentID,
		})
	}
	sort.Slice(org.Specializations, func(i, j int) bool {
		return org.Specializations[i].ID < org.Specializations[j].ID
	})

	return org
}
