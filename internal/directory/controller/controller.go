// Package controller implements the service layer of the directory: it
// validates search parameters, applies paging defaults and turns a missing
// organization into a typed not-found error before the transport sees it.
package controller

import (
	"context"
	"fmt"
	"math"
	"strings"

	e "github.com/NiKuma0/secunda-tz/internal/directory/errors"
	"github.com/NiKuma0/secunda-tz/internal/directory/models"
	"go.uber.org/zap"
)

// Repository defines the read side of the directory store.
type Repository interface {
	GetOrganization(ctx context.Context, id int64) (*models.Organization, error)
	ListByName(ctx context.Context, name string, page models.Page) ([]models.Organization, error)
	ListByBuildingAddress(ctx context.Context, address string, page models.Page) ([]models.Organization, error)
	ListByBuildingID(ctx context.Context, buildingID int64, page models.Page) ([]models.Organization, error)
	ListBySpecializations(ctx context.Context, ids []int64, page models.Page) ([]models.Organization, error)
	ListByRadius(ctx context.Context, center models.Point, radiusM float64, page models.Page) ([]models.Organization, error)
	ListByBox(ctx context.Context, box models.BoundingBox, page models.Page) ([]models.Organization, error)
	Search(ctx context.Context, text string, page models.Page) ([]models.Organization, error)
	Ping(ctx context.Context) error
	Close() error
}

// DirectoryService answers organization lookups through a Repository.
type DirectoryService struct {
	repo   Repository
	logger *zap.Logger
}

// NewDirectoryService constructs a DirectoryService with a repository and a
// logger.
func NewDirectoryService(repo Repository, logger *zap.Logger) *DirectoryService {
	return &DirectoryService{
		repo:   repo,
		logger: logger.Named("directory_service"),
	}
}

// GetOrganization returns the organization or a *errors.NotFoundError
// carrying the requested id.
func (s *DirectoryService) GetOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	org, err := s.repo.GetOrganization(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	if org == nil {
		return nil, &e.NotFoundError{Resource: "organization", ID: id}
	}
	return org, nil
}

func (s *DirectoryService) ListByName(ctx context.Context, name string, page models.Page) ([]models.Organization, error) {
	if strings.TrimSpace(name) == "" {
		return nil, e.InvalidInput("name is required")
	}
	page, err := validatePage(page)
	if err != nil {
		return nil, err
	}
	return s.wrap("list organizations by name")(s.repo.ListByName(ctx, name, page))
}

func (s *DirectoryService) ListByBuildingAddress(ctx context.Context, address string, page models.Page) ([]models.Organization, error) {
	if strings.TrimSpace(address) == "" {
		return nil, e.InvalidInput("address is required")
	}
	page, err := validatePage(page)
	if err != nil {
		return nil, err
	}
	return s.wrap("list organizations by building address")(s.repo.ListByBuildingAddress(ctx, address, page))
}

func (s *DirectoryService) ListByBuildingID(ctx context.Context, buildingID int64, page models.Page) ([]models.Organization, error) {
	page, err := validatePage(page)
	if err != nil {
		return nil, err
	}
	return s.wrap("list organizations by building")(s.repo.ListByBuildingID(ctx, buildingID, page))
}

// ListBySpecializations returns organizations having all of ids.
func (s *DirectoryService) ListBySpecializations(ctx context.Context, ids []int64, page models.Page) ([]models.Organization, error) {
	if len(ids) == 0 {
		return nil, e.InvalidInput("at least one specialization id is required")
	}
	page, err := validatePage(page)
	if err != nil {
		return nil, err
	}
	return s.wrap("list organizations by specializations")(s.repo.ListBySpecializations(ctx, ids, page))
}

func (s *DirectoryService) ListByRadius(ctx context.Context, center models.Point, radiusM float64, page models.Page) ([]models.Organization, error) {
	if err := validatePoint("center", center); err != nil {
		return nil, err
	}
	if err := validateRadius(radiusM); err != nil {
		return nil, err
	}
	page, err := validatePage(page)
	if err != nil {
		return nil, err
	}
	return s.wrap("list organizations by radius")(s.repo.ListByRadius(ctx, center, radiusM, page))
}

func (s *DirectoryService) ListByBox(ctx context.Context, box models.BoundingBox, page models.Page) ([]models.Organization, error) {
	if err := validateBox(box); err != nil {
		return nil, err
	}
	page, err := validatePage(page)
	if err != nil {
		return nil, err
	}
	return s.wrap("list organizations by box")(s.repo.ListByBox(ctx, box, page))
}

// ListByLocation dispatches to ListByRadius or ListByBox. Exactly one of the
// two criteria must be given; anything else fails before querying.
func (s *DirectoryService) ListByLocation(ctx context.Context, q models.LocationQuery, page models.Page) ([]models.Organization, error) {
	hasRadius := q.Center != nil || q.RadiusM != nil
	hasBox := q.Box != nil

	switch {
	case hasRadius && hasBox:
		return nil, e.InvalidInput("radius and box search cannot be combined")
	case hasBox:
		return s.ListByBox(ctx, *q.Box, page)
	case hasRadius:
		if q.Center == nil || q.RadiusM == nil {
			return nil, e.InvalidInput("radius search needs both a center and a radius")
		}
		return s.ListByRadius(ctx, *q.Center, *q.RadiusM, page)
	default:
		return nil, e.InvalidInput("either a radius or a box is required")
	}
}

// Search runs a full-text query over organization names and addresses.
func (s *DirectoryService) Search(ctx context.Context, text string, page models.Page) ([]models.Organization, error) {
	if strings.TrimSpace(text) == "" {
		return nil, e.InvalidInput("search text is required")
	}
	page, err := validatePage(page)
	if err != nil {
		return nil, err
	}
	return s.wrap("search organizations")(s.repo.Search(ctx, text, page))
}

// Ping reports whether the store is reachable.
func (s *DirectoryService) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Warn("store unreachable", zap.Error(err))
		return fmt.Errorf("failed to reach store: %w", err)
	}
	return nil
}

// wrap annotates repository errors with the action that failed.
func (s *DirectoryService) wrap(action string) func([]models.Organization, error) ([]models.Organization, error) {
	return func(orgs []models.Organization, err error) ([]models.Organization, error) {
		if err != nil {
			return nil, fmt.Errorf("failed to %s: %w", action, err)
		}
		return orgs, nil
	}
}

func validatePage(page models.Page) (models.Page, error) {
	if page.Limit == 0 {
		page.Limit = models.DefaultLimit
	}
	if page.Limit < 1 || page.Limit > models.MaxLimit {
		return page, e.InvalidInput("limit must be between 1 and %d", models.MaxLimit)
	}
	if page.Offset < 0 {
		return page, e.InvalidInput("offset must not be negative")
	}
	return page, nil
}

func validatePoint(name string, p models.Point) error {
	if !(p.Longitude >= -180 && p.Longitude <= 180) {
		return e.InvalidInput("%s longitude must be within [-180, 180]", name)
	}
	if !(p.Latitude >= -90 && p.Latitude <= 90) {
		return e.InvalidInput("%s latitude must be within [-90, 90]", name)
	}
	return nil
}

func validateRadius(radiusM float64) error {
	if math.IsNaN(radiusM) || math.IsInf(radiusM, 0) || radiusM < 0 {
		return e.InvalidInput("radius must be a non-negative number of meters")
	}
	return nil
}

func validateBox(box models.BoundingBox) error {
	if err := validatePoint("lower-left", box.LowerLeft); err != nil {
		return err
	}
	if err := validatePoint("upper-right", box.UpperRight); err != nil {
		return err
	}
	if box.LowerLeft.Longitude > box.UpperRight.Longitude || box.LowerLeft.Latitude > box.UpperRight.Latitude {
		return e.InvalidInput("lower-left corner must not lie above or right of the upper-right corner")
	}
	if box.LongitudeSpan() >= models.MaxBoxLongitudeSpan {
		return e.InvalidInput("box must span less than %g degrees of longitude", models.MaxBoxLongitudeSpan)
	}
	return nil
}
