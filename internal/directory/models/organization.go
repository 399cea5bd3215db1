// Package models defines the denormalized read models returned by the
// directory: organizations flattened together with their building and
// specializations, plus the search parameters the query layer accepts.
package models

const (
	// DefaultLimit is the page size used when none is requested.
	DefaultLimit = 10
	// MaxLimit caps the page size accepted from callers.
	MaxLimit = 100
)

// Organization is the flat view of an organization.
type Organization struct {
	// ID is the organization primary key.
	ID int64 `json:"id"`
	// Name is the organization name.
	Name string `json:"name"`
	// Phone is the contact phone, free text.
	Phone string `json:"phone"`
	// BuildingID is the primary key of the organization's building.
	BuildingID int64 `json:"building_id"`
	// BuildingAddress is the postal address of the building.
	BuildingAddress string `json:"building_address"`
	// BuildingCoordinates holds the building location as [longitude, latitude].
	BuildingCoordinates Coordinates `json:"building_coordinates"`
	// Specializations lists the organization's specializations ordered by id.
	Specializations []Specialization `json:"specializations"`
}

// Specialization is a node of the specialization tree.
type Specialization struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

// OrganizationList is the envelope of every list response.
type OrganizationList struct {
	Organizations []Organization `json:"organizations"`
}

// Coordinates is a (longitude, latitude) pair in WGS84 degrees. It encodes
// as a two element JSON array, x first.
type Coordinates [2]float64

// Longitude returns the x component.
func (c Coordinates) Longitude() float64 { return c[0] }

// Latitude returns the y component.
func (c Coordinates) Latitude() float64 { return c[1] }

// Point is a search center.
type Point struct {
	Longitude float64
	Latitude  float64
}

// BoundingBox is an axis-aligned rectangle given by its lower-left and
// upper-right corners in degrees.
type BoundingBox struct {
	LowerLeft  Point
	UpperRight Point
}

// MaxBoxLongitudeSpan bounds the width of a box. On the sphere a wider
// rectangle's edges would wrap the short way round the antimeridian.
const MaxBoxLongitudeSpan = 180.0

// LongitudeSpan returns the width of the box in degrees.
func (b BoundingBox) LongitudeSpan() float64 {
	return b.UpperRight.Longitude - b.LowerLeft.Longitude
}

// LocationQuery selects organizations either by radius or by box, never both.
type LocationQuery struct {
	Center  *Point
	RadiusM *float64
	Box     *BoundingBox
}

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// DefaultPage returns limit=10, offset=0.
func DefaultPage() Page {
	return Page{Limit: DefaultLimit}
}

// Normalize replaces a non-positive limit with DefaultLimit and a negative
// offset with zero.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
