package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/ewkbhex"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// SRID is the spatial reference of every stored point (WGS84).
const SRID = 4326

// Point is a WGS84 point persisted as a PostGIS geography. Values travel as
// hex-encoded EWKB, which PostGIS accepts on input and returns on output, so
// no driver-side geometry support is required.
type Point struct {
	Longitude float64
	Latitude  float64
}

// GormDBDataType picks the column type per dialect. Only Postgres gets a real
// geography column; other dialects keep the hex EWKB as text.
func (Point) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("geography(Point,%d)", SRID)
	}
	return "text"
}

// Geom returns p as a go-geom point tagged with SRID.
func (p Point) Geom() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Longitude, p.Latitude}).SetSRID(SRID)
}

// Value implements driver.Valuer.
func (p Point) Value() (driver.Value, error) {
	s, err := ewkbhex.Encode(p.Geom(), ewkb.NDR)
	if err != nil {
		return nil, fmt.Errorf("failed to encode point: %w", err)
	}
	return s, nil
}

// Scan implements sql.Scanner. It accepts hex EWKB as text or bytes, and raw
// WKB or EWKB bytes.
func (p *Point) Scan(src interface{}) error {
	var (
		g   geom.T
		err error
	)
	switch v := src.(type) {
	case nil:
		*p = Point{}
		return nil
	case string:
		g, err = ewkbhex.Decode(v)
	case []byte:
		if g, err = ewkbhex.Decode(string(v)); err != nil {
			g, err = ewkb.Unmarshal(v)
		}
	default:
		return fmt.Errorf("unsupported point source type %T", src)
	}
	if err != nil {
		return fmt.Errorf("failed to decode point: %w", err)
	}

	pt, ok := g.(*geom.Point)
	if !ok {
		return fmt.Errorf("unsupported geometry type %T", g)
	}
	if pt.Empty() {
		*p = Point{}
		return nil
	}
	*p = Point{Longitude: pt.X(), Latitude: pt.Y()}
	return nil
}
