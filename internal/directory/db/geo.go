package db

import (
	"github.com/NiKuma0/secunda-tz/internal/directory/models"
	"gorm.io/gorm/clause"
)

// withinRadius matches buildings whose point is at most radiusM meters from
// center, measured on the spheroid.
func withinRadius(center models.Point, radiusM float64) clause.Expr {
	return clause.Expr{
		SQL:  "ST_DWithin(buildings.point, ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography, ?, true)",
		Vars: []interface{}{center.Longitude, center.Latitude, radiusM},
	}
}

// withinBox matches buildings inside or on the edge of the rectangle. The
// envelope is densified before the cast so its edges follow the parallels
// instead of single great-circle arcs.
func withinBox(box models.BoundingBox) clause.Expr {
	return clause.Expr{
		SQL: "ST_Intersects(buildings.point, ST_Segmentize(ST_MakeEnvelope(?, ?, ?, ?, 4326), 1)::geography)",
		Vars: []interface{}{
			box.LowerLeft.Longitude, box.LowerLeft.Latitude,
			box.UpperRight.Longitude, box.UpperRight.Latitude,
		},
	}
}

// matchesText matches organizations whose name or building address contains
// the terms of text.
func matchesText(text string) clause.Expr {
	return clause.Expr{
		SQL: "(organizations.search_vector @@ plainto_tsquery('english', ?) OR " +
			"buildings.search_vector @@ plainto_tsquery('english', ?))",
		Vars: []interface{}{text, text},
	}
}

// byTextRank orders by the combined rank of name and address, best first.
func byTextRank(text string) clause.OrderBy {
	return clause.OrderBy{Expression: clause.Expr{
		SQL: "ts_rank(coalesce(organizations.search_vector, ''::tsvector), plainto_tsquery('english', ?)) + " +
			"ts_rank(coalesce(buildings.search_vector, ''::tsvector), plainto_tsquery('english', ?)) DESC, organizations.id",
		Vars: []interface{}{text, text},
	}}
}
