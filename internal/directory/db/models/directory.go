// Package models contains the persisted entities of the directory,
// configured to work using GORM as the ORM.
package models

import (
	"gorm.io/gorm"
)

// Building is a physical location organizations are housed in.
type Building struct {
	ID      int64  `gorm:"primaryKey"`
	Address string `gorm:"size:255;not null;index"`
	Point   Point  `gorm:"not null"`
}

// Organization is a directory entry. It resolves to exactly one building
// through BuildingLink.
type Organization struct {
	ID              int64                 `gorm:"primaryKey"`
	Name            string                `gorm:"size:255;not null;index"`
	Phone           string                `gorm:"size:32;not null"`
	BuildingLink    *OrganizationBuilding `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE"`
	Specializations []Specialization      `gorm:"many2many:organization_specializations;constraint:OnDelete:CASCADE"`
}

// OrganizationBuilding pairs an organization with its building. The
// organization id is the primary key, so an organization has at most one row.
type OrganizationBuilding struct {
	OrganizationID int64    `gorm:"primaryKey;autoIncrement:false"`
	BuildingID     int64    `gorm:"not null;index"`
	Building       Building `gorm:"constraint:OnDelete:RESTRICT"`
}

// Specialization is a node of the activity tree. Children are removed with
// their parent.
type Specialization struct {
	ID       int64            `gorm:"primaryKey"`
	Name     string           `gorm:"size:255;not null"`
	ParentID *int64           `gorm:"index"`
	Children []Specialization `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE"`
}

// OrganizationSpecialization is the join row of Organization.Specializations.
type OrganizationSpecialization struct {
	OrganizationID   int64 `gorm:"primaryKey;autoIncrement:false"`
	SpecializationID int64 `gorm:"primaryKey;autoIncrement:false"`
}

// All lists the entities in migration order.
func All() []interface{} {
	return []interface{}{
		&Building{},
		&Specialization{},
		&Organization{},
		&OrganizationBuilding{},
		&OrganizationSpecialization{},
	}
}

// Register binds OrganizationSpecialization as the join table of
// Organization.Specializations on db.
func Register(db *gorm.DB) error {
	return db.SetupJoinTable(&Organization{}, "Specializations", &OrganizationSpecialization{})
}
