package db

import (
	"context"
	"fmt"

	dbmodels "github.com/NiKuma0/secunda-tz/internal/directory/db/models"
	e "github.com/NiKuma0/secunda-tz/internal/directory/errors"
	"github.com/NiKuma0/secunda-tz/internal/directory/integrity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Writer is the write side of the directory, valid for one transaction.
// The public API never writes; seeding and tests do.
type Writer struct {
	ctx     context.Context
	tx      *gorm.DB
	pending integrity.PendingOrganizations
}

// WithWriteTransaction runs fn in a transaction. Before commit every
// organization created through the Writer must have a building, otherwise
// the transaction rolls back with *errors.OrganizationWithoutBuildingError.
// Errors raised by the store triggers are translated the same way.
func (r *Repository) WithWriteTransaction(ctx context.Context, fn func(w *Writer) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w := &Writer{ctx: ctx, tx: tx}
		if err := fn(w); err != nil {
			return err
		}
		return w.pending.Verify(ctx, w.hasBuilding)
	})
	return translateError(err)
}

func (w *Writer) CreateBuilding(b *dbmodels.Building) error {
	if err := w.tx.Create(b).Error; err != nil {
		return fmt.Errorf("failed to create building: %w", translateError(err))
	}
	return nil
}

// CreateOrganization inserts the organization without its associations and
// registers it for the commit-time building check.
func (w *Writer) CreateOrganization(o *dbmodels.Organization) error {
	if err := w.tx.Omit(clause.Associations).Create(o).Error; err != nil {
		return fmt.Errorf("failed to create organization: %w", translateError(err))
	}
	w.pending.Add(o.ID)
	return nil
}

// AssignBuilding sets the building of an organization, replacing the
// previous one.
func (w *Writer) AssignBuilding(organizationID, buildingID int64) error {
	if err := w.mustExist(&dbmodels.Building{}, "building", buildingID); err != nil {
		return err
	}

	link := &dbmodels.OrganizationBuilding{OrganizationID: organizationID, BuildingID: buildingID}
	err := w.tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"building_id"}),
	}).Create(link).Error
	if err != nil {
		return fmt.Errorf("failed to assign building: %w", translateError(err))
	}
	return nil
}

// CreateSpecialization inserts s after checking the level it would occupy.
func (w *Writer) CreateSpecialization(s *dbmodels.Specialization) error {
	if _, err := integrity.CheckDepth(w.ctx, 0, s.ParentID, w.parentOf); err != nil {
		return err
	}
	if err := w.tx.Omit(clause.Associations).Create(s).Error; err != nil {
		return fmt.Errorf("failed to create specialization: %w", translateError(err))
	}
	return nil
}

// MoveSpecialization re-parents a specialization together with its subtree.
// A nil parentID makes it a root.
func (w *Writer) MoveSpecialization(id int64, parentID *int64) error {
	if err := w.mustExist(&dbmodels.Specialization{}, "specialization", id); err != nil {
		return err
	}

	depth, err := integrity.CheckDepth(w.ctx, id, parentID, w.parentOf)
	if err != nil {
		return err
	}
	height, err := w.subtreeHeight(id)
	if err != nil {
		return err
	}
	if err := integrity.CheckSubtree(depth, height); err != nil {
		return err
	}

	err = w.tx.Model(&dbmodels.Specialization{}).Where("id = ?", id).Update("parent_id", parentID).Error
	if err != nil {
		return fmt.Errorf("failed to move specialization: %w", translateError(err))
	}
	return nil
}

// DeleteSpecialization removes a specialization, its descendants and their
// organization links.
func (w *Writer) DeleteSpecialization(id int64) error {
	ids, err := w.subtree(id)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return &e.NotFoundError{Resource: "specialization", ID: id}
	}

	if err := w.tx.Where("specialization_id IN ?", ids).Delete(&dbmodels.OrganizationSpecialization{}).Error; err != nil {
		return fmt.Errorf("failed to unlink specializations: %w", err)
	}
	// deepest first so the parent reference never dangles
	for i := len(ids) - 1; i >= 0; i-- {
		if err := w.tx.Delete(&dbmodels.Specialization{}, ids[i]).Error; err != nil {
			return fmt.Errorf("failed to delete specialization %d: %w", ids[i], err)
		}
	}
	return nil
}

// AssignSpecialization links an organization to a specialization. Linking
// twice is a no-op.
func (w *Writer) AssignSpecialization(organizationID, specializationID int64) error {
	if err := w.mustExist(&dbmodels.Specialization{}, "specialization", specializationID); err != nil {
		return err
	}

	link := &dbmodels.OrganizationSpecialization{OrganizationID: organizationID, SpecializationID: specializationID}
	if err := w.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(link).Error; err != nil {
		return fmt.Errorf("failed to assign specialization: %w", translateError(err))
	}
	return nil
}

// Reset deletes every row of the directory.
func (w *Writer) Reset() error {
	tx := w.tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []interface{}{
		&dbmodels.OrganizationSpecialization{},
		&dbmodels.OrganizationBuilding{},
		&dbmodels.Organization{},
		&dbmodels.Specialization{},
		&dbmodels.Building{},
	} {
		if err := tx.Delete(model).Error; err != nil {
			return fmt.Errorf("failed to reset %T: %w", model, err)
		}
	}
	return nil
}

// ResyncSequences moves the Postgres id sequences past the highest stored
// id, needed after inserting rows with explicit ids. Other dialects track
// this themselves.
func (w *Writer) ResyncSequences() error {
	if w.tx.Dialector.Name() != "postgres" {
		return nil
	}
	for _, table := range []string{"buildings", "organizations", "specializations"} {
		stmt := fmt.Sprintf(
			"SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE(MAX(id), 1), MAX(id) IS NOT NULL) FROM %[1]s",
			table,
		)
		if err := w.tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to resync %s sequence: %w", table, err)
		}
	}
	return nil
}

func (w *Writer) parentOf(_ context.Context, id int64) (*int64, error) {
	var s dbmodels.Specialization
	res := w.tx.Select("id", "parent_id").Where("id = ?", id).Limit(1).Find(&s)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &e.NotFoundError{Resource: "specialization", ID: id}
	}
	return s.ParentID, nil
}

func (w *Writer) hasBuilding(_ context.Context, organizationID int64) (bool, error) {
	var count int64
	err := w.tx.Model(&dbmodels.OrganizationBuilding{}).
		Where("organization_id = ?", organizationID).
		Count(&count).Error
	return count > 0, err
}

func (w *Writer) mustExist(model interface{}, resource string, id int64) error {
	var count int64
	if err := w.tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return &e.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}

// subtree returns id and its descendants, level by level. The walk stops
// after MaxDepth levels.
func (w *Writer) subtree(id int64) ([]int64, error) {
	var root []int64
	if err := w.tx.Model(&dbmodels.Specialization{}).Where("id = ?", id).Pluck("id", &root).Error; err != nil {
		return nil, err
	}
	if len(root) == 0 {
		return nil, nil
	}

	all := root
	frontier := root
	for level := 1; level < integrity.MaxDepth && len(frontier) > 0; level++ {
		var next []int64
		if err := w.tx.Model(&dbmodels.Specialization{}).Where("parent_id IN ?", frontier).Pluck("id", &next).Error; err != nil {
			return nil, err
		}
		all = append(all, next...)
		frontier = next
	}
	return all, nil
}

// subtreeHeight returns the number of levels below and including id.
func (w *Writer) subtreeHeight(id int64) (int, error) {
	height := 1
	frontier := []int64{id}
	for height <= integrity.MaxDepth {
		var next []int64
		if err := w.tx.Model(&dbmodels.Specialization{}).Where("parent_id IN ?", frontier).Pluck("id", &next).Error; err != nil {
			return 0, err
		}
		if len(next) == 0 {
			break
		}
		height++
		frontier = next
	}
	return height, nil
}
