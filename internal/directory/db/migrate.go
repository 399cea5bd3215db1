package db

import (
	"context"
	"fmt"

	"github.com/NiKuma0/secunda-tz/internal/directory/db/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// postgisStatements run after AutoMigrate on Postgres. Every statement is
// idempotent so Migrate can run on each start.
var postgisStatements = []string{
	// full-text vectors, kept out of the gorm models
	`ALTER TABLE organizations ADD COLUMN IF NOT EXISTS search_vector tsvector`,
	`ALTER TABLE buildings ADD COLUMN IF NOT EXISTS search_vector tsvector`,
	`ALTER TABLE specializations ADD COLUMN IF NOT EXISTS search_vector tsvector`,

	`CREATE INDEX IF NOT EXISTS idx_buildings_point ON buildings USING GIST (point)`,
	`CREATE INDEX IF NOT EXISTS idx_organizations_search_vector ON organizations USING GIN (search_vector)`,
	`CREATE INDEX IF NOT EXISTS idx_buildings_search_vector ON buildings USING GIN (search_vector)`,
	`CREATE INDEX IF NOT EXISTS idx_specializations_search_vector ON specializations USING GIN (search_vector)`,

	`CREATE OR REPLACE FUNCTION check_specialization_depth() RETURNS TRIGGER AS $$
DECLARE
	current_parent_id BIGINT;
	depth INT := 1;
BEGIN
	current_parent_id := NEW.parent_id;
	WHILE current_parent_id IS NOT NULL LOOP
		IF current_parent_id = NEW.id THEN
			RAISE EXCEPTION 'Specialization (id=%) cannot be its own ancestor', NEW.id
				USING ERRCODE = 'check_violation', CONSTRAINT = 'specialization_depth';
		END IF;
		depth := depth + 1;
		IF depth > 3 THEN
			RAISE EXCEPTION 'Specialization nesting level cannot exceed 3'
				USING ERRCODE = 'check_violation', CONSTRAINT = 'specialization_depth';
		END IF;
		SELECT parent_id INTO current_parent_id FROM specializations WHERE id = current_parent_id;
	END LOOP;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`,

	`CREATE OR REPLACE FUNCTION ensure_org_has_building() RETURNS TRIGGER AS $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM organization_buildings ob WHERE ob.organization_id = NEW.id
	) THEN
		RAISE EXCEPTION 'Organization (id=%) must have at least one building', NEW.id
			USING ERRCODE = 'check_violation', CONSTRAINT = 'organization_has_building', DETAIL = NEW.id::text;
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS trg_specialization_depth_check ON specializations`,
	`CREATE TRIGGER trg_specialization_depth_check
	BEFORE INSERT OR UPDATE ON specializations
	FOR EACH ROW EXECUTE FUNCTION check_specialization_depth()`,

	`DROP TRIGGER IF EXISTS trg_ensure_org_has_building ON organizations`,
	`CREATE CONSTRAINT TRIGGER trg_ensure_org_has_building
	AFTER INSERT OR UPDATE ON organizations
	DEFERRABLE INITIALLY DEFERRED
	FOR EACH ROW EXECUTE FUNCTION ensure_org_has_building()`,

	`DROP TRIGGER IF EXISTS trg_organizations_update_search_vector ON organizations`,
	`CREATE TRIGGER trg_organizations_update_search_vector
	BEFORE INSERT OR UPDATE ON organizations
	FOR EACH ROW EXECUTE FUNCTION tsvector_update_trigger(search_vector, 'pg_catalog.english', name)`,

	`DROP TRIGGER IF EXISTS trg_building_update_search_vector ON buildings`,
	`CREATE TRIGGER trg_building_update_search_vector
	BEFORE INSERT OR UPDATE ON buildings
	FOR EACH ROW EXECUTE FUNCTION tsvector_update_trigger(search_vector, 'pg_catalog.english', address)`,

	`DROP TRIGGER IF EXISTS trg_specialization_update_search_vector ON specializations`,
	`CREATE TRIGGER trg_specialization_update_search_vector
	BEFORE INSERT OR UPDATE ON specializations
	FOR EACH ROW EXECUTE FUNCTION tsvector_update_trigger(search_vector, 'pg_catalog.english', name)`,
}

// Migrate brings the schema up to date. Every dialect gets the gorm
// AutoMigrate tables; Postgres additionally gets PostGIS, the search vectors,
// the spatial and text indexes and the integrity triggers.
func Migrate(ctx context.Context, gdb *gorm.DB, logger *zap.Logger) error {
	tx := gdb.WithContext(ctx)
	isPostgres := gdb.Dialector.Name() == "postgres"

	if isPostgres {
		if err := tx.Exec(`CREATE EXTENSION IF NOT EXISTS postgis`).Error; err != nil {
			return fmt.Errorf("failed to enable postgis: %w", err)
		}
	}

	if err := models.Register(tx); err != nil {
		return fmt.Errorf("failed to register join tables: %w", err)
	}
	if err := tx.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if !isPostgres {
		logger.Info("schema migrated", zap.String("dialect", gdb.Dialector.Name()))
		return nil
	}

	for i, stmt := range postgisStatements {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}

	logger.Info("schema migrated",
		zap.String("dialect", gdb.Dialector.Name()),
		zap.Int("statements", len(postgisStatements)),
	)
	return nil
}
