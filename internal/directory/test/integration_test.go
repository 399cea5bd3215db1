package test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/NiKuma0/secunda-tz/internal/directory/controller"
	"github.com/NiKuma0/secunda-tz/internal/directory/db"
	dbmodels "github.com/NiKuma0/secunda-tz/internal/directory/db/models"
	e "github.com/NiKuma0/secunda-tz/internal/directory/errors"
	"github.com/NiKuma0/secunda-tz/internal/directory/models"
	"github.com/NiKuma0/secunda-tz/internal/directory/seed"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DSNEnv names the variable holding the PostGIS database the suite runs
// against. The suite wipes the directory tables of that database.
const DSNEnv = "DIRECTORY_TEST_DSN"

type IntegrationTestSuite struct {
	suite.Suite
	repo    *db.Repository
	raw     *gorm.DB
	svc     *controller.DirectoryService
	seeder  *seed.Seeder
	logger  *zap.Logger
	timeout time.Duration
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests")
	}
	if os.Getenv(DSNEnv) == "" {
		t.Skipf("Skipping integration tests: %s is not set", DSNEnv)
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.logger = zap.NewNop()
	s.timeout = 20 * time.Second
	dsn := os.Getenv(DSNEnv)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var err error
	s.repo, err = db.NewRepository(ctx, &db.Config{DSN: dsn, ConnectRetries: 10}, s.logger)
	s.Require().NoError(err, "database initialization failed")
	s.Require().NoError(s.repo.Migrate(ctx))

	// A second handle that bypasses the Writer, to reach the store triggers.
	err = backoff.Retry(func() error {
		s.raw, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
		return err
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5))
	s.Require().NoError(err)

	s.svc = controller.NewDirectoryService(s.repo, s.logger)
	s.seeder = seed.NewSeeder(s.repo, s.logger)
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.raw != nil {
		if sqlDB, err := s.raw.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if s.repo != nil {
		_ = s.repo.Close()
	}
}

func (s *IntegrationTestSuite) SetupTest() {
	ds, err := seed.Default()
	s.Require().NoError(err)
	s.Require().NoError(s.seeder.Load(s.ctx(), ds, seed.Options{Reset: true}))
}

func (s *IntegrationTestSuite) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.T().Cleanup(cancel)
	return ctx
}

func ids(orgs []models.Organization) []int64 {
	out := make([]int64, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, o.ID)
	}
	return out
}

func (s *IntegrationTestSuite) TestCoordinatesRoundTrip() {
	org, err := s.svc.GetOrganization(s.ctx(), 1)
	s.Require().NoError(err)
	s.InDelta(-73.935242, org.BuildingCoordinates.Longitude(), 1e-9)
	s.InDelta(40.730610, org.BuildingCoordinates.Latitude(), 1e-9)

	_, err = s.svc.GetOrganization(s.ctx(), 999)
	s.ErrorIs(err, e.ErrNotFound)
}

func (s *IntegrationTestSuite) TestRadius() {
	center := models.Point{Longitude: -73.935242, Latitude: 40.730610}

	orgs, err := s.repo.ListByRadius(s.ctx(), center, 0, models.DefaultPage())
	s.Require().NoError(err)
	s.Equal([]int64{1, 10}, ids(orgs), "radius 0 still matches the building at the center")

	// 789 Broadway is roughly 5 km from 123 Main St.
	orgs, err = s.repo.ListByRadius(s.ctx(), center, 1000, models.DefaultPage())
	s.Require().NoError(err)
	s.Equal([]int64{1, 10}, ids(orgs))

	orgs, err = s.repo.ListByRadius(s.ctx(), center, 10000, models.DefaultPage())
	s.Require().NoError(err)
	s.Len(orgs, 10)

	orgs, err = s.repo.ListByRadius(s.ctx(), models.Point{Longitude: 37.6, Latitude: 55.7}, 10000, models.DefaultPage())
	s.Require().NoError(err)
	s.Empty(orgs)
}

func (s *IntegrationTestSuite) TestBox() {
	box := models.BoundingBox{
		LowerLeft:  models.Point{Longitude: -73.94, Latitude: 40.72},
		UpperRight: models.Point{Longitude: -73.93, Latitude: 40.74},
	}
	orgs, err := s.repo.ListByBox(s.ctx(), box, models.DefaultPage())
	s.Require().NoError(err)
	s.Equal([]int64{1, 10}, ids(orgs))

	err = s.repo.WithWriteTransaction(s.ctx(), func(w *db.Writer) error {
		if err := w.CreateBuilding(&dbmodels.Building{ID: 100, Address: "Edge", Point: dbmodels.Point{Longitude: 0.011, Latitude: 0.005}}); err != nil {
			return err
		}
		if err := w.CreateOrganization(&dbmodels.Organization{ID: 100, Name: "Outside", Phone: "0"}); err != nil {
			return err
		}
		return w.AssignBuilding(100, 100)
	})
	s.Require().NoError(err)

	orgs, err = s.repo.ListByBox(s.ctx(), models.BoundingBox{
		UpperRight: models.Point{Longitude: 0.01, Latitude: 0.01},
	}, models.DefaultPage())
	s.Require().NoError(err)
	s.Empty(orgs, "a point just east of the box is outside")

	orgs, err = s.repo.ListByBox(s.ctx(), models.BoundingBox{
		UpperRight: models.Point{Longitude: 0.02, Latitude: 0.01},
	}, models.DefaultPage())
	s.Require().NoError(err)
	s.Equal([]int64{100}, ids(orgs))

	orgs, err = s.repo.ListByBox(s.ctx(), models.BoundingBox{
		LowerLeft:  models.Point{Longitude: -89, Latitude: -10},
		UpperRight: models.Point{Longitude: 89, Latitude: 10},
	}, models.DefaultPage())
	s.Require().NoError(err)
	s.Equal([]int64{100}, ids(orgs), "a wide box keeps its east-west extent")

	_, err = s.repo.ListByBox(s.ctx(), models.BoundingBox{
		LowerLeft:  models.Point{Longitude: -170, Latitude: -10},
		UpperRight: models.Point{Longitude: 170, Latitude: 10},
	}, models.DefaultPage())
	s.ErrorIs(err, e.ErrInvalidInput)
}

func (s *IntegrationTestSuite) TestLocation() {
	radius := 1000.0
	orgs, err := s.svc.ListByLocation(s.ctx(), models.LocationQuery{
		Center:  &models.Point{Longitude: -73.935242, Latitude: 40.730610},
		RadiusM: &radius,
	}, models.Page{})
	s.Require().NoError(err)
	s.Equal([]int64{1, 10}, ids(orgs))

	_, err = s.svc.ListByLocation(s.ctx(), models.LocationQuery{}, models.Page{})
	s.ErrorIs(err, e.ErrInvalidInput)
}

func (s *IntegrationTestSuite) TestSearch() {
	orgs, err := s.repo.Search(s.ctx(), "energy", models.DefaultPage())
	s.Require().NoError(err)
	s.Equal([]int64{4}, ids(orgs))

	orgs, err = s.repo.Search(s.ctx(), "Broadway", models.DefaultPage())
	s.Require().NoError(err)
	s.Equal([]int64{2}, ids(orgs), "the building address is searched too")

	orgs, err = s.repo.Search(s.ctx(), "zeppelin", models.DefaultPage())
	s.Require().NoError(err)
	s.Empty(orgs)
}

func (s *IntegrationTestSuite) TestDepthTrigger() {
	// Seeded trees are two levels deep; a third level is allowed.
	s.Require().NoError(s.repo.Exec(s.ctx(), "INSERT INTO specializations (id, name, parent_id) VALUES (100, 'Frontend', 2)"))

	err := s.repo.Exec(s.ctx(), "INSERT INTO specializations (id, name, parent_id) VALUES (101, 'React', 100)")
	s.ErrorIs(err, e.ErrSpecializationDepth)

	err = s.repo.Exec(s.ctx(), "UPDATE specializations SET parent_id = 100 WHERE id = 1")
	s.ErrorIs(err, e.ErrSpecializationDepth, "a cycle is rejected too")
}

func (s *IntegrationTestSuite) TestBuildingTriggerIsDeferred() {
	err := s.raw.WithContext(s.ctx()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("INSERT INTO organizations (id, name, phone) VALUES (200, 'Late', '0')").Error; err != nil {
			return err
		}
		return tx.Exec("INSERT INTO organization_buildings (organization_id, building_id) VALUES (200, 2)").Error
	})
	s.Require().NoError(err, "the building may be linked later in the same transaction")

	err = s.raw.WithContext(s.ctx()).Transaction(func(tx *gorm.DB) error {
		return tx.Exec("INSERT INTO organizations (id, name, phone) VALUES (201, 'Homeless', '0')").Error
	})
	var pgErr *pgconn.PgError
	s.Require().True(errors.As(err, &pgErr), "commit fails with %v", err)
	s.Equal("organization_has_building", pgErr.ConstraintName)
	s.Equal("201", pgErr.Detail)

	org, err := s.repo.GetOrganization(s.ctx(), 201)
	s.Require().NoError(err)
	s.Nil(org)
}

func (s *IntegrationTestSuite) TestWriterSurfacesTypedErrors() {
	err := s.repo.WithWriteTransaction(s.ctx(), func(w *db.Writer) error {
		return w.CreateOrganization(&dbmodels.Organization{ID: 300, Name: "Orphan", Phone: "0"})
	})
	var target *e.OrganizationWithoutBuildingError
	s.Require().ErrorAs(err, &target)
	s.Equal(int64(300), target.OrganizationID)
}
