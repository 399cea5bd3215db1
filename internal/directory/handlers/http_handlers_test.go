package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	e "github.com/NiKuma0/secunda-tz/internal/directory/errors"
	"github.com/NiKuma0/secunda-tz/internal/directory/models"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// mockController is a testify mock of DirectoryController.
type mockController struct {
	mock.Mock
}

func orgsOrNil(v interface{}) []models.Organization {
	if v == nil {
		return nil
	}
	return v.([]models.Organization)
}

func (m *mockController) GetOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	args := m.Called(ctx, id)
	org, _ := args.Get(0).(*models.Organization)
	return org, args.Error(1)
}

func (m *mockController) ListByName(ctx context.Context, name string, p models.Page) ([]models.Organization, error) {
	args := m.Called(ctx, name, p)
	return orgsOrNil(args.Get(0)), args.Error(1)
}

func (m *mockController) ListByBuildingAddress(ctx context.Context, address string, p models.Page) ([]models.Organization, error) {
	args := m.Called(ctx, address, p)
	return orgsOrNil(args.Get(0)), args.Error(1)
}

func (m *mockController) ListByBuildingID(ctx context.Context, id int64, p models.Page) ([]models.Organization, error) {
	args := m.Called(ctx, id, p)
	return orgsOrNil(args.Get(0)), args.Error(1)
}

func (m *mockController) ListBySpecializations(ctx context.Context, ids []int64, p models.Page) ([]models.Organization, error) {
	args := m.Called(ctx, ids, p)
	return orgsOrNil(args.Get(0)), args.Error(1)
}

func (m *mockController) ListByRadius(ctx context.Context, c models.Point, r float64, p models.Page) ([]models.Organization, error) {
	args := m.Called(ctx, c, r, p)
	return orgsOrNil(args.Get(0)), args.Error(1)
}

func (m *mockController) ListByBox(ctx context.Context, b models.BoundingBox, p models.Page) ([]models.Organization, error) {
	args := m.Called(ctx, b, p)
	return orgsOrNil(args.Get(0)), args.Error(1)
}

func (m *mockController) ListByLocation(ctx context.Context, q models.LocationQuery, p models.Page) ([]models.Organization, error) {
	args := m.Called(ctx, q, p)
	return orgsOrNil(args.Get(0)), args.Error(1)
}

func (m *mockController) Search(ctx context.Context, text string, p models.Page) ([]models.Organization, error) {
	args := m.Called(ctx, text, p)
	return orgsOrNil(args.Get(0)), args.Error(1)
}

func (m *mockController) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newTestMux(t *testing.T, ctrl *mockController) http.Handler {
	mux := runtime.NewServeMux()
	require.NoError(t, NewDirectoryHandler(ctrl, zaptest.NewLogger(t)).Register(mux))
	return mux
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var sample = models.Organization{
	ID:                  1,
	Name:                "Tech Solutions Inc",
	Phone:               "+1-555-0123",
	BuildingID:          1,
	BuildingAddress:     "123 Main St",
	BuildingCoordinates: models.Coordinates{-73.935242, 40.73061},
	Specializations:     []models.Specialization{{ID: 1, Name: "Food"}},
}

func TestGetOrganizationRoute(t *testing.T) {
	ctrl := &mockController{}
	ctrl.On("GetOrganization", mock.Anything, int64(1)).Return(&sample, nil)
	ctrl.On("GetOrganization", mock.Anything, int64(99)).Return(nil, &e.NotFoundError{Resource: "organization", ID: 99})
	mux := newTestMux(t, ctrl)

	rec := do(t, mux, "/api/v1/organizations/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"id": 1,
		"name": "Tech Solutions Inc",
		"phone": "+1-555-0123",
		"building_id": 1,
		"building_address": "123 Main St",
		"building_coordinates": [-73.935242, 40.73061],
		"specializations": [{"id": 1, "name": "Food", "parent_id": null}]
	}`, rec.Body.String())

	rec = do(t, mux, "/api/v1/organizations/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail": "organization (id=99) not found"}`, rec.Body.String())

	rec = do(t, mux, "/api/v1/organizations/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ctrl.AssertExpectations(t)
}

// TestFixedRoutesWinOverID makes sure /organizations/{id} does not swallow
// the named routes.
func TestFixedRoutesWinOverID(t *testing.T) {
	ctrl := &mockController{}
	page := models.Page{}
	ctrl.On("ListByBuildingAddress", mock.Anything, "123 Main St", page).Return([]models.Organization{sample}, nil)
	ctrl.On("ListByBox", mock.Anything, mock.Anything, page).Return([]models.Organization{}, nil)
	ctrl.On("ListBySpecializations", mock.Anything, []int64{1, 2, 3}, page).Return([]models.Organization{}, nil)
	ctrl.On("Search", mock.Anything, "tech", page).Return([]models.Organization{}, nil)
	mux := newTestMux(t, ctrl)

	rec := do(t, mux, "/api/v1/organizations/building?address=123+Main+St")
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.OrganizationList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Organizations, 1)

	rec = do(t, mux, "/api/v1/organizations/box?ll_lon=0&ll_lat=0&ur_lon=0.01&ur_lat=0.01")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "/api/v1/organizations/specs?specs=1&specs=2,3")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, "/api/v1/organizations/search?q=tech")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"organizations": []}`, rec.Body.String())

	ctrl.AssertNotCalled(t, "GetOrganization", mock.Anything, mock.Anything)
	ctrl.AssertExpectations(t)
}

func TestListRoutesBindParameters(t *testing.T) {
	ctrl := &mockController{}
	ctrl.On("ListByName", mock.Anything, "Acme", models.Page{Limit: 2, Offset: 1}).Return([]models.Organization{}, nil)
	ctrl.On("ListByBuildingID", mock.Anything, int64(12), models.Page{}).Return(nil, nil)
	ctrl.On("ListByRadius", mock.Anything, models.Point{Longitude: -73.9, Latitude: 40.7}, 500.0, models.Page{}).
		Return([]models.Organization{sample}, nil)
	ctrl.On("ListByBox", mock.Anything, models.BoundingBox{
		LowerLeft:  models.Point{Longitude: -74, Latitude: 40},
		UpperRight: models.Point{Longitude: -73, Latitude: 41},
	}, models.Page{Limit: 5}).Return([]models.Organization{}, nil)
	mux := newTestMux(t, ctrl)

	assert.Equal(t, http.StatusOK, do(t, mux, "/api/v1/organizations?name=Acme&limit=2&offset=1").Code)

	rec := do(t, mux, "/api/v1/organizations/building/12")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"organizations": []}`, rec.Body.String(), "nil lists encode as empty arrays")

	assert.Equal(t, http.StatusOK, do(t, mux, "/api/v1/organizations/radius?lon=-73.9&lat=40.7&radius_m=500").Code)
	assert.Equal(t, http.StatusOK, do(t, mux, "/api/v1/organizations/box?ll_lon=-74&ll_lat=40&ur_lon=-73&ur_lat=41&limit=5").Code)

	ctrl.AssertExpectations(t)
}

func TestBadParameters(t *testing.T) {
	ctrl := &mockController{}
	mux := newTestMux(t, ctrl)

	for _, target := range []string{
		"/api/v1/organizations/radius?lon=-73.9&lat=40.7",
		"/api/v1/organizations/radius?lon=x&lat=40.7&radius_m=1",
		"/api/v1/organizations/box?ll_lon=0&ll_lat=0&ur_lon=1",
		"/api/v1/organizations/specs",
		"/api/v1/organizations/specs?specs=a",
		"/api/v1/organizations?name=Acme&limit=zero",
		"/api/v1/organizations?name=Acme&limit=0",
		"/api/v1/organizations/building/x",
		"/api/v1/organizations/location?lon=1",
	} {
		rec := do(t, mux, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), `"detail"`, target)
	}
	ctrl.AssertNotCalled(t, "ListByRadius", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLocationRoute(t *testing.T) {
	radius := 100.0
	ctrl := &mockController{}
	ctrl.On("ListByLocation", mock.Anything, models.LocationQuery{
		Center:  &models.Point{Longitude: 1, Latitude: 2},
		RadiusM: &radius,
	}, models.Page{}).Return([]models.Organization{}, nil)
	ctrl.On("ListByLocation", mock.Anything, mock.MatchedBy(func(q models.LocationQuery) bool {
		return q.Box != nil && q.Center != nil
	}), models.Page{}).Return(nil, e.InvalidInput("radius and box search cannot be combined"))
	mux := newTestMux(t, ctrl)

	assert.Equal(t, http.StatusOK, do(t, mux, "/api/v1/organizations/location?lon=1&lat=2&radius_m=100").Code)

	rec := do(t, mux, "/api/v1/organizations/location?lon=1&lat=2&radius_m=100&ll_lon=0&ll_lat=0&ur_lon=1&ur_lat=1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "cannot be combined")
}

func TestInternalErrorIsHidden(t *testing.T) {
	ctrl := &mockController{}
	ctrl.On("ListByName", mock.Anything, "Acme", models.Page{}).Return(nil, errors.New("pq: password authentication failed"))
	mux := newTestMux(t, ctrl)

	rec := do(t, mux, "/api/v1/organizations?name=Acme")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail": "internal server error"}`, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	ctrl := &mockController{}
	ctrl.On("Ping", mock.Anything).Return(nil).Once()
	ctrl.On("Ping", mock.Anything).Return(errors.New("down")).Once()
	mux := newTestMux(t, ctrl)

	assert.Equal(t, http.StatusOK, do(t, mux, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, mux, "/healthz").Code)
}
