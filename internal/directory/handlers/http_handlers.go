package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/NiKuma0/secunda-tz/internal/directory/metrics"
	"github.com/NiKuma0/secunda-tz/internal/directory/models"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

// APIPrefix is the path prefix of every directory route.
const APIPrefix = "/api/v1"

// DirectoryController defines the business logic interface the HTTP
// handlers invoke.
type DirectoryController interface {
	GetOrganization(ctx context.Context, id int64) (*models.Organization, error)
	ListByName(ctx context.Context, name string, page models.Page) ([]models.Organization, error)
	ListByBuildingAddress(ctx context.Context, address string, page models.Page) ([]models.Organization, error)
	ListByBuildingID(ctx context.Context, buildingID int64, page models.Page) ([]models.Organization, error)
	ListBySpecializations(ctx context.Context, ids []int64, page models.Page) ([]models.Organization, error)
	ListByRadius(ctx context.Context, center models.Point, radiusM float64, page models.Page) ([]models.Organization, error)
	ListByBox(ctx context.Context, box models.BoundingBox, page models.Page) ([]models.Organization, error)
	ListByLocation(ctx context.Context, q models.LocationQuery, page models.Page) ([]models.Organization, error)
	Search(ctx context.Context, text string, page models.Page) ([]models.Organization, error)
	Ping(ctx context.Context) error
}

// DirectoryHandler binds HTTP requests to the DirectoryController.
type DirectoryHandler struct {
	svc    DirectoryController
	logger *zap.Logger
}

func NewDirectoryHandler(svc DirectoryController, logger *zap.Logger) *DirectoryHandler {
	return &DirectoryHandler{
		svc:    svc,
		logger: logger.Named("http"),
	}
}

type route struct {
	pattern string
	handle  runtime.HandlerFunc
}

// Register mounts the directory routes on mux. runtime.ServeMux tries the
// most recently registered pattern first, so the catch-all
// /organizations/{organization_id} is registered before the fixed paths it
// would otherwise shadow.
func (h *DirectoryHandler) Register(mux *runtime.ServeMux) error {
	routes := []route{
		{APIPrefix + "/organizations/{organization_id}", h.getOrganization},
		{APIPrefix + "/organizations", h.listByName},
		{APIPrefix + "/organizations/building/{building_id}", h.listByBuildingID},
		{APIPrefix + "/organizations/building", h.listByBuildingAddress},
		{APIPrefix + "/organizations/radius", h.listByRadius},
		{APIPrefix + "/organizations/box", h.listByBox},
		{APIPrefix + "/organizations/specs", h.listBySpecializations},
		{APIPrefix + "/organizations/location", h.listByLocation},
		{APIPrefix + "/organizations/search", h.search},
		{"/healthz", h.healthz},
	}

	for _, rt := range routes {
		if err := mux.HandlePath(http.MethodGet, rt.pattern, h.instrument(rt.pattern, rt.handle)); err != nil {
			return fmt.Errorf("failed to register route %s: %w", rt.pattern, err)
		}
	}
	return nil
}

// instrument records request count and latency under the route pattern.
func (h *DirectoryHandler) instrument(pattern string, next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		rec := record(w)
		next(rec, r, params)

		metrics.HTTPRequestsTotal.WithLabelValues(pattern, r.Method, strconv.Itoa(rec.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	}
}

func (h *DirectoryHandler) getOrganization(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := parseInt64("organization_id", params["organization_id"])
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}

	org, err := h.svc.GetOrganization(r.Context(), id)
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (h *DirectoryHandler) listByName(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	h.list(w, r, func(ctx context.Context, page models.Page) ([]models.Organization, error) {
		return h.svc.ListByName(ctx, q.Get("name"), page)
	})
}

func (h *DirectoryHandler) listByBuildingID(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := parseInt64("building_id", params["building_id"])
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}
	h.list(w, r, func(ctx context.Context, page models.Page) ([]models.Organization, error) {
		return h.svc.ListByBuildingID(ctx, id, page)
	})
}

func (h *DirectoryHandler) listByBuildingAddress(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	h.list(w, r, func(ctx context.Context, page models.Page) ([]models.Organization, error) {
		return h.svc.ListByBuildingAddress(ctx, q.Get("address"), page)
	})
}

func (h *DirectoryHandler) listByRadius(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	var (
		center models.Point
		radius float64
		err    error
	)
	if center.Longitude, err = requiredFloat(q, "lon"); err == nil {
		if center.Latitude, err = requiredFloat(q, "lat"); err == nil {
			radius, err = requiredFloat(q, "radius_m")
		}
	}
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}

	h.list(w, r, func(ctx context.Context, page models.Page) ([]models.Organization, error) {
		return h.svc.ListByRadius(ctx, center, radius, page)
	})
}

func (h *DirectoryHandler) listByBox(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	box, err := parseBox(r.URL.Query())
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}
	h.list(w, r, func(ctx context.Context, page models.Page) ([]models.Organization, error) {
		return h.svc.ListByBox(ctx, box, page)
	})
}

func (h *DirectoryHandler) listBySpecializations(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	ids, err := parseSpecIDs(r.URL.Query())
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}
	h.list(w, r, func(ctx context.Context, page models.Page) ([]models.Organization, error) {
		return h.svc.ListBySpecializations(ctx, ids, page)
	})
}

func (h *DirectoryHandler) listByLocation(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	lq, err := parseLocation(r.URL.Query())
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}
	h.list(w, r, func(ctx context.Context, page models.Page) ([]models.Organization, error) {
		return h.svc.ListByLocation(ctx, lq, page)
	})
}

func (h *DirectoryHandler) search(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	h.list(w, r, func(ctx context.Context, page models.Page) ([]models.Organization, error) {
		return h.svc.Search(ctx, q.Get("q"), page)
	})
}

func (h *DirectoryHandler) healthz(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := h.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// list parses the page window, runs fetch and writes the list envelope.
func (h *DirectoryHandler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context, models.Page) ([]models.Organization, error)) {
	page, err := parsePage(r.URL.Query())
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}

	orgs, err := fetch(r.Context(), page)
	if err != nil {
		h.mapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toList(orgs))
}
