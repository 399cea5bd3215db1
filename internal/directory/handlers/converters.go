package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	e "github.com/NiKuma0/secunda-tz/internal/directory/errors"
	"github.com/NiKuma0/secunda-tz/internal/directory/models"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

var jsonMarshaler runtime.Marshaler = &runtime.JSONBuiltin{}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := jsonMarshaler.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"detail":"internal server error"}`)
	}
	w.Header().Set("Content-Type", jsonMarshaler.ContentType(v))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// mapServiceError maps domain or repository errors to HTTP status codes and
// writes the error body. Internal errors are logged and hidden from clients.
func (h *DirectoryHandler) mapServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, e.ErrNotFound):
		writeDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, e.ErrInvalidInput):
		writeDetail(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Internal server error",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
		)
		writeDetail(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseInt64(name, raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, e.InvalidInput("%s must be an integer", name)
	}
	return v, nil
}

func parseFloat(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, e.InvalidInput("%s must be a number", name)
	}
	return v, nil
}

// requiredFloat reads a mandatory numeric query parameter.
func requiredFloat(q url.Values, name string) (float64, error) {
	if !q.Has(name) {
		return 0, e.InvalidInput("%s is required", name)
	}
	return parseFloat(name, q.Get(name))
}

// optionalFloat returns nil when the parameter is absent.
func optionalFloat(q url.Values, name string) (*float64, error) {
	if !q.Has(name) {
		return nil, nil
	}
	v, err := parseFloat(name, q.Get(name))
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parsePage reads limit and offset. Absent values stay zero and are
// defaulted by the service.
func parsePage(q url.Values) (models.Page, error) {
	var page models.Page
	if q.Has("limit") {
		v, err := strconv.Atoi(q.Get("limit"))
		if err != nil {
			return page, e.InvalidInput("limit must be an integer")
		}
		if v == 0 {
			return page, e.InvalidInput("limit must be between 1 and %d", models.MaxLimit)
		}
		page.Limit = v
	}
	if q.Has("offset") {
		v, err := strconv.Atoi(q.Get("offset"))
		if err != nil {
			return page, e.InvalidInput("offset must be an integer")
		}
		page.Offset = v
	}
	return page, nil
}

// parseSpecIDs accepts both repeated (specs=1&specs=2) and comma separated
// (specs=1,2) forms.
func parseSpecIDs(q url.Values) ([]int64, error) {
	var ids []int64
	for _, raw := range q["specs"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := parseInt64("specs", part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, e.InvalidInput("specs is required")
	}
	return ids, nil
}

func parseBox(q url.Values) (models.BoundingBox, error) {
	var box models.BoundingBox
	var err error
	if box.LowerLeft.Longitude, err = requiredFloat(q, "ll_lon"); err != nil {
		return box, err
	}
	if box.LowerLeft.Latitude, err = requiredFloat(q, "ll_lat"); err != nil {
		return box, err
	}
	if box.UpperRight.Longitude, err = requiredFloat(q, "ur_lon"); err != nil {
		return box, err
	}
	if box.UpperRight.Latitude, err = requiredFloat(q, "ur_lat"); err != nil {
		return box, err
	}
	return box, nil
}

// parseLocation builds a LocationQuery from whichever of the radius
// (lon, lat, radius_m) and box (ll_lon, ll_lat, ur_lon, ur_lat) parameters
// are present. Deciding whether the combination is valid is left to the
// service.
func parseLocation(q url.Values) (models.LocationQuery, error) {
	var lq models.LocationQuery

	lon, err := optionalFloat(q, "lon")
	if err != nil {
		return lq, err
	}
	lat, err := optionalFloat(q, "lat")
	if err != nil {
		return lq, err
	}
	if lon != nil || lat != nil {
		if lon == nil || lat == nil {
			return lq, e.InvalidInput("lon and lat must be given together")
		}
		lq.Center = &models.Point{Longitude: *lon, Latitude: *lat}
	}
	if lq.RadiusM, err = optionalFloat(q, "radius_m"); err != nil {
		return lq, err
	}

	for _, name := range []string{"ll_lon", "ll_lat", "ur_lon", "ur_lat"} {
		if q.Has(name) {
			box, err := parseBox(q)
			if err != nil {
				return lq, err
			}
			lq.Box = &box
			break
		}
	}
	return lq, nil
}

func toList(orgs []models.Organization) *models.OrganizationList {
	if orgs == nil {
		orgs = []models.Organization{}
	}
	return &models.OrganizationList{Organizations: orgs}
}
