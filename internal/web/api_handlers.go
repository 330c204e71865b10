package web

import (
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/evcraddock/listings/internal/logging"
	"github.com/evcraddock/listings/internal/paragon"
)

// loadFailedMessage is the only detail a caller sees for feed failures.
const loadFailedMessage = "failed to load listings"

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	apiJSON(w, map[string]string{"error": msg}, code)
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data interface{}, code int) {
	b, err := json.Marshal(data)
	if err != nil {
		slog.Error("encoding response", "error", err)
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(append(b, '\n')); err != nil {
		slog.Debug("writing response", "error", err)
	}
}

// apiFailure maps a search error to its HTTP response.
func apiFailure(w http.ResponseWriter, r *http.Request, err error) {
	if paragon.IsValidation(err) {
		apiError(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Error("property search failed",
		"request_id", logging.RequestID(r.Context()),
		"error", err,
	)
	apiError(w, loadFailedMessage, http.StatusInternalServerError)
}

// apiSearchProperties handles GET /api/properties.
func (s *Server) apiSearchProperties(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	q, err := parseQuery(params)
	if err != nil {
		apiFailure(w, r, err)
		return
	}
	f, err := parseFilters(params)
	if err != nil {
		apiFailure(w, r, err)
		return
	}
	includeMedia, err := parseBool(params, "includeMedia", true)
	if err != nil {
		apiFailure(w, r, err)
		return
	}

	env, err := s.props.Search(r.Context(), q, f, includeMedia)
	if err != nil {
		apiFailure(w, r, err)
		return
	}
	apiJSON(w, env, http.StatusOK)
}

// apiGetProperty handles GET /api/properties/{id}.
func (s *Server) apiGetProperty(w http.ResponseWriter, r *http.Request) {
	includeMedia, err := parseBool(r.URL.Query(), "includeMedia", true)
	if err != nil {
		apiFailure(w, r, err)
		return
	}

	p, err := s.props.Get(r.Context(), chi.URLParam(r, "id"), includeMedia)
	if err != nil {
		apiFailure(w, r, err)
		return
	}
	if p == nil {
		apiError(w, "property not found", http.StatusNotFound)
		return
	}
	apiJSON(w, p, http.StatusOK)
}

// parseQuery picks the location selector. When several are present the
// first of propertyId, zipCode, streetName, city, county, address wins.
func parseQuery(params url.Values) (paragon.Query, error) {
	if v := params.Get("propertyId"); v != "" {
		return paragon.ByID{ID: v}, nil
	}
	if v := params.Get("zipCode"); v != "" {
		return paragon.ByZip{Zip: v}, nil
	}
	if v := params.Get("streetName"); v != "" {
		return paragon.ByStreet{Street: v}, nil
	}
	if v := params.Get("city"); v != "" {
		return paragon.ByCity{City: v}, nil
	}
	if v := params.Get("county"); v != "" {
		return paragon.ByCounty{County: v}, nil
	}
	if v := params.Get("address"); v != "" {
		radius, err := parseFloat(params, "radius")
		if err != nil {
			return nil, err
		}
		q := paragon.ByAddress{Address: v}
		if radius != nil {
			q.RadiusMiles = *radius
		}
		return q, nil
	}

	limit, err := parseInt(params, "limit")
	if err != nil {
		return nil, err
	}
	if limit != nil {
		return paragon.All{Limit: *limit}, nil
	}
	return paragon.All{}, nil
}

func parseFilters(params url.Values) (paragon.Filters, error) {
	var f paragon.Filters
	var err error

	if f.MinPrice, err = parseFloat(params, "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = parseFloat(params, "maxPrice"); err != nil {
		return f, err
	}
	if f.MinRooms, err = parseInt(params, "minRooms"); err != nil {
		return f, err
	}
	if f.MaxRooms, err = parseInt(params, "maxRooms"); err != nil {
		return f, err
	}

	for _, v := range params["propertyType"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.PropertyTypes = append(f.PropertyTypes, t)
			}
		}
	}
	return f, nil
}

func parseFloat(params url.Values, name string) (*float64, error) {
	v := strings.TrimSpace(params.Get(name))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, badParam(name, "must be a number")
	}
	return &n, nil
}

func parseInt(params url.Values, name string) (*int, error) {
	v := strings.TrimSpace(params.Get(name))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, badParam(name, "must be an integer")
	}
	return &n, nil
}

func parseBool(params url.Values, name string, def bool) (bool, error) {
	v := strings.TrimSpace(params.Get(name))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, badParam(name, "must be true or false")
	}
	return b, nil
}

func badParam(name, reason string) error {
	return &paragon.ValidationError{Field: name, Reason: reason}
}
