package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"soulease/backend/internal/domain/geo"
)

type APIError struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Fail(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, APIError{Message: msg})
}

const maxBodyBytes = 1 << 20

// readJSON decodes the request body into v, failing the request on error.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Fail(w, 400, "invalid json")
		return false
	}
	return true
}

// queryPoint reads a lat/lng pair from the query string.
func queryPoint(r *http.Request, latKey, lngKey string) (geo.Point, bool) {
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get(latKey)), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get(lngKey)), 64)
	if err1 != nil || err2 != nil {
		return geo.Point{}, false
	}
	p := geo.Point{Lat: lat, Lng: lng}
	return p, p.Valid()
}

func queryInt(r *http.Request, key string, def int) int {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
