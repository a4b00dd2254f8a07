// Package maps resolves addresses and driving distances through the Google
// Maps web services.
package maps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"soulease/backend/internal/domain/geo"
)

const (
	googleGeocodeURL  = "https://maps.googleapis.com/maps/api/geocode/json"
	googleDistanceURL = "https://maps.googleapis.com/maps/api/distancematrix/json"

	geocodeCacheTTL    = 30 * 24 * time.Hour
	distanceCacheTTL   = time.Hour
	defaultHTTPTimeout = 8 * time.Second
)

// ErrNoResults means the lookup succeeded but matched nothing.
var ErrNoResults = errors.New("no results")

// Address is a geocoding result.
type Address struct {
	FormattedAddress string    `json:"formattedAddress"`
	Location         geo.Point `json:"location"`
	PlaceID          string    `json:"placeId,omitempty"`
}

type Options struct {
	Cache       Cache
	HTTPClient  *http.Client
	GeocodeURL  string
	DistanceURL string
	Language    string
}

// Client talks to the Geocoding and Distance Matrix APIs.
type Client struct {
	apiKey      string
	cache       Cache
	httpClient  *http.Client
	geocodeURL  string
	distanceURL string
	language    string
}

func NewClient(apiKey string, opts Options) *Client {
	c := &Client{
		apiKey:      apiKey,
		cache:       opts.Cache,
		httpClient:  opts.HTTPClient,
		geocodeURL:  opts.GeocodeURL,
		distanceURL: opts.DistanceURL,
		language:    opts.Language,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if strings.TrimSpace(c.geocodeURL) == "" {
		c.geocodeURL = googleGeocodeURL
	}
	if strings.TrimSpace(c.distanceURL) == "" {
		c.distanceURL = googleDistanceURL
	}
	return c
}

func (c *Client) Geocode(ctx context.Context, address string) (*Address, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return nil, fmt.Errorf("address is required")
	}
	key := "maps:geocode:" + hashKey(strings.ToLower(trimmed))
	var out Address
	if c.cached(ctx, key, &out) {
		return &out, nil
	}

	resp, err := c.geocode(ctx, url.Values{"address": []string{trimmed}})
	if err != nil {
		return nil, err
	}
	out = resp
	c.store(ctx, key, out, geocodeCacheTTL)
	return &out, nil
}

func (c *Client) ReverseGeocode(ctx context.Context, p geo.Point) (*Address, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid coordinates")
	}
	latlng := fmt.Sprintf("%.5f,%.5f", p.Lat, p.Lng)
	key := "maps:reverse:" + hashKey(latlng)
	var out Address
	if c.cached(ctx, key, &out) {
		return &out, nil
	}

	resp, err := c.geocode(ctx, url.Values{"latlng": []string{latlng}})
	if err != nil {
		return nil, err
	}
	out = resp
	c.store(ctx, key, out, geocodeCacheTTL)
	return &out, nil
}

// DrivingDistance returns the driving route between two points.
func (c *Client) DrivingDistance(ctx context.Context, from, to geo.Point) (geo.Route, error) {
	origin := fmt.Sprintf("%.5f,%.5f", from.Lat, from.Lng)
	dest := fmt.Sprintf("%.5f,%.5f", to.Lat, to.Lng)
	key := "maps:distance:" + hashKey(origin+"|"+dest)
	var out geo.Route
	if c.cached(ctx, key, &out) {
		return out, nil
	}

	params := url.Values{
		"origins":      []string{origin},
		"destinations": []string{dest},
		"mode":         []string{"driving"},
	}
	var payload distanceMatrixResponse
	if err := c.get(ctx, c.distanceURL, params, &payload); err != nil {
		return geo.Route{}, err
	}
	if payload.Status != "OK" {
		return geo.Route{}, apiError("distance matrix", payload.Status, payload.ErrorMessage)
	}
	if len(payload.Rows) == 0 || len(payload.Rows[0].Elements) == 0 {
		return geo.Route{}, fmt.Errorf("distance matrix: %w", ErrNoResults)
	}
	el := payload.Rows[0].Elements[0]
	if el.Status != "OK" {
		return geo.Route{}, fmt.Errorf("distance matrix element: %s: %w", el.Status, ErrNoResults)
	}
	out = geo.Route{
		DistanceKm:  float64(el.Distance.Value) / 1000,
		DurationMin: float64(el.Duration.Value) / 60,
	}
	c.store(ctx, key, out, distanceCacheTTL)
	return out, nil
}

func (c *Client) geocode(ctx context.Context, params url.Values) (Address, error) {
	var payload geocodeResponse
	if err := c.get(ctx, c.geocodeURL, params, &payload); err != nil {
		return Address{}, err
	}
	if payload.Status == "ZERO_RESULTS" || (payload.Status == "OK" && len(payload.Results) == 0) {
		return Address{}, fmt.Errorf("geocode: %w", ErrNoResults)
	}
	if payload.Status != "OK" {
		return Address{}, apiError("geocode", payload.Status, payload.ErrorMessage)
	}
	r := payload.Results[0]
	return Address{
		FormattedAddress: r.FormattedAddress,
		Location:         geo.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		PlaceID:          r.PlaceID,
	}, nil
}

func (c *Client) get(ctx context.Context, base string, params url.Values, into any) error {
	if c.apiKey == "" {
		return fmt.Errorf("google maps api key is required")
	}
	params.Set("key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build maps request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("maps request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("maps request returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("failed to decode maps response: %w", err)
	}
	return nil
}

func (c *Client) cached(ctx context.Context, key string, into any) bool {
	if c.cache == nil {
		return false
	}
	b, err := c.cache.Get(ctx, key)
	if err != nil || len(b) == 0 {
		return false
	}
	return json.Unmarshal(b, into) == nil
}

func (c *Client) store(ctx context.Context, key string, v any, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	if b, err := json.Marshal(v); err == nil {
		_ = c.cache.Set(ctx, key, b, ttl)
	}
}

func apiError(op, status, msg string) error {
	if msg != "" {
		return fmt.Errorf("%s failed: %s - %s", op, status, msg)
	}
	return fmt.Errorf("%s failed: %s", op, status)
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		PlaceID          string `json:"place_id"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type distanceMatrixResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Rows         []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				Value int `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
		} `json:"elements"`
	} `json:"rows"`
}
