// Package routeinfo asks a directions service for the driving distance and
// duration between two points. It is an optional collaborator: with no API
// key configured the client reports itself disabled and callers skip ETA.
package routeinfo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the public OpenRouteService endpoint.
const DefaultBaseURL = "https://api.openrouteservice.org"

var ErrNoRoute = errors.New("routeinfo: no route found")

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lng float64
}

// Route is the summary of the best route.
type Route struct {
	DistanceMeters  float64
	DurationSeconds float64
}

// Client talks to the OpenRouteService directions API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New returns a client. An empty baseURL uses DefaultBaseURL.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type directionsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type directionsResponse struct {
	Features []struct {
		Properties struct {
			Summary struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

// GetRoute returns the driving route summary from origin to destination.
// Coordinates are sent lng-first as the API expects.
func (c *Client) GetRoute(ctx context.Context, origin, destination Point) (Route, error) {
	body, err := json.Marshal(directionsRequest{Coordinates: [][2]float64{
		{origin.Lng, origin.Lat},
		{destination.Lng, destination.Lat},
	}})
	if err != nil {
		return Route{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/directions/driving-car/geojson", bytes.NewReader(body))
	if err != nil {
		return Route{}, err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("routeinfo: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Route{}, ErrNoRoute
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Route{}, fmt.Errorf("routeinfo: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, fmt.Errorf("routeinfo: decode: %w", err)
	}
	if len(out.Features) == 0 {
		return Route{}, ErrNoRoute
	}
	s := out.Features[0].Properties.Summary
	return Route{DistanceMeters: s.Distance, DurationSeconds: s.Duration}, nil
}
