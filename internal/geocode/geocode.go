// Package geocode resolves free-text place queries to coordinates through
// the Mapbox geocoding v5 API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public Mapbox API host.
const DefaultBaseURL = "https://api.mapbox.com"

var (
	// ErrNotFound means the query produced zero features.
	ErrNotFound = errors.New("no results found")
	// ErrTransport covers network failures, non-2xx responses and bad payloads.
	ErrTransport = errors.New("geocoding request failed")
	// ErrNoToken is returned by every lookup when no access token is configured.
	ErrNoToken = fmt.Errorf("%w: geocoding unavailable: no access token", ErrTransport)
)

// Place is one geocoding feature.
type Place struct {
	Name string  `json:"name" doc:"Full place name" example:"Paris, France"`
	Lng  float64 `json:"lng" doc:"Longitude of the feature centre" example:"2.3522"`
	Lat  float64 `json:"lat" doc:"Latitude of the feature centre" example:"48.8566"`
}

// Point returns the feature centre.
func (p Place) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Geocoder resolves a query to its best match.
type Geocoder interface {
	Lookup(ctx context.Context, query string) (Place, error)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       string
	Limit       int
	HTTPClient  *http.Client
	MaxAttempts int
	Backoff     time.Duration
	Logger      zerolog.Logger
}

// Client talks to the geocoding HTTP API.
type Client struct {
	baseURL     string
	token       string
	limit       int
	session     *http.Client
	maxAttempts int
	backoff     time.Duration
	log         zerolog.Logger
}

// NewClient fills unset options with defaults.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		token:       opts.Token,
		limit:       opts.Limit,
		session:     opts.HTTPClient,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		log:         opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.limit <= 0 {
		c.limit = 5
	}
	if c.session == nil {
		c.session = &http.Client{Timeout: 10 * time.Second}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 4
	}
	if c.backoff <= 0 {
		c.backoff = 200 * time.Millisecond
	}
	return c
}

type placesResponse struct {
	Features []struct {
		Center    []float64 `json:"center"`
		PlaceName string    `json:"place_name"`
	} `json:"features"`
}

// Forward returns every feature for query in relevance order. An empty
// slice is not an error.
func (c *Client) Forward(ctx context.Context, query string) (_ []Place, err error) {
	defer timed(ctx, c.log, "geocode.forward")(&err)

	query = strings.TrimSpace(query)
	if c.token == "" {
		return nil, ErrNoToken
	}

	endpoint := c.endpoint(query)
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, endpoint)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	var decoded placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrTransport, err)
	}

	out := make([]Place, 0, len(decoded.Features))
	for _, f := range decoded.Features {
		if len(f.Center) != 2 {
			return nil, fmt.Errorf("%w: invalid centre for %q", ErrTransport, f.PlaceName)
		}
		out = append(out, Place{Name: f.PlaceName, Lng: f.Center[0], Lat: f.Center[1]})
	}
	return out, nil
}

// Lookup returns the first feature for query, or ErrNotFound.
func (c *Client) Lookup(ctx context.Context, query string) (Place, error) {
	places, err := c.Forward(ctx, query)
	if err != nil {
		return Place{}, err
	}
	if len(places) == 0 {
		return Place{}, fmt.Errorf("%q: %w", query, ErrNotFound)
	}
	return places[0], nil
}

func (c *Client) endpoint(query string) string {
	q := url.Values{}
	q.Set("access_token", c.token)
	q.Set("limit", strconv.Itoa(c.limit))
	return c.baseURL + "/geocoding/v5/mapbox.places/" + url.PathEscape(query) + ".json?" + q.Encode()
}

// timed logs an operation's duration and error on return.
func timed(ctx context.Context, log zerolog.Logger, op string) func(errp *error) {
	start := time.Now()
	return func(errp *error) {
		ev := log.Debug()
		if errp != nil && *errp != nil {
			ev = log.Warn().Err(*errp)
		}
		ev.Ctx(ctx).Str("op", op).Int64("duration_ms", time.Since(start).Milliseconds()).Msg("geocode")
	}
}
