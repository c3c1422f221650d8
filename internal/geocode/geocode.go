// Package geocode turns coordinates into place names through a Nominatim
// compatible reverse geocoder.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const userAgent = "fleetdesk/1.0"

// Point is a coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// Fallback is the name used whenever a lookup fails.
func Fallback(lat, lng float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lng)
}

// Resolver performs reverse lookups, bounded to a fixed number in flight
// and cached in Redis when a client is configured.
type Resolver struct {
	baseURL string
	http    *http.Client
	cache   *redis.Client
	ttl     time.Duration
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Resolver) {
		if hc != nil {
			r.http = hc
		}
	}
}

// WithCache stores resolved names in Redis for ttl.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = client
		r.ttl = ttl
	}
}

// WithConcurrency bounds the lookups in flight.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n < 1 {
			n = 1
		}
		r.sem = semaphore.NewWeighted(int64(n))
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver builds a resolver for the geocoder at baseURL.
func NewResolver(baseURL string, opts ...Option) *Resolver {
	r := &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		ttl:     24 * time.Hour,
		sem:     semaphore.NewWeighted(4),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     *struct {
		Village      string `json:"village"`
		Town         string `json:"town"`
		Suburb       string `json:"suburb"`
		CityDistrict string `json:"city_district"`
		City         string `json:"city"`
	} `json:"address"`
}

func (p reverseResponse) name() string {
	var candidates []string
	if a := p.Address; a != nil {
		candidates = []string{a.Village, a.Town, a.Suburb, a.CityDistrict, a.City}
	}
	for _, candidate := range append(candidates, p.DisplayName) {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// Name returns the place name at lat, lng, or Fallback on any failure.
func (r *Resolver) Name(ctx context.Context, lat, lng float64) string {
	key := cacheKey(lat, lng)
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, key).Result(); err == nil {
			return cached
		} else if !errors.Is(err, redis.Nil) {
			r.logWarn("geocode cache read failed", err)
		}
	}
	name, err := r.lookup(ctx, lat, lng)
	if err != nil {
		r.logWarn("reverse geocoding failed", err, slog.Float64("lat", lat), slog.Float64("lng", lng))
		return Fallback(lat, lng)
	}
	if name == "" {
		return Fallback(lat, lng)
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, name, r.ttl).Err(); err != nil {
			r.logWarn("geocode cache write failed", err)
		}
	}
	return name
}

// ResolveAll names every point, preserving order.
func (r *Resolver) ResolveAll(ctx context.Context, points []Point) []string {
	names := make([]string, len(points))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range points {
		g.Go(func() error {
			names[i] = r.Name(gctx, p.Lat, p.Lng)
			return nil
		})
	}
	_ = g.Wait()
	return names
}

func (r *Resolver) lookup(ctx context.Context, lat, lng float64) (string, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer r.sem.Release(1)

	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", fmt.Sprint(lat))
	q.Set("lon", fmt.Sprint(lng))
	q.Set("zoom", "14")
	q.Set("addressdetails", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}
	var payload reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode geocoder response: %w", err)
	}
	return payload.name(), nil
}

func (r *Resolver) logWarn(msg string, err error, attrs ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(msg, append(attrs, slog.Any("error", err))...)
}

func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("geocode:%.5f:%.5f", lat, lng)
}
