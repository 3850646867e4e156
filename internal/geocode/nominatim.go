// Package geocode talks to a Nominatim compatible geocoding server.
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

	"github.com/apex/log"
)

const DefaultBaseURL = "https://nominatim.openstreetmap.org"

var ErrNoResult = errors.New("geocode: no result")

type Config struct {
	BaseURL   string
	Language  string
	UserAgent string
	Timeout   time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = "corruption-report-service"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Reverse returns the display name of the place at the coordinates.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("format", "json")

	var result struct {
		DisplayName string `json:"display_name"`
		Error       string `json:"error"`
	}
	if err := c.get(ctx, "/reverse", q, &result); err != nil {
		return "", err
	}
	if result.Error != "" || result.DisplayName == "" {
		return "", ErrNoResult
	}
	return result.DisplayName, nil
}

// Search returns the coordinates of the best match for a free form address.
func (c *Client) Search(ctx context.Context, address string) (float64, float64, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := c.get(ctx, "/search", q, &results); err != nil {
		return 0, 0, err
	}
	if len(results) == 0 {
		return 0, 0, ErrNoResult
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode: bad latitude %q: %w", results[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode: bad longitude %q: %w", results[0].Lon, err)
	}
	return lat, lng, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.cfg.Language != "" {
		q.Set("accept-language", c.cfg.Language)
	}
	endpoint := c.cfg.BaseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	log.WithField("url", endpoint).Debug("geocode: request")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocode: %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("geocode: decode %s: %w", path, err)
	}
	return nil
}
