package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the OpenCage API root.
const DefaultBaseURL = "https://api.opencagedata.com"

const defaultTimeout = 30 * time.Second

// maxResponseBytes caps the body read from the provider.
const maxResponseBytes = 1 << 20

// ErrQuotaExceeded is returned when the limiter refuses a lookup. No request
// is sent in that case.
var ErrQuotaExceeded = errors.New("geocode: request quota exceeded")

// Location is the result of one reverse lookup. A failed lookup yields the
// zero Location.
type Location struct {
	City    string
	Region  string
	Country string
	Raw     map[string]any
}

type response struct {
	Rate *struct {
		Remaining int `json:"remaining"`
	} `json:"rate"`
	Status struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Results []struct {
		Components map[string]any `json:"components"`
	} `json:"results"`
}

// Enricher turns coordinates into place names through the reverse-geocoding
// service, one call per lookup and without retries.
type Enricher struct {
	BaseURL string
	Quota   *QuotaLimiter
	Client  *http.Client
	Log     *zap.Logger
}

func NewEnricher(baseURL string, quota *QuotaLimiter, timeout time.Duration, log *zap.Logger) *Enricher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Enricher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Quota:   quota,
		Client:  &http.Client{Timeout: timeout},
		Log:     log,
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (e *Enricher) lookupURL(lat, lon float64) string {
	return fmt.Sprintf("%s/geocode/v1/json?q=%s+%s&key=%s",
		e.BaseURL, formatCoord(lat), formatCoord(lon), url.QueryEscape(e.Quota.Key()))
}

// Lookup performs one reverse-geocode request. A non-success status or an
// empty result set is logged and returns an empty Location with a nil error.
// Transport and decoding failures are returned as errors.
func (e *Enricher) Lookup(ctx context.Context, lat, lon float64) (Location, error) {
	if e.Quota.Authorize() == Denied {
		return Location{}, ErrQuotaExceeded
	}

	log := e.Log.With(zap.Float64("latitude", lat), zap.Float64("longitude", lon))
	log.Info("geocode: retrieving inverse geolocation")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.lookupURL(lat, lon), nil)
	if err != nil {
		return Location{}, fmt.Errorf("geocode: failed to build request: %w", err)
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geocode: failed to make GET request for %s,%s: %w", formatCoord(lat), formatCoord(lon), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return Location{}, fmt.Errorf("geocode: failed to read response body: %w", err)
	}
	if len(body) > maxResponseBytes {
		return Location{}, fmt.Errorf("geocode: response body exceeds %d bytes", maxResponseBytes)
	}

	// the provider answers errors with a JSON body too, so the HTTP status
	// is only used when the body is not JSON
	var content response
	if err := json.Unmarshal(body, &content); err != nil {
		return Location{}, fmt.Errorf("geocode: failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	log.Debug("geocode: response", zap.ByteString("body", body))

	if content.Rate != nil {
		e.Quota.Update(content.Rate.Remaining)
	}

	if content.Status.Code != http.StatusOK {
		log.Warn("geocode: lookup failed",
			zap.Int("status", content.Status.Code), zap.String("message", content.Status.Message))
		return Location{}, nil
	}
	if len(content.Results) == 0 {
		log.Warn("geocode: empty results")
		return Location{}, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Location{}, fmt.Errorf("geocode: failed to decode raw response: %w", err)
	}

	components := content.Results[0].Components
	city := component(components, "city")
	if city == "" {
		city = component(components, "town")
	}
	return Location{
		City:    city,
		Region:  component(components, "state"),
		Country: component(components, "country"),
		Raw:     raw,
	}, nil
}

func component(c map[string]any, key string) string {
	s, _ := c[key].(string)
	return s
}
