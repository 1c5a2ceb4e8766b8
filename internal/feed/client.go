// Package feed fetches externally reported sightings from a whale hotline
// style JSON feed.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/whale-spotting-api/internal/dto"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultPageLimit  = 1000
	apiKeyHeader      = "X-API-Key"
	maxErrorBodyBytes = 512
)

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// Config configures the feed client.
type Config struct {
	BaseURL    string
	APIKey     string
	SourceName string
	PageLimit  int
	Timeout    time.Duration
}

// Entry is one record of the external feed.
type Entry struct {
	ID          string   `json:"id"`
	Species     string   `json:"species"`
	Quantity    Quantity `json:"quantity"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	SightedAt   string   `json:"sighted_at"`
	CreatedAt   string   `json:"created_at"`
}

// Quantity accepts the head count as either a JSON string or a number.
type Quantity string

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*q = ""
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*q = Quantity(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("quantity must be a string or number: %w", err)
	}
	*q = Quantity(number.String())
	return nil
}

// StatusError is returned when the feed answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed responded %d: %s", e.StatusCode, e.Body)
}

// Client reads the sighting feed.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a Client, filling defaults for unset values.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("feed base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse feed base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = defaultPageLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// Fetch returns the feed entries created on or after since as ingest
// candidates. A zero since fetches the whole feed.
func (c *Client) Fetch(ctx context.Context, since time.Time) ([]dto.IngestCandidate, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.cfg.PageLimit))
	if !since.IsZero() {
		query.Set("since", since.UTC().Format("2006-01-02"))
	}
	endpoint := c.cfg.BaseURL + "/api.json?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	candidates := make([]dto.IngestCandidate, 0, len(entries))
	for _, entry := range entries {
		candidate, err := c.toCandidate(entry)
		if err != nil {
			c.logger.Warn("skipping malformed feed entry", zap.String("api_id", entry.ID), zap.Error(err))
			continue
		}
		candidates = append(candidates, candidate)
	}

	c.logger.Debug("feed fetched",
		zap.Int("entries", len(entries)),
		zap.Int("candidates", len(candidates)),
		zap.Duration("duration", time.Since(start)),
	)
	return candidates, nil
}

func (c *Client) toCandidate(entry Entry) (dto.IngestCandidate, error) {
	if strings.TrimSpace(entry.ID) == "" {
		return dto.IngestCandidate{}, fmt.Errorf("missing id")
	}
	if strings.TrimSpace(entry.Species) == "" {
		return dto.IngestCandidate{}, fmt.Errorf("missing species")
	}
	sightedAt, err := parseFeedTime(entry.SightedAt)
	if err != nil {
		return dto.IngestCandidate{}, fmt.Errorf("sighted_at: %w", err)
	}
	candidate := dto.IngestCandidate{
		APIID:           entry.ID,
		Species:         entry.Species,
		Quantity:        string(entry.Quantity),
		Location:        entry.Location,
		Latitude:        floatPtr(entry.Latitude),
		Longitude:       floatPtr(entry.Longitude),
		Description:     entry.Description,
		SightedAt:       wallClock(sightedAt).Format(time.RFC3339),
		SubmittedByName: c.cfg.SourceName,
	}
	if entry.CreatedAt != "" {
		createdAt, err := parseFeedTime(entry.CreatedAt)
		if err != nil {
			return dto.IngestCandidate{}, fmt.Errorf("created_at: %w", err)
		}
		candidate.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	}
	return candidate, nil
}

func parseFeedTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}

// wallClock drops the zone offset of a sighting time, keeping the observer's
// local date and time.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func floatPtr(v float64) *float64 { return &v }
