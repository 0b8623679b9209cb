// Package trace is the client for the remote asset trace API, the
// authoritative record of what a tracked batch has been fed and given.
package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidAssetID is returned for an empty asset id, before any request.
var ErrInvalidAssetID = errors.New("trace: asset id must be non-empty")

// ErrExhaustedRetries is returned once every attempt failed at the transport
// level. The wrapped message carries the last transport error.
var ErrExhaustedRetries = errors.New("trace: retries exhausted")

// RemoteError is a terminal non-2xx response. It is never retried: the
// remote has answered, just not with what we wanted.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("trace: unexpected status %d: %s", e.Status, e.Body)
}

type Feed struct {
	Name      string  `json:"name"`
	DosageKg  float64 `json:"dosageKg"`
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
	Notes     string  `json:"notes"`
}

type Medication struct {
	Name        string `json:"name"`
	Dose        string `json:"dose"`
	DateApplied string `json:"dateApplied"`
	NextDueDate string `json:"nextDueDate"`
}

type Details struct {
	Feeds       []Feed       `json:"feeds"`
	Medications []Medication `json:"medications"`
}

type HistoryEntry struct {
	Details Details `json:"details"`
}

type Trace struct {
	AssetID     string         `json:"assetID"`
	FullHistory []HistoryEntry `json:"fullHistory"`
	History     []HistoryEntry `json:"history"`
}

// Entries prefers the fullHistory key and falls back to history; the remote
// has served both shapes.
func (t *Trace) Entries() []HistoryEntry {
	if len(t.FullHistory) > 0 {
		return t.FullHistory
	}
	return t.History
}

// LatestDetails returns the details of the most recent history entry, or nil
// when the trace is empty.
func (t *Trace) LatestDetails() *Details {
	entries := t.Entries()
	if len(entries) == 0 {
		return nil
	}
	return &entries[len(entries)-1].Details
}

// Cache is an optional read-through cache for trace responses. Both methods
// are fail-open: implementations swallow their own errors.
type Cache interface {
	Get(ctx context.Context, assetID string) ([]byte, bool)
	Set(ctx context.Context, assetID string, body []byte)
}

type Client struct {
	BaseURL     string
	Timeout     time.Duration // per attempt
	MaxAttempts int
	HTTPClient  *http.Client
	Cache       Cache // may be nil
	Logger      *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, maxAttempts int, cache Cache, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Timeout:     timeout,
		MaxAttempts: maxAttempts,
		HTTPClient:  &http.Client{},
		Cache:       cache,
		Logger:      logger,
	}
}

// Fetch reads the trace for one asset. Transport failures are retried up to
// MaxAttempts with a per-attempt timeout; a non-2xx response fails
// immediately carrying status and body.
func (c *Client) Fetch(ctx context.Context, assetID string) (*Trace, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, ErrInvalidAssetID
	}

	if c.Cache != nil {
		if body, ok := c.Cache.Get(ctx, assetID); ok {
			var t Trace
			if err := json.Unmarshal(body, &t); err == nil {
				return &t, nil
			}
			// poisoned cache entry, fall through to the remote
		}
	}

	url := fmt.Sprintf("%s/assets/%s/trace", c.BaseURL, assetID)

	var lastErr error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		body, err := c.attempt(ctx, url)
		if err != nil {
			var remote *RemoteError
			if errors.As(err, &remote) {
				return nil, err
			}
			lastErr = err
			c.Logger.Warn("trace fetch attempt failed",
				zap.String("asset_id", assetID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		var t Trace
		if err := json.Unmarshal(body, &t); err != nil {
			return nil, fmt.Errorf("trace: decode response: %w", err)
		}
		if c.Cache != nil {
			c.Cache.Set(ctx, assetID, body)
		}
		return &t, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrExhaustedRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, &RemoteError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return io.ReadAll(resp.Body)
}
