// Package marketplace is the HTTP client for the main application's
// internal API. The job subsystem owns queueing and dispatch; the
// business work itself (metrics collection, statistics, content
// generation, discovery, profile sync) runs in the main application
// and is invoked through this client.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier-api/internal/config"
)

// Client calls the main application's internal API. It implements all
// of the processor collaborator interfaces.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a Client from the marketplace configuration.
func NewClient(cfg config.MarketplaceConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// CollectMetrics fetches listing performance metrics for a shop.
func (c *Client) CollectMetrics(ctx context.Context, userID uuid.UUID, shopID string) (json.RawMessage, error) {
	return c.post(ctx, "/internal/performance/collect", map[string]any{
		"user_id": userID,
		"shop_id": shopID,
	})
}

// ComputeAnomalies computes anomaly statistics over a shop's recent history.
func (c *Client) ComputeAnomalies(ctx context.Context, userID uuid.UUID, shopID string, windowDays int) (json.RawMessage, error) {
	return c.post(ctx, "/internal/statistics/anomalies", map[string]any{
		"user_id":     userID,
		"shop_id":     shopID,
		"window_days": windowDays,
	})
}

// GenerateWeeklyContent produces the weekly content plan for a shop.
func (c *Client) GenerateWeeklyContent(ctx context.Context, userID uuid.UUID, shopID, theme string) (json.RawMessage, error) {
	return c.post(ctx, "/internal/content/weekly", map[string]any{
		"user_id": userID,
		"shop_id": shopID,
		"theme":   theme,
	})
}

// DiscoverBrands searches external directories for brands in a niche.
func (c *Client) DiscoverBrands(ctx context.Context, niche string, limit int) (json.RawMessage, error) {
	return c.post(ctx, "/internal/brands/discover", map[string]any{
		"niche": niche,
		"limit": limit,
	})
}

// SyncProfile syncs a connected Instagram business profile.
func (c *Client) SyncProfile(ctx context.Context, userID uuid.UUID, handle string) (json.RawMessage, error) {
	return c.post(ctx, "/internal/instagram/sync", map[string]any{
		"user_id": userID,
		"handle":  handle,
	})
}

// post sends an authenticated JSON request and returns the raw response
// body. Non-2xx responses become errors carrying the status code but
// never the response body, which may contain internal detail.
func (c *Client) post(ctx context.Context, path string, body map[string]any) (json.RawMessage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketplace call %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("marketplace call %s returned status %d after %s",
			path, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	return payload, nil
}
