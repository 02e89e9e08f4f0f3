/**
 * @description
 * Client for the activity feed service that supplies monthly usage data:
 * per-resource usage totals for a period plus per-resource metadata
 * (creation date, CC field, type identifier, allocation settings).
 */
package usageclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/juliebasler-source/basler-webhooks/internal/usagebilling"
)

// Client is a client for the usage/activity source.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new usage source client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type activityRow struct {
	ResourceID string `json:"resource_id"`
	Name       string `json:"name"`
	UsageTotal int    `json:"usage_total"`
}

type resourceDetailsResponse struct {
	CreatedAt  time.Time `json:"created_at"`
	CCField    string    `json:"cc"`
	TypeID     string    `json:"type"`
	Allocation int       `json:"allocation"`
	HardLimit  bool      `json:"hard_limit"`
}

// GetAccountActivity fetches per-resource usage totals for a period.
func (c *Client) GetAccountActivity(ctx context.Context, accountID string, start, end time.Time) ([]usagebilling.ActivityTotal, error) {
	endpoint := fmt.Sprintf("/accounts/%s/activity?start=%s&end=%s",
		url.PathEscape(accountID),
		url.QueryEscape(start.Format("2006-01-02")),
		url.QueryEscape(end.Format("2006-01-02")))

	var rows []activityRow
	if err := c.get(ctx, endpoint, &rows); err != nil {
		return nil, err
	}

	totals := make([]usagebilling.ActivityTotal, 0, len(rows))
	for _, row := range rows {
		totals = append(totals, usagebilling.ActivityTotal{
			ResourceID: row.ResourceID,
			Name:       row.Name,
			UsageTotal: row.UsageTotal,
		})
	}
	return totals, nil
}

// GetResourceDetails fetches one resource's billing metadata.
func (c *Client) GetResourceDetails(ctx context.Context, resourceID string) (*usagebilling.ResourceDetails, error) {
	var resp resourceDetailsResponse
	endpoint := fmt.Sprintf("/resources/%s", url.PathEscape(resourceID))
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return &usagebilling.ResourceDetails{
		CreatedAt:  resp.CreatedAt,
		CCField:    resp.CCField,
		TypeID:     resp.TypeID,
		Allocation: resp.Allocation,
		HardLimit:  resp.HardLimit,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("usage source base URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("usage source returned status %d for %s", resp.StatusCode, endpoint)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse usage source response: %w", err)
	}
	return nil
}
