// Package inventory reads the secondary account-inventory API through the
// fetch scheduler, so the upstream sees at most one in-flight request with
// enforced spacing and failure cooldown.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mercator-labs/listing-sync/internal/domain"
	"github.com/mercator-labs/listing-sync/internal/scheduler"
)

type Client struct {
	baseURL string
	client  *http.Client
	sched   *scheduler.Scheduler
	nowFn   func() time.Time
}

func NewClient(baseURL string, timeout time.Duration, sched *scheduler.Scheduler) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		sched:   sched,
		nowFn:   time.Now,
	}
}

func (c *Client) Fetch(ctx context.Context, account string) (domain.InventorySnapshot, error) {
	var snapshot domain.InventorySnapshot
	err := c.sched.Do(ctx, func(ctx context.Context) error {
		fetched, fetchErr := c.fetchOnce(ctx, account)
		if fetchErr != nil {
			return fetchErr
		}
		snapshot = fetched
		return nil
	})
	if err != nil {
		return domain.InventorySnapshot{}, err
	}
	return snapshot, nil
}

func (c *Client) fetchOnce(ctx context.Context, account string) (domain.InventorySnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/inventory/"+account, nil)
	if err != nil {
		return domain.InventorySnapshot{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.InventorySnapshot{}, fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		// A private inventory is a well-formed answer, not an upstream
		// fault; the scheduler resets its failure counter on this.
		return domain.InventorySnapshot{}, fmt.Errorf("%w: inventory is private", domain.ErrForbidden)
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.InventorySnapshot{}, fmt.Errorf("%w: inventory upstream throttled us", domain.ErrRateLimitExceeded)
	case resp.StatusCode != http.StatusOK:
		return domain.InventorySnapshot{}, fmt.Errorf("%w: inventory status %d", domain.ErrDependencyUnavailable, resp.StatusCode)
	}

	var body struct {
		Items []domain.InventoryItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.InventorySnapshot{}, fmt.Errorf("%w: decode inventory: %v", domain.ErrDependencyUnavailable, err)
	}
	return domain.InventorySnapshot{
		Account:   account,
		Items:     body.Items,
		FetchedAt: c.nowFn().Unix(),
	}, nil
}
