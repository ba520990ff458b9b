// Package marketplace wraps the remote classifieds API behind the
// request/response contract the engine consumes. Transport failures are
// reported as domain.ErrDependencyUnavailable; per-item errors come back
// inside the positional batch results and are classified by the engine.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mercator-labs/listing-sync/internal/domain"
)

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateBatch(ctx context.Context, token string, drafts []domain.ListingDraft) ([]domain.BatchResult, error) {
	return c.batchCall(ctx, http.MethodPost, "/api/listings/batch", token, drafts)
}

func (c *Client) UpdateBatch(ctx context.Context, token string, drafts []domain.ListingDraft) ([]domain.BatchResult, error) {
	return c.batchCall(ctx, http.MethodPatch, "/api/listings/batch", token, drafts)
}

func (c *Client) DeleteActiveBatch(ctx context.Context, token string, ids []string) (int, error) {
	return c.deleteCall(ctx, "/api/listings", token, ids)
}

func (c *Client) DeleteArchivedBatch(ctx context.Context, token string, ids []string) (int, error) {
	return c.deleteCall(ctx, "/api/listings/archived", token, ids)
}

func (c *Client) DeleteAllActive(ctx context.Context, token string) (int, error) {
	return c.deleteCall(ctx, "/api/listings", token, nil)
}

func (c *Client) DeleteAllArchived(ctx context.Context, token string) (int, error) {
	return c.deleteCall(ctx, "/api/listings/archived", token, nil)
}

func (c *Client) ListActivePage(ctx context.Context, token string, skip, limit int) (domain.ListingPage, error) {
	return c.listCall(ctx, "/api/listings", token, skip, limit)
}

func (c *Client) ListArchivedPage(ctx context.Context, token string, skip, limit int) (domain.ListingPage, error) {
	return c.listCall(ctx, "/api/listings/archived", token, skip, limit)
}

func (c *Client) batchCall(ctx context.Context, method, path, token string, drafts []domain.ListingDraft) ([]domain.BatchResult, error) {
	var results []domain.BatchResult
	if err := c.do(ctx, method, path, token, nil, drafts, &results); err != nil {
		return nil, err
	}
	if len(results) != len(drafts) {
		return nil, fmt.Errorf("%w: marketplace returned %d results for %d inputs", domain.ErrDependencyUnavailable, len(results), len(drafts))
	}
	return results, nil
}

func (c *Client) deleteCall(ctx context.Context, path, token string, ids []string) (int, error) {
	var body any
	if ids != nil {
		body = map[string][]string{"ids": ids}
	}
	var resp struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, path, token, nil, body, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

func (c *Client) listCall(ctx context.Context, path, token string, skip, limit int) (domain.ListingPage, error) {
	query := url.Values{}
	query.Set("skip", strconv.Itoa(skip))
	query.Set("limit", strconv.Itoa(limit))
	var page domain.ListingPage
	if err := c.do(ctx, http.MethodGet, path, token, query, nil, &page); err != nil {
		return domain.ListingPage{}, err
	}
	return page, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: marketplace rejected token", domain.ErrUnauthorized)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: marketplace status %d", domain.ErrDependencyUnavailable, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrDependencyUnavailable, err)
	}
	return nil
}
