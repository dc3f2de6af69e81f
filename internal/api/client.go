package api

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

	"mediaforge/internal/services"
)

// Client talks to a running daemon.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the daemon listening on bind (host:port or a
// full URL).
func NewClient(bind string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{base: base, http: &http.Client{Timeout: 10 * time.Second}}
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Submit creates a job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var out SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs", req, &out)
	return out, err
}

// Upload asks the daemon to upload path.
func (c *Client) Upload(ctx context.Context, path string) (SubmitResponse, error) {
	var out SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/uploads", UploadRequest{Path: path}, &out)
	return out, err
}

// Job fetches one job by external id.
func (c *Client) Job(ctx context.Context, id string) (JobResponse, error) {
	var out JobResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Assets lists assets.
func (c *Client) Assets(ctx context.Context, offset, limit int) (AssetListResponse, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	var out AssetListResponse
	err := c.do(ctx, http.MethodGet, "/api/assets?"+query.Encode(), nil, &out)
	return out, err
}

// Jobs lists jobs, optionally narrowed by status and asset.
func (c *Client) Jobs(ctx context.Context, statuses []string, assetID int64, limit int) (JobListResponse, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", status)
	}
	if assetID > 0 {
		query.Set("asset_id", strconv.FormatInt(assetID, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/jobs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out JobListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Asset fetches one asset and its direct derivatives.
func (c *Client) Asset(ctx context.Context, id int64) (AssetResponse, error) {
	var out AssetResponse
	err := c.do(ctx, http.MethodGet, "/api/assets/"+strconv.FormatInt(id, 10), nil, &out)
	return out, err
}

// Overlays lists the overlay catalog.
func (c *Client) Overlays(ctx context.Context) (OverlayListResponse, error) {
	var out OverlayListResponse
	err := c.do(ctx, http.MethodGet, "/api/overlays", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr != nil || apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return services.Wrap(markerFor(resp.StatusCode), "api", strings.ToLower(method)+" "+path, apiErr.Error, nil)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
