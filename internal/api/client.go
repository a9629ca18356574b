package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "DOCVAULT_HTTP_TIMEOUT"
	adminTokenEnvKey   = "DOCVAULT_ADMIN_TOKEN"
	adminTokenHeader   = "X-Admin-Token"
)

// Client is a simple HTTP client for a running docvault server.
type Client struct {
	baseURL    string
	http       *http.Client
	adminToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// WithAdminToken returns a copy of c that sends token on admin routes.
func (c *Client) WithAdminToken(token string) *Client {
	clone := *c
	clone.adminToken = strings.TrimSpace(token)
	return &clone
}

// Health reports whether the server is up and its stores answer.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp)
	return resp, err
}

func (c *Client) Info(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, nil, &resp)
	return resp, err
}

func (c *Client) BlobStats(ctx context.Context) (StorageStats, error) {
	var resp StorageStats
	err := c.do(ctx, http.MethodGet, "/v1/blobs/stats", nil, nil, &resp)
	return resp, err
}

// UploadBlob stores data as a blob and returns its id.
func (c *Client) UploadBlob(ctx context.Context, name, mimeType string, data []byte) (BlobUploadResponse, error) {
	var resp BlobUploadResponse
	query := url.Values{}
	if name != "" {
		query.Set("name", name)
	}
	if mimeType != "" {
		query.Set("mime_type", mimeType)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/blobs", query, bytes.NewReader(data))
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	err = c.send(req, &resp)
	return resp, err
}

// DownloadBlob returns the raw bytes of a blob.
func (c *Client) DownloadBlob(ctx context.Context, id string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/blobs/"+url.PathEscape(id)+"/content", nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) GCPreview(ctx context.Context, req GCRequest) (GCPreviewResponse, error) {
	var resp GCPreviewResponse
	err := c.do(ctx, http.MethodGet, "/v1/gc/preview", gcQuery(req), nil, &resp)
	return resp, err
}

// GCRun asks the server to collect garbage. It is an admin route.
func (c *Client) GCRun(ctx context.Context, req GCRequest) (GCRunResponse, error) {
	var resp GCRunResponse
	err := c.do(ctx, http.MethodPost, "/v1/gc/run", nil, req, &resp)
	return resp, err
}

func (c *Client) CacheStats(ctx context.Context) (CacheStats, error) {
	var resp CacheStats
	err := c.do(ctx, http.MethodGet, "/v1/cache/stats", nil, nil, &resp)
	return resp, err
}

func (c *Client) QueueCount(ctx context.Context, hostID string) (int, error) {
	var resp CountResponse
	query := url.Values{}
	if hostID != "" {
		query.Set("host", hostID)
	}
	err := c.do(ctx, http.MethodGet, "/v1/queue/count", query, nil, &resp)
	return resp.Count, err
}

func gcQuery(req GCRequest) url.Values {
	query := url.Values{}
	if req.IncludeIcons {
		query.Set("include_icons", "true")
	}
	if req.RespectUsageCount {
		query.Set("respect_usage_count", "true")
	}
	if req.FullRescan {
		query.Set("full_rescan", "true")
	}
	return query
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	c.setAdminHeader(req)
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, method, path, query, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send executes req and unwraps the Result envelope into out.
func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	var envelope Result[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !envelope.Success {
		return errorFromBody(resp.StatusCode, envelope.Error)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

func decodeError(resp *http.Response) error {
	var envelope Result[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != nil {
		return errorFromBody(resp.StatusCode, envelope.Error)
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminToken == "" || req == nil {
		return
	}
	req.Header.Set(adminTokenHeader, c.adminToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
