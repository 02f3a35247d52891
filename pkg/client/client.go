package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Index is the published value of one underlying.
type Index struct {
	Underlying string          `json:"underlying"`
	Value      decimal.Decimal `json:"value"`
	Sigma2     decimal.Decimal `json:"sigma2"`
	Sigma2Raw  decimal.Decimal `json:"sigma2_raw"`
	Timestamp  time.Time       `json:"timestamp"`
	CycleID    string          `json:"cycle_id"`
	Method     string          `json:"method"`
	Sources    []string        `json:"sources"`
}

// HistoryPoint is one smoothed update of an underlying.
type HistoryPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
	Raw       decimal.Decimal `json:"raw"`
	Smoothed  decimal.Decimal `json:"smoothed"`
}

// Client fetches index values.
type Client interface {
	GetIndex(ctx context.Context, underlying string) (Index, error)
	GetAll(ctx context.Context) ([]Index, error)
	GetHistory(ctx context.Context, underlying string, limit int) ([]HistoryPoint, error)
}

// HTTPClient implements Client using HTTP requests
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new HTTP index client
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetIndex fetches the latest value of one underlying.
func (c *HTTPClient) GetIndex(ctx context.Context, underlying string) (Index, error) {
	var out Index
	err := c.get(ctx, "/v1/index/"+url.PathEscape(strings.ToUpper(underlying)), &out)
	return out, err
}

// GetAll fetches the latest value of every underlying.
func (c *HTTPClient) GetAll(ctx context.Context) ([]Index, error) {
	var out []Index
	err := c.get(ctx, "/v1/index", &out)
	return out, err
}

// GetHistory fetches up to limit recent updates, oldest first. A limit of 0
// returns the server default.
func (c *HTTPClient) GetHistory(ctx context.Context, underlying string, limit int) ([]HistoryPoint, error) {
	path := "/v1/index/" + url.PathEscape(strings.ToUpper(underlying)) + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []HistoryPoint
	err := c.get(ctx, path, &out)
	return out, err
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %d: %s", ErrServerHTTPError, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
