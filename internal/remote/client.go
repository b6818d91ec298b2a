// Package remote provides the client contract for the row-oriented remote
// backend. The sync layer treats every failure from this package as
// equivalent to "unreachable" and degrades to the offline path.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Client is the remote backend contract: a read/write service addressed by
// table name.
type Client interface {
	// Insert creates a row and returns the server's authoritative record.
	Insert(ctx context.Context, table string, record interface{}) (json.RawMessage, error)

	// Select returns rows matching equality filters, optionally ordered.
	Select(ctx context.Context, table string, filter map[string]string, orderBy string) (json.RawMessage, error)

	// Update modifies a row by id and returns the updated record.
	Update(ctx context.Context, table, id string, record interface{}) (json.RawMessage, error)

	// Upsert creates or replaces a row keyed on the conflict target and
	// returns the resulting record.
	Upsert(ctx context.Context, table string, record interface{}, conflictTarget string) (json.RawMessage, error)

	// Delete removes a row by id.
	Delete(ctx context.Context, table, id string) error
}

// Error is a structured failure from the remote backend.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote backend returned %d: %s", e.StatusCode, e.Body)
}

// Options configures the HTTP client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
}

// HTTPClient implements Client over a JSON REST surface.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// NewHTTPClient creates an HTTPClient, applying defaults for anything unset.
func NewHTTPClient(opts Options) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Insert creates a row and returns the server record.
func (c *HTTPClient) Insert(ctx context.Context, table string, record interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, c.rowsPath(table), nil, record)
}

// Select returns rows matching equality filters.
func (c *HTTPClient) Select(ctx context.Context, table string, filter map[string]string, orderBy string) (json.RawMessage, error) {
	query := url.Values{}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query.Set(k, filter[k])
	}
	if orderBy != "" {
		query.Set("order", orderBy)
	}
	return c.do(ctx, http.MethodGet, c.rowsPath(table), query, nil)
}

// Update modifies a row by id.
func (c *HTTPClient) Update(ctx context.Context, table, id string, record interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, c.rowsPath(table)+"/"+url.PathEscape(id), nil, record)
}

// Upsert creates or replaces a row keyed on the conflict target.
func (c *HTTPClient) Upsert(ctx context.Context, table string, record interface{}, conflictTarget string) (json.RawMessage, error) {
	query := url.Values{}
	if conflictTarget != "" {
		query.Set("on_conflict", conflictTarget)
	}
	return c.do(ctx, http.MethodPut, c.rowsPath(table), query, record)
}

// Delete removes a row by id.
func (c *HTTPClient) Delete(ctx context.Context, table, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.rowsPath(table)+"/"+url.PathEscape(id), nil, nil)
	return err
}

func (c *HTTPClient) rowsPath(table string) string {
	return "/tables/" + url.PathEscape(table) + "/rows"
}

// do issues one request with bounded retries on transport errors and
// gateway-class statuses. Other non-2xx statuses fail immediately with a
// structured *Error.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, payload interface{}) (json.RawMessage, error) {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return nil, err
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-Api-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1)); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return respBody, nil
		}

		if retryableStatus(resp.StatusCode) && attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1)); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		return nil, &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *HTTPClient) retryDelay(attempt int) time.Duration {
	return time.Duration(attempt) * c.baseDelay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
