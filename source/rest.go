package source

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

	"github.com/hashicorp/go-cleanhttp"

	"github.com/arloliu/notisync/types"
)

// Default REST paths, relative to the base URL.
const (
	DefaultRecentPath  = "/notifications/recent"
	DefaultReadPath    = "/notifications/%s/read"
	DefaultReadAllPath = "/notifications/read-all"

	defaultMaxRetries = 3
	maxRetryWait      = 30 * time.Second
)

// collectionFields are the wrapper keys accepted around a snapshot array.
var collectionFields = []string{"items", "content", "data", "notifications", "results"}

// RESTConfig configures the REST source.
type RESTConfig struct {
	// BaseURL is the API root, e.g. "https://api.example.com/v1". Required.
	BaseURL string

	RecentPath  string
	ReadPath    string // must contain one %s for the escaped ID
	ReadAllPath string

	// MaxRetries bounds retries on HTTP 429.
	MaxRetries int

	// HTTPClient overrides the pooled client from go-cleanhttp.
	HTTPClient *http.Client
}

// REST is a thin client for the notification REST API.
// It attaches the Bearer token from the credential provider on every request
// and retries with backoff on HTTP 429.
type REST struct {
	cfg        RESTConfig
	creds      types.CredentialProvider
	httpClient *http.Client
}

var _ types.NotificationAPI = (*REST)(nil)

// NewREST creates a REST source.
//
// Parameters:
//   - cfg: Endpoint configuration
//   - creds: Supplies the Bearer token; requests without a token fail with
//     types.ErrNoCredentials
//
// Returns:
//   - *REST: Ready-to-use client
//   - error: If BaseURL is missing or unparsable
func NewREST(cfg RESTConfig, creds types.CredentialProvider) (*REST, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest source: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("rest source: invalid base URL: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RecentPath == "" {
		cfg.RecentPath = DefaultRecentPath
	}
	if cfg.ReadPath == "" {
		cfg.ReadPath = DefaultReadPath
	}
	if cfg.ReadAllPath == "" {
		cfg.ReadAllPath = DefaultReadAllPath
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}

	return &REST{cfg: cfg, creds: creds, httpClient: httpClient}, nil
}

// FetchRecent implements types.NotificationAPI.
//
// The response may be a bare JSON array or an object wrapping the array under
// one of "items", "content", "data", "notifications" or "results".
func (r *REST) FetchRecent(ctx context.Context, offset, limit int) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	status, body, err := r.do(ctx, http.MethodGet, r.cfg.RecentPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	items, err := decodeCollection(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrMalformedResponse, err)
	}

	return items, nil
}

// MarkAsRead implements types.NotificationAPI.
func (r *REST) MarkAsRead(ctx context.Context, id string) (int, error) {
	path := fmt.Sprintf(r.cfg.ReadPath, url.PathEscape(id))
	status, _, err := r.do(ctx, http.MethodPatch, path, nil)

	return status, err
}

// MarkAllAsRead implements types.NotificationAPI.
func (r *REST) MarkAllAsRead(ctx context.Context) (int, error) {
	status, _, err := r.do(ctx, http.MethodPatch, r.cfg.ReadAllPath, nil)

	return status, err
}

// do builds the request, handles auth and rate limiting, and returns the body
// of a 2xx response.
func (r *REST) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	token := ""
	if r.creds != nil {
		token = r.creds.AuthToken()
	}
	if token == "" {
		return 0, nil, types.ErrNoCredentials
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastStatus int
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
		if err != nil {
			return 0, nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return resp.StatusCode, nil, fmt.Errorf("reading response body: %w", readErr)
		}

		lastStatus = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests {
			select {
			case <-ctx.Done():
				return lastStatus, nil, ctx.Err()
			case <-time.After(retryAfter(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp.StatusCode, respBody, fmt.Errorf("%w: %d on %s %s",
				types.ErrUnexpectedStatus, resp.StatusCode, method, path)
		}

		return resp.StatusCode, respBody, nil
	}

	return lastStatus, nil, fmt.Errorf("%w: rate limited after %d retries on %s %s",
		types.ErrUnexpectedStatus, r.cfg.MaxRetries, method, path)
}

// retryAfter reads the Retry-After header, falling back to exponential backoff.
// Either way the wait is clamped to [0, maxRetryWait].
func retryAfter(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return min(max(time.Duration(seconds)*time.Second, 0), maxRetryWait)
		}
	}

	backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	if backoff > maxRetryWait {
		backoff = maxRetryWait
	}

	return backoff
}

func decodeCollection(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}

		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, err
	}

	for _, key := range collectionFields {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		// Nested page objects, e.g. {"data":{"content":[...]}}.
		if inner := bytes.TrimSpace(raw); len(inner) > 0 && inner[0] == '{' {
			return decodeCollection(inner)
		}

		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}

		return items, nil
	}

	return nil, fmt.Errorf("no collection field in response")
}
