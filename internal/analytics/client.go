// Package analytics talks to the Alma Analytics report API and assembles
// its paginated, resumable responses into one result set.
package analytics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/franz/catstats/internal/util"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the North America Alma API gateway
	DefaultBaseURL = "https://api-na.hosted.exlibrisgroup.com/almaws/v1"

	// UserAgent identifies this application to the API gateway
	UserAgent = "catstats/1.0 (+https://github.com/franz/catstats)"

	// DefaultTimeout bounds one page request. Large reports are slow to
	// materialize on the first page.
	DefaultTimeout = 5 * time.Minute

	// DefaultRequestsPerSecond stays well below the gateway's threshold
	DefaultRequestsPerSecond = 5
)

// ClientConfig configures a Client
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string

	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

// Client fetches single report pages
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient creates a new report API client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: analytics API key is not set", util.ErrInvalidConfig)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = UserAgent
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// FetchError is returned for any failed page request. Body holds the last
// raw response, when one was received.
type FetchError struct {
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchPage requests one page of a report
func (c *Client) FetchPage(ctx context.Context, params Params) (*PageResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Limit%25 != 0 {
		util.DebugLog("Analytics: page limit %d is not a multiple of 25", params.Limit)
	}

	op := "fetch report page"
	if params.IsContinuation() {
		op = "fetch continuation page"
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}

	urlStr := c.baseURL + "/analytics/reports?" + params.Values().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &FetchError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Authorization", "apikey "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	if params.IsContinuation() {
		util.DebugLog("Analytics API: continuing report (limit %d)", params.Limit)
	} else {
		util.DebugLog("Analytics API: starting report %s (limit %d)", params.Path, params.Limit)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Op: op, Err: fmt.Errorf("failed to execute request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		msg := apiErrorMessage(body)
		if msg == "" {
			msg = truncate(string(body), 300)
		}
		return nil, &FetchError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       body,
			Err:        fmt.Errorf("unexpected response: %s", msg),
		}
	}

	page, err := DecodePage(body)
	if err != nil {
		return nil, &FetchError{Op: op, StatusCode: resp.StatusCode, Body: body, Err: err}
	}

	util.DebugLog("Analytics API: %d rows, finished=%t, %d column names",
		len(page.Rows), page.IsFinished, len(page.ColumnNames))

	return page, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
