package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/muid-io/tracehub/internal/db"
)

// AdaptiveHint is attached to a query result when the query itself flipped
// the correlation from COLD to HOT.
type AdaptiveHint struct {
	PreviousState     string `json:"previous_state"`
	CurrentState      string `json:"current_state"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

type QueryResult struct {
	CorrelationID string        `json:"correlation_id"`
	Traces        []*db.Trace   `json:"traces"`
	Count         int           `json:"count"`
	Complete      bool          `json:"complete"`
	AdaptiveHint  *AdaptiveHint `json:"adaptive_hint,omitempty"`
}

type CorrelationList struct {
	Correlations []*db.CorrelationSummary `json:"correlations"`
	Count        int                      `json:"count"`
}

type TracingStatus struct {
	Correlations []StatusEntry `json:"correlations"`
	Count        int           `json:"count"`
}

type StatusEntry struct {
	CorrelationID string    `json:"correlation_id"`
	State         string    `json:"state"`
	RemainingTTL  int64     `json:"remaining_ttl"`
	Rate          float64   `json:"rate"`
	QueriedAt     time.Time `json:"queried_at"`
}

type TierChange struct {
	CorrelationID string `json:"correlation_id"`
	State         string `json:"state"`
	PreviousState string `json:"previous_state"`
	TTL           int    `json:"ttl,omitempty"`
}

// QueryClient is the synchronous client used by the CLI to query and
// administer TraceHub.
type QueryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewQueryClient(baseURL string) *QueryClient {
	return &QueryClient{
		baseURL:    trimSlash(baseURL),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetTraces fetches the chain for a correlation id. This is the call that
// promotes the id to HOT on the server.
func (c *QueryClient) GetTraces(ctx context.Context, correlationID, sourceID string) (*QueryResult, error) {
	endpoint := c.baseURL + "/traces/" + url.PathEscape(correlationID)
	if sourceID != "" {
		endpoint += "?source=" + url.QueryEscape(sourceID)
	}

	result := &QueryResult{}
	if err := c.getJSON(ctx, endpoint, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *QueryClient) ListCorrelations(ctx context.Context, limit int) (*CorrelationList, error) {
	list := &CorrelationList{}
	err := c.getJSON(ctx, fmt.Sprintf("%s/correlations?limit=%d", c.baseURL, limit), list)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (c *QueryClient) Status(ctx context.Context) (*TracingStatus, error) {
	status := &TracingStatus{}
	if err := c.getJSON(ctx, c.baseURL+"/tracing/status", status); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *QueryClient) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{}
	if err := c.getJSON(ctx, c.baseURL+"/stats", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *QueryClient) Enable(ctx context.Context, correlationID string) (*TierChange, error) {
	return c.postTierChange(ctx, "enable", correlationID)
}

func (c *QueryClient) Disable(ctx context.Context, correlationID string) (*TierChange, error) {
	return c.postTierChange(ctx, "disable", correlationID)
}

// StreamTraces follows the live event stream for a correlation id, calling
// fn for each trace until the server times the stream out or ctx is
// cancelled.
func (c *QueryClient) StreamTraces(ctx context.Context, correlationID string, timeout time.Duration, fn func(*db.Trace)) error {
	endpoint := fmt.Sprintf("%s/traces/%s/stream?timeout=%d",
		c.baseURL, url.PathEscape(correlationID), int(timeout.Seconds()))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	streamClient := &http.Client{} // no timeout: the server ends the stream
	response, err := streamClient.Do(request)
	if err != nil {
		return fmt.Errorf("open trace stream: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("open trace stream: %s", response.Status)
	}

	scanner := bufio.NewScanner(response.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if strings.Contains(data, `"type": "timeout"`) {
			return nil
		}

		trace := &db.Trace{}
		if err := json.Unmarshal([]byte(data), trace); err != nil {
			continue
		}
		fn(trace)
	}

	return scanner.Err()
}

func (c *QueryClient) postTierChange(ctx context.Context, action, correlationID string) (*TierChange, error) {
	endpoint := c.baseURL + "/tracing/" + action + "/" + url.PathEscape(correlationID)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%s tracing: %w", action, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s tracing for %s: %s", action, correlationID, response.Status)
	}

	change := &TierChange{}
	if err := json.NewDecoder(response.Body).Decode(change); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", action, err)
	}
	return change, nil
}

func (c *QueryClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: %s", endpoint, response.Status)
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
