// =============================================================================
// CLI HTTP CLIENT - ADMIN INTERFACE TO THE COORDINATOR
// =============================================================================
//
// A lightweight HTTP client for administrative CLI operations.
//
// HTTP ENDPOINTS USED:
//
//   GET    /health                                  Health check
//   GET    /stats                                   Per-partition state sizes
//   GET    /groups/{id}/offsets                     Committed offsets of a group
//   POST   /groups/delete                           Batch group deletion
//   POST   /topology                                Publish a topology snapshot
//
// =============================================================================

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ClientConfig holds configuration for the CLI HTTP client.
type ClientConfig struct {
	// ServerURL is the base URL of the coordinator (e.g. "http://localhost:8080").
	ServerURL string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
	}
}

// Client is the HTTP client for CLI operations.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new CLI HTTP client.
func NewClient(config ClientConfig) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the coordinator's error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode int16  `json:"error_code"`
}

// HealthInfo is the /health response.
type HealthInfo struct {
	Status     string `json:"status"`
	Partitions int    `json:"partitions"`
	Timestamp  string `json:"timestamp"`
}

// PartitionInfo is one shard's state sizes from /stats.
type PartitionInfo struct {
	Partition int32 `json:"partition"`
	Records   int   `json:"records"`
	Groups    int   `json:"groups"`
	Offsets   int   `json:"offsets"`
	Loaded    bool  `json:"loaded"`
	Fenced    bool  `json:"fenced"`
}

// StatsInfo is the /stats response.
type StatsInfo struct {
	Partitions []PartitionInfo `json:"partitions"`
}

// OffsetInfo is one committed offset.
type OffsetInfo struct {
	Topic           string `json:"topic"`
	Partition       int32  `json:"partition"`
	Offset          int64  `json:"offset"`
	LeaderEpoch     int32  `json:"leader_epoch"`
	Metadata        string `json:"metadata,omitempty"`
	CommitTimestamp int64  `json:"commit_timestamp"`
}

// DeleteGroupResult is one group's outcome from a batch deletion.
type DeleteGroupResult struct {
	GroupID   string `json:"group_id"`
	ErrorCode int16  `json:"error_code"`
}

// TopologyTopic is one topic in a published topology snapshot.
type TopologyTopic struct {
	Name       string `json:"name"`
	Partitions int32  `json:"partitions"`
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Health checks the coordinator's liveness.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var info HealthInfo
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Stats fetches per-partition state sizes.
func (c *Client) Stats(ctx context.Context) (*StatsInfo, error) {
	var info StatsInfo
	if err := c.doRequest(ctx, http.MethodGet, "/stats", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GroupOffsets fetches every committed offset of a group.
func (c *Client) GroupOffsets(ctx context.Context, groupID string) ([]OffsetInfo, error) {
	var resp struct {
		Offsets []OffsetInfo `json:"offsets"`
	}
	path := "/groups/" + url.PathEscape(groupID) + "/offsets"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Offsets, nil
}

// DeleteGroups deletes the given groups and returns one result per input id,
// in input order.
func (c *Client) DeleteGroups(ctx context.Context, groupIDs []string) ([]DeleteGroupResult, error) {
	body := map[string]interface{}{"group_ids": groupIDs}
	var resp struct {
		Results []DeleteGroupResult `json:"results"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/groups/delete", body, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// PublishTopology pushes a topology snapshot to the coordinator.
func (c *Client) PublishTopology(ctx context.Context, version int64, topics []TopologyTopic) error {
	body := map[string]interface{}{"version": version, "topics": topics}
	return c.doRequest(ctx, http.MethodPost, "/topology", body, nil)
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// doRequest executes an HTTP request and decodes the JSON response.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	u, err := url.JoinPath(c.config.ServerURL, path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
