// Package syncclient is the HTTP client for the inventad sync server.
package syncclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jvega/inventa/internal/models"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Client is an HTTP client for the inventad server.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new sync client.
func New(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Sync types (mirrors internal/api/sync.go, independently defined) ---

// BatchRequest is the body for POST /sync/batch.
type BatchRequest struct {
	Changes   map[string][]models.Record `json:"changes"`
	DeviceID  string                     `json:"deviceId"`
	Timestamp int64                      `json:"timestamp"`
}

// EntityResult reports per-entity-type outcomes of a batch.
type EntityResult struct {
	Applied  []AppliedRecord  `json:"applied"`
	Rejected []RejectedRecord `json:"rejected,omitempty"`
}

// AppliedRecord is one accepted record.
type AppliedRecord struct {
	ExternalID string `json:"externalId"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// RejectedRecord is one refused record with the reason the server gave.
type RejectedRecord struct {
	ExternalID string `json:"externalId"`
	Reason     string `json:"reason"`
}

// BatchResponse is the response from a batch push.
type BatchResponse struct {
	Processed       map[string]EntityResult `json:"processed"`
	ServerTimestamp int64                   `json:"serverTimestamp"`
}

// PullResponse is the response from GET /sync/pull.
type PullResponse struct {
	Updates         map[string][]models.Record `json:"updates"`
	ServerTimestamp int64                      `json:"serverTimestamp"`
	BusinessID      string                     `json:"businessId"`
}

// StatusResponse is the response from GET /sync/status.
type StatusResponse struct {
	Counts          map[string]int64 `json:"counts"`
	ServerTimestamp int64            `json:"serverTimestamp"`
	BusinessID      string           `json:"businessId"`
	BusinessName    string           `json:"businessName"`
}

// RequestResponse is the response from POST /requests.
type RequestResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// DeliverItemsRequest is the body for POST /requests/{id}/items.
type DeliverItemsRequest struct {
	SessionID string          `json:"sessionId"`
	Items     []models.Record `json:"items"`
	DeviceID  string          `json:"deviceId"`
}

// DeliverItemsResponse is the response to an item delivery.
type DeliverItemsResponse struct {
	Accepted int `json:"accepted"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doNoAuth("GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Batch pushes local changes to the server.
func (c *Client) Batch(changes map[string][]models.Record) (*BatchResponse, error) {
	req := &BatchRequest{
		Changes:   changes,
		DeviceID:  c.DeviceID,
		Timestamp: time.Now().UnixMilli(),
	}
	var resp BatchResponse
	if err := c.do("POST", "/sync/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull fetches records changed on the server since lastSync. An empty tables
// slice requests every entity type.
func (c *Client) Pull(lastSync int64, tables []string) (*PullResponse, error) {
	params := url.Values{}
	params.Set("lastSync", strconv.FormatInt(lastSync, 10))
	if len(tables) > 0 {
		params.Set("tables", strings.Join(tables, ","))
	}

	var resp PullResponse
	if err := c.do("GET", "/sync/pull?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status gets the per-entity row counts for the authenticated business.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do("GET", "/sync/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateRequest opens a connection request so another device can deliver
// captured items to the authenticated business.
func (c *Client) CreateRequest() (*RequestResponse, error) {
	var resp RequestResponse
	if err := c.do("POST", "/requests", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeliverCapturedItems sends counted items captured against a connection
// request to the business that issued it.
func (c *Client) DeliverCapturedItems(requestID, sessionID string, items []models.Record) (*DeliverItemsResponse, error) {
	req := &DeliverItemsRequest{
		SessionID: sessionID,
		Items:     items,
		DeviceID:  c.DeviceID,
	}
	var resp DeliverItemsResponse
	if err := c.do("POST", fmt.Sprintf("/requests/%s/items", requestID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// do executes an authenticated HTTP request.
func (c *Client) do(method, path string, body, result any) error {
	return c.doRequest(method, path, body, result, true)
}

// doNoAuth executes an unauthenticated HTTP request.
func (c *Client) doNoAuth(method, path string, body, result any) error {
	return c.doRequest(method, path, body, result, false)
}

func (c *Client) doRequest(method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil && env.Error.Code != "" {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return fmt.Errorf("%w: %s", ErrUnauthorized, env.Error.Message)
			case http.StatusForbidden:
				return fmt.Errorf("%w: %s", ErrForbidden, env.Error.Message)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s", ErrNotFound, env.Error.Message)
			default:
				return &env.Error
			}
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
