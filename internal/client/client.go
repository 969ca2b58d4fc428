// Package client provides a Go SDK for talking to a single node's HTTP
// API: document put/get/delete, single-shard transactions, and cluster
// administration. It hides HTTP, JSON, and error-status translation
// behind plain Go method calls.
//
// A Client talks to exactly one node. That node is responsible for
// routing the request to the right shard and replicating it — the SDK
// itself implements no distributed logic.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/solisoft/solidb-sub010/internal/docvalue"
)

// Client is an HTTP client bound to one node's base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. timeout protects every call from hanging
// forever; zero means 10 seconds.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PutResponse is returned after a successful document write.
type PutResponse struct {
	Key string `json:"key"`
	HLC string `json:"hlc"`
}

// GetResponse is a document plus the replica set it was found on.
type GetResponse struct {
	Key      string         `json:"key"`
	Value    docvalue.Value `json:"value"`
	Replicas []string       `json:"_replicas"`
}

// Put stores doc in collection, generating a key if doc has none. Pass
// key == "" to let the server generate one.
func (c *Client) Put(ctx context.Context, collection, key string, doc docvalue.Value) (*PutResponse, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/documents/%s", c.baseURL, collection)
	if key != "" {
		path = fmt.Sprintf("%s/%s", path, key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("PUT request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var result PutResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Get retrieves a document by key. A 404 is converted to ErrNotFound.
func (c *Client) Get(ctx context.Context, collection, key string) (*GetResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/documents/%s/%s", c.baseURL, collection, key), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var result GetResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Delete tombstones a document. The server replicates the delete the
// same way it replicates a write; the caller doesn't need to know that.
func (c *Client) Delete(ctx context.Context, collection, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/documents/%s/%s", c.baseURL, collection, key), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("DELETE request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// ─── Errors ─────────────────────────────────────────────────────────────────

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = fmt.Errorf("document not found")

// APIError carries the HTTP status, taxonomy kind, and message the
// server reported.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d (%s): %s", e.Status, e.Kind, e.Message)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Kind: apiErr.Kind, Message: msg}
}
