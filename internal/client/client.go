// Package client provides a thin Go SDK for talking to one peerlog node
// over HTTP, wrapping the routes internal/api mounts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to exactly one peerlog node. It does not implement any
// gossip or replication logic itself — that's the node's job.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client against baseURL, e.g. "http://localhost:8080".
// A zero timeout defaults to 10s; never call the network without one.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// PutObject uploads raw content and returns its CID.
func (c *Client) PutObject(ctx context.Context, content []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/objects", bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}
	var out struct {
		Cid string `json:"cid"`
	}
	return out.Cid, json.NewDecoder(resp.Body).Decode(&out)
}

// GetObject fetches raw content by CID. A missing object is reported as
// ErrNotFound.
func (c *Client) GetObject(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/objects/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// OpenDatabaseOptions mirrors the fields of api.openRequest a client can
// set when opening or creating a database.
type OpenDatabaseOptions struct {
	Create    bool
	Type      string
	Overwrite bool
	LocalOnly bool
	Sync      bool
	Write     []string
}

// DatabaseInfo is returned after a successful open.
type DatabaseInfo struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Type    string `json:"type"`
}

// OpenDatabase opens or creates the database named or addressed by
// nameOrAddress on the node.
func (c *Client) OpenDatabase(ctx context.Context, nameOrAddress string, opts OpenDatabaseOptions) (*DatabaseInfo, error) {
	body, err := json.Marshal(struct {
		Address   string   `json:"address"`
		Create    bool     `json:"create"`
		Type      string   `json:"type"`
		Overwrite bool     `json:"overwrite"`
		LocalOnly bool     `json:"localOnly"`
		Sync      bool     `json:"sync"`
		Write     []string `json:"write"`
	}{nameOrAddress, opts.Create, opts.Type, opts.Overwrite, opts.LocalOnly, opts.Sync, opts.Write})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/databases", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var info DatabaseInfo
	return &info, json.NewDecoder(resp.Body).Decode(&info)
}

// EntryResult is returned after a successful append.
type EntryResult struct {
	Hash  string `json:"hash"`
	Clock struct {
		ID   string `json:"id"`
		Time uint64 `json:"time"`
	} `json:"clock"`
}

// AddEntry appends payload to the database at address.
func (c *Client) AddEntry(ctx context.Context, address string, payload []byte) (*EntryResult, error) {
	body, err := json.Marshal(struct {
		Payload []byte `json:"payload"`
	}{payload})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/databases/%s/entries", c.baseURL, address), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("add entry: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var result EntryResult
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// LogEntry is one item in ListEntries' result.
type LogEntry struct {
	Hash    string          `json:"hash"`
	Clock   json.RawMessage `json:"clock"`
	Payload []byte          `json:"payload"`
}

// ListEntries returns up to limit entries from address in total order.
// limit<0 means unlimited.
func (c *Client) ListEntries(ctx context.Context, address string, limit int) ([]LogEntry, error) {
	url := fmt.Sprintf("%s/databases/%s/entries", c.baseURL, address)
	if limit >= 0 {
		url = fmt.Sprintf("%s?limit=%d", url, limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var out struct {
		Entries []LogEntry `json:"entries"`
	}
	return out.Entries, json.NewDecoder(resp.Body).Decode(&out)
}

// ─── Errors ────────────────────────────────────────────────────────────────

// ErrNotFound is returned by GetObject when the object does not exist; a
// missing database comes back as an *APIError with status 404.
var ErrNotFound = fmt.Errorf("not found")

// APIError carries the HTTP status and message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
