// Package couch talks to the CouchDB database holding the canonical
// favorites collection. It covers raw document requests, the two secondary
// views the client depends on, and the connectivity prober.
package couch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tabula-sync/tabula/internal/logger"
	"github.com/tabula-sync/tabula/internal/utils"
)

// Config identifies the database and its fixed Basic-auth credentials.
type Config struct {
	// URL is the base endpoint including the database name,
	// ex: http://couch.example:5984/tabula
	URL      string
	Username string
	Password string
}

// Client executes authenticated JSON requests against one database.
// It does no retrying; queue/replay logic lives one level up.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
	logger  logger.Logger
}

func NewClient(cfg Config, log logger.Logger) *Client {
	creds := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
	return &Client{
		baseURL: cfg.URL,
		auth:    "Basic " + creds,
		http:    &http.Client{},
		logger:  log,
	}
}

// BaseURL returns the configured database endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// Request performs one HTTP round trip against the database. An empty path
// addresses the database itself. body, when non-nil, is serialized as UTF-8
// JSON. Non-2xx responses come back as *RemoteError with the response body
// as text; dispatch failures come back as *TransportError.
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	target := c.baseURL
	if path != "" {
		target = c.baseURL + "/" + path
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	c.logger.Debug("couchdb request",
		logger.String("method", method),
		logger.String("url", target))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		text, _ := io.ReadAll(resp.Body)
		return nil, &RemoteError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       string(text),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return json.RawMessage(raw), nil
}

// Document is a raw CouchDB document.
type Document map[string]any

// ID returns the document identifier, empty when unset.
func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// Rev returns the revision token, empty when unset.
func (d Document) Rev() string {
	rev, _ := d["_rev"].(string)
	return rev
}

// WriteResult is CouchDB's answer to a successful write.
type WriteResult struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// GetDocument fetches one document by id.
func (c *Client) GetDocument(ctx context.Context, id string) (Document, error) {
	raw, err := c.Request(ctx, http.MethodGet, url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return doc, nil
}

// PutDocument writes doc under id. The document must carry a current _rev
// unless it is new; a stale rev yields a 409 RemoteError.
func (c *Client) PutDocument(ctx context.Context, id string, doc Document) (WriteResult, error) {
	return c.write(ctx, http.MethodPut, url.PathEscape(id), doc)
}

// PostDocument creates a new document and lets the store assign its id.
func (c *Client) PostDocument(ctx context.Context, doc Document) (WriteResult, error) {
	return c.write(ctx, http.MethodPost, "", doc)
}

// DeleteDocument removes the document at the given revision.
func (c *Client) DeleteDocument(ctx context.Context, id, rev string) (WriteResult, error) {
	path := fmt.Sprintf("%s?rev=%s", url.PathEscape(id), url.QueryEscape(rev))
	return c.write(ctx, http.MethodDelete, path, nil)
}

func (c *Client) write(ctx context.Context, method, path string, doc Document) (WriteResult, error) {
	var body any
	if doc != nil {
		body = doc
	}
	raw, err := c.Request(ctx, method, path, body)
	if err != nil {
		return WriteResult{}, err
	}
	var res WriteResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return WriteResult{}, fmt.Errorf("failed to decode write result: %w", err)
	}
	return res, nil
}
