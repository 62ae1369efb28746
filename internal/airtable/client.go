package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public Airtable web API endpoint.
const DefaultBaseURL = "https://api.airtable.com"

// ErrNotFound reports that a record id does not exist in the table.
var ErrNotFound = errors.New("airtable: record not found")

// Record is one row of the remote table: a stable identifier plus a
// field-name -> value mapping. Values are left untyped; absent fields are
// simply missing keys. Records are never mutated after fetch.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Client is a minimal HTTP client for the Airtable record endpoints used by
// the re-engagement pipeline: paginated list, single-record get, field-level
// patch, and record creation. It owns the bearer token and pagination
// cursors; callers never see either.
type Client struct {
	baseURL *url.URL
	token   string
	baseID  string
	table   string
	http    *http.Client
}

// Option adjusts optional Client behavior.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests, custom TLS).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every request issued by the client. A single
// unresponsive store call must not stall a batch indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient constructs a client for one base/table pair.
//
// baseURL should look like "https://api.airtable.com"; pass DefaultBaseURL
// outside of tests.
func NewClient(baseURL, token, baseID, table string, opts ...Option) (*Client, error) {
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	baseID = strings.TrimSpace(baseID)
	table = strings.TrimSpace(table)
	if token == "" {
		return nil, fmt.Errorf("airtable token is required")
	}
	if baseID == "" {
		return nil, fmt.Errorf("airtable base id is required")
	}
	if table == "" {
		return nil, fmt.Errorf("airtable table name is required")
	}

	c := &Client{
		baseURL: u,
		token:   token,
		baseID:  baseID,
		table:   table,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("airtable base URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse airtable base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("airtable base URL must include a host (got %q)", raw)
	}
	// Ensure the base path ends with a slash so ResolveReference treats it as
	// a directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func (c *Client) tableURL(recordID string) *url.URL {
	p := fmt.Sprintf("v0/%s/%s", url.PathEscape(c.baseID), url.PathEscape(c.table))
	if recordID != "" {
		p += "/" + url.PathEscape(recordID)
	}
	return c.baseURL.ResolveReference(&url.URL{Path: p})
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// ListRecords fetches every record in the table, following the offset cursor
// until the store stops returning one.
func (c *Client) ListRecords(ctx context.Context) ([]Record, error) {
	var all []Record
	offset := ""
	for {
		u := c.tableURL("")
		if offset != "" {
			q := url.Values{}
			q.Set("offset", offset)
			u.RawQuery = q.Encode()
		}

		body, err := c.do(ctx, http.MethodGet, "listRecords", u, nil)
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parse list records response: %w", err)
		}
		all = append(all, page.Records...)

		offset = strings.TrimSpace(page.Offset)
		if offset == "" {
			return all, nil
		}
	}
}

// GetRecord fetches a single record by id. A 404 maps to ErrNotFound.
func (c *Client) GetRecord(ctx context.Context, id string) (Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, fmt.Errorf("record id is required")
	}

	body, err := c.do(ctx, http.MethodGet, "getRecord", c.tableURL(id), nil)
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return Record{}, fmt.Errorf("parse get record response: %w", err)
	}
	if strings.TrimSpace(rec.ID) == "" {
		return Record{}, fmt.Errorf("get record response missing id")
	}
	return rec, nil
}

type updateRequest struct {
	Fields map[string]any `json:"fields"`
}

// UpdateFields patches specific columns of one record, leaving others intact.
func (c *Client) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("record id is required")
	}
	if len(fields) == 0 {
		return fmt.Errorf("no fields to update")
	}

	b, err := json.Marshal(updateRequest{Fields: fields})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch, "updateFields", c.tableURL(id), b)
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return err
	}
	return nil
}

type createRequest struct {
	Records []updateRequest `json:"records"`
}

// CreateRecord inserts a new record with the given fields.
func (c *Client) CreateRecord(ctx context.Context, fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("no fields to create")
	}

	b, err := json.Marshal(createRequest{Records: []updateRequest{{Fields: fields}}})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "createRecord", c.tableURL(""), b)
	return err
}

func (c *Client) do(ctx context.Context, method, op string, u *url.URL, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, newHTTPError(op, resp, b)
	}
	return b, nil
}
