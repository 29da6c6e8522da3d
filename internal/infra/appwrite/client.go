// Package appwrite provides a client for the Appwrite REST API.
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a document or account does not exist.
var ErrNotFound = errors.New("appwrite: not found")

// Client is an Appwrite API client.
type Client struct {
	endpoint   string
	projectID  string
	apiKey     string
	databaseID string
	httpClient *http.Client
}

// Config represents Appwrite client configuration.
type Config struct {
	Endpoint   string `mapstructure:"endpoint" validate:"required,url"`
	ProjectID  string `mapstructure:"project_id" validate:"required"`
	APIKey     string `mapstructure:"api_key" validate:"required"`
	DatabaseID string `mapstructure:"database_id" validate:"required"`
}

// Document is a stored document with its system attributes split out.
type Document struct {
	ID        string
	CreatedAt time.Time
	Fields    map[string]any
}

// UnmarshalJSON splits "$" system attributes from user fields.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Fields = make(map[string]any, len(raw))
	for k, v := range raw {
		switch k {
		case "$id":
			d.ID, _ = v.(string)
		case "$createdAt":
			if s, ok := v.(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					d.CreatedAt = t
				}
			}
		default:
			if !strings.HasPrefix(k, "$") {
				d.Fields[k] = v
			}
		}
	}
	return nil
}

// String returns a string field, or "" if absent.
func (d Document) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// User represents the account behind a session JWT.
type User struct {
	ID    string `json:"$id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// APIError represents an error response from the Appwrite API.
type APIError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("appwrite API error %d (%s): %s", e.Code, e.Type, e.Message)
}

// Query is one Appwrite query expression.
type Query struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

// Equal matches documents whose attribute equals one of values.
func Equal(attribute string, values ...any) Query {
	return Query{Method: "equal", Attribute: attribute, Values: values}
}

// OrderAsc sorts by attribute, ascending.
func OrderAsc(attribute string) Query {
	return Query{Method: "orderAsc", Attribute: attribute}
}

// Limit caps the number of returned documents.
func Limit(n int) Query {
	return Query{Method: "limit", Values: []any{n}}
}

type listResponse struct {
	Total     int        `json:"total"`
	Documents []Document `json:"documents"`
}

// New creates a new Appwrite client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.ProjectID == "" {
		return nil, errors.New("appwrite endpoint and project id are required")
	}

	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		projectID:  cfg.ProjectID,
		apiKey:     cfg.APIKey,
		databaseID: cfg.DatabaseID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// ListDocuments lists the documents of collection matching queries.
// Reference: https://appwrite.io/docs/references/cloud/server-rest/databases#listDocuments
func (c *Client) ListDocuments(ctx context.Context, collection string, queries ...Query) ([]Document, error) {
	params := url.Values{}
	for _, q := range queries {
		encoded, err := json.Marshal(q)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode query")
		}
		params.Add("queries[]", string(encoded))
	}

	path := c.collectionPath(collection) + "/documents"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var response listResponse
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to list documents in %s", collection)
	}
	return response.Documents, nil
}

// CreateDocument creates a document with the given ID and fields.
// Reference: https://appwrite.io/docs/references/cloud/server-rest/databases#createDocument
func (c *Client) CreateDocument(ctx context.Context, collection, documentID string, data map[string]any) (Document, error) {
	body := map[string]any{
		"documentId": documentID,
		"data":       data,
	}

	var doc Document
	if err := c.do(ctx, http.MethodPost, c.collectionPath(collection)+"/documents", nil, body, &doc); err != nil {
		return Document{}, errors.Wrapf(err, "failed to create document in %s", collection)
	}
	return doc, nil
}

// DeleteDocument deletes a document.
// Reference: https://appwrite.io/docs/references/cloud/server-rest/databases#deleteDocument
func (c *Client) DeleteDocument(ctx context.Context, collection, documentID string) error {
	path := c.collectionPath(collection) + "/documents/" + url.PathEscape(documentID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return errors.Wrapf(err, "failed to delete document %s", documentID)
	}
	return nil
}

// GetCurrentUser resolves the account behind a client session JWT.
// Reference: https://appwrite.io/docs/references/cloud/client-rest/account#get
func (c *Client) GetCurrentUser(ctx context.Context, jwt string) (User, error) {
	if jwt == "" {
		return User{}, errors.New("jwt is required")
	}

	var user User
	header := http.Header{"X-Appwrite-JWT": []string{jwt}}
	if err := c.do(ctx, http.MethodGet, "/account", header, nil, &user); err != nil {
		return User{}, errors.Wrap(err, "failed to get current user")
	}
	return user, nil
}

// FileViewURL returns the public view URL of a stored file. The stream URL
// of a track is resolved from its storage reference this way.
func (c *Client) FileViewURL(bucketID, fileID string) string {
	if bucketID == "" || fileID == "" {
		return ""
	}
	return fmt.Sprintf("%s/storage/buckets/%s/files/%s/view?project=%s",
		c.endpoint, url.PathEscape(bucketID), url.PathEscape(fileID), url.QueryEscape(c.projectID))
}

func (c *Client) collectionPath(collection string) string {
	return "/databases/" + url.PathEscape(c.databaseID) + "/collections/" + url.PathEscape(collection)
}

// do sends a request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("X-Appwrite-Project", c.projectID)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	// A JWT request acts as the user; the API key would override it.
	if req.Header.Get("X-Appwrite-JWT") == "" && c.apiKey != "" {
		req.Header.Set("X-Appwrite-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Code: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		zlog.Debug().Msgf("appwrite: %s %s -> %d %s", method, path, resp.StatusCode, apiErr.Type)
		if resp.StatusCode == http.StatusNotFound {
			return errors.Mark(apiErr, ErrNotFound)
		}
		return apiErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
