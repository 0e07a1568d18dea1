package cloudsync

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

	"github.com/mugisham37/product-management-interview-project/internal/models"
)

var (
	ErrNotFound   = errors.New("productsync not found")
	ErrBadRequest = errors.New("productsync bad request")
)

// ConflictError is returned when the server refused a versioned write.
// DecodeErr is set when the conflict details in the response could not be
// read; Info then carries only the server message.
type ConflictError struct {
	Info      models.ConflictInfo
	DecodeErr error
}

func (e *ConflictError) Error() string {
	msg := "productsync conflict"
	if e.Info.Message != "" {
		msg += ": " + e.Info.Message
	}
	if e.DecodeErr != nil {
		msg += " (conflict details unreadable: " + e.DecodeErr.Error() + ")"
	}
	return msg
}

func (e *ConflictError) Unwrap() error {
	return e.DecodeErr
}

// Client talks to the product API under baseURL (e.g. http://host/api/v1).
type Client struct {
	httpClient *http.Client
	baseURL    string
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	if err := c.do(ctx, http.MethodGet, "/products", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetVersion(ctx context.Context, id string) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodGet, productPath(id)+"/version", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateProduct(ctx context.Context, fields models.ProductFields) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodPost, "/products", fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProduct writes fields without a version check.
func (c *Client) UpdateProduct(ctx context.Context, id string, fields models.ProductFields) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodPut, productPath(id), fields, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, productPath(id), nil, nil)
}

// UpdateVersioned sends patch guarded by its revision and lastModified. A
// refused write comes back as *ConflictError.
func (c *Client) UpdateVersioned(ctx context.Context, patch models.VersionedPatch) (*models.Product, error) {
	body := patch
	body.ID = ""
	var out models.Product
	if err := c.do(ctx, http.MethodPut, productPath(patch.ID)+"/versioned", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConsistencyCheck(ctx context.Context) (*models.ConsistencySnapshot, error) {
	var out models.ConsistencySnapshot
	if err := c.do(ctx, http.MethodPost, "/products/consistency-check", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DetectConflicts(ctx context.Context, records []models.ClientRecord) ([]models.ConflictRecord, error) {
	if records == nil {
		records = []models.ClientRecord{}
	}
	var out []models.ConflictRecord
	if err := c.do(ctx, http.MethodPost, "/products/detect-conflicts", records, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BulkUpdate(ctx context.Context, patches []models.VersionedPatch) (*models.BulkUpdateResult, error) {
	if patches == nil {
		patches = []models.VersionedPatch{}
	}
	var out models.BulkUpdateResult
	if err := c.do(ctx, http.MethodPatch, "/products/bulk-update", patches, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func productPath(id string) string {
	return "/products/" + url.PathEscape(strings.TrimSpace(id))
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if decodeErr != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, decodeErr)
		}
		if out == nil || len(env.Data) == 0 {
			return nil
		}
		return json.Unmarshal(env.Data, out)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, env.Message)
	case http.StatusConflict:
		ce := &ConflictError{DecodeErr: decodeErr}
		if decodeErr == nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &ce.Info); err != nil {
				ce.Info = models.ConflictInfo{}
				ce.DecodeErr = err
			}
		}
		if ce.Info.Message == "" {
			ce.Info.Message = env.Message
		}
		return ce
	default:
		if strings.TrimSpace(env.Message) != "" {
			return fmt.Errorf("productsync %d: %s", resp.StatusCode, env.Message)
		}
		return fmt.Errorf("productsync status %d", resp.StatusCode)
	}
}
