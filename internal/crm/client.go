// Package crm talks to the billing/CRM REST API and turns its loosely typed
// records into the typed shapes the reconciler works with.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/septivank/crm-topology-worker/internal/config"
	"github.com/septivank/crm-topology-worker/internal/metrics"
)

const (
	apiPrefix      = "/api/2.0/"
	defaultTimeout = 10 * time.Second

	tariffsPath   = "admin/tariffs/internet"
	customersPath = "admin/customers/customer"
	routersPath   = "admin/networking/routers"
)

// Client issues authenticated read requests against the CRM API.
type Client struct {
	baseURL    string
	authHeader string
	client     *http.Client
}

// NewClient creates a new CRM client from explicit configuration.
func NewClient(cfg config.CRMConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		authHeader: BasicAuthHeader(cfg.APIKey, cfg.APISecret),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Tariffs returns the internet tariff collection.
func (c *Client) Tariffs(ctx context.Context) ([]Record, error) {
	return c.get(ctx, CollectionTariffs, tariffsPath)
}

// Customers returns the customer collection.
func (c *Client) Customers(ctx context.Context) ([]Record, error) {
	return c.get(ctx, CollectionCustomers, customersPath)
}

// InternetServices returns the internet services of one customer.
func (c *Client) InternetServices(ctx context.Context, customerID string) ([]Record, error) {
	path := customersPath + "/" + url.PathEscape(customerID) + "/internet-services"
	return c.get(ctx, CollectionServices, path)
}

// Routers returns the router collection.
func (c *Client) Routers(ctx context.Context) ([]Record, error) {
	return c.get(ctx, CollectionRouters, routersPath)
}

func (c *Client) get(ctx context.Context, resource, path string) ([]Record, error) {
	records, err := c.do(ctx, path)
	metrics.CRMRequestsTotal.WithLabelValues(resource, outcome(err)).Inc()
	return records, err
}

func (c *Client) do(ctx context.Context, path string) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+path, nil)
	if err != nil {
		return nil, &TransportError{Path: path, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Path: path, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Path: path, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DecodeError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("request failed: %s", truncate(body, 256)),
		}
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, &DecodeError{Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	return records, nil
}

// decodeRecords expects a JSON array of objects. Numbers are kept as
// json.Number so identifiers and speeds survive without float rounding.
func decodeRecords(body []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if raw == nil {
		return nil, errors.New("parse response: body is not an array")
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("parse response: trailing data after array")
	}

	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		itemDec := json.NewDecoder(bytes.NewReader(item))
		itemDec.UseNumber()
		var rec Record
		if err := itemDec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("parse record #%d: %w", i, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("parse record #%d: not an object", i)
		}
		records = append(records, rec)
	}
	return records, nil
}

func outcome(err error) string {
	var transportErr *TransportError
	var decodeErr *DecodeError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &transportErr):
		return "transport_error"
	case errors.As(err, &decodeErr):
		return "decode_error"
	default:
		return "error"
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
