package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/oblisync/oblisync/internal/shared"
)

const (
	pageSize = 200
	// maxAttempts bounds the in-call retry budget. Failures that
	// survive it surface as a single error to the orchestrator.
	maxAttempts = 3
)

// Config carries the credentials and endpoint for one supplier account.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	SupplierID int64
}

// Client talks to the marketplace supplier API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	supplierID int64
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a new client. The marketplace enforces a
// per-supplier request quota, so calls are throttled client-side.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		supplierID: cfg.SupplierID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

type packagePage struct {
	Page          int               `json:"page"`
	Size          int               `json:"size"`
	TotalPages    int               `json:"totalPages"`
	TotalElements int               `json:"totalElements"`
	Content       []ShipmentPackage `json:"content"`
}

// FetchPackages retrieves the complete shipment-package collection,
// walking all pages. Pagination is invisible to callers.
func (c *Client) FetchPackages(ctx context.Context, opts FetchOptions) ([]ShipmentPackage, error) {
	var all []ShipmentPackage
	for page := 0; ; page++ {
		result, err := c.fetchPage(ctx, opts, page)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Content...)
		if page+1 >= result.TotalPages || len(result.Content) == 0 {
			break
		}
	}
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, opts FetchOptions, page int) (*packagePage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(pageSize))
	if opts.OrderBy != "" {
		query.Set("orderByField", opts.OrderBy)
		direction := "ASC"
		if opts.Descending {
			direction = "DESC"
		}
		query.Set("orderByDirection", direction)
	}
	endpoint := fmt.Sprintf("%s/suppliers/%d/orders?%s", c.baseURL, c.supplierID, query.Encode())

	var result packagePage
	if err := c.doWithRetry(ctx, "marketplace: fetch packages", http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type invoiceLinkRequest struct {
	InvoiceLink       string `json:"invoiceLink"`
	ShipmentPackageID int64  `json:"shipmentPackageId"`
}

// AttachInvoiceLink writes the generated invoice URL back to the
// package. A conflict response means the link, or another one, is
// already registered for this package; that is never retried.
func (c *Client) AttachInvoiceLink(ctx context.Context, packageID int64, link string) error {
	if link == "" {
		return shared.NewRemoteError(shared.KindNonRetryable, "marketplace: attach invoice link", 0, errors.New("empty invoice link"))
	}
	endpoint := fmt.Sprintf("%s/suppliers/%d/supplier-invoice-links", c.baseURL, c.supplierID)
	body := invoiceLinkRequest{InvoiceLink: link, ShipmentPackageID: packageID}
	return c.doWithRetry(ctx, "marketplace: attach invoice link", http.MethodPost, endpoint, body, nil)
}

// doWithRetry performs one logical call with a capped exponential
// in-call retry budget. Only retryable kinds are re-attempted.
func (c *Client) doWithRetry(ctx context.Context, op, method, endpoint string, body, target any) error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = 500 * time.Millisecond
	backoffCfg.MaxInterval = 5 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return shared.NewRemoteError(shared.KindTimeout, op, 0, err)
		}
		lastErr = c.do(ctx, op, method, endpoint, body, target)
		if lastErr == nil {
			return nil
		}
		if !shared.KindOf(lastErr).Retryable() || attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return shared.NewRemoteError(shared.KindTimeout, op, 0, ctx.Err())
		case <-time.After(backoffCfg.NextBackOff()):
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body, target any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return shared.NewRemoteError(shared.KindNonRetryable, op, 0, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return shared.NewRemoteError(shared.KindNonRetryable, op, 0, err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.NewRemoteError(transportKind(err), op, 0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return shared.NewRemoteError(
			shared.KindFromStatus(resp.StatusCode),
			op,
			resp.StatusCode,
			fmt.Errorf("%s", firstLine(detail, resp.Status)),
		)
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return shared.NewRemoteError(shared.KindNonRetryable, op, resp.StatusCode, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

func transportKind(err error) shared.Kind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return shared.KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.KindTimeout
	}
	return shared.KindNetwork
}

func firstLine(detail []byte, fallback string) string {
	for i, b := range detail {
		if b == '\n' {
			detail = detail[:i]
			break
		}
	}
	if len(detail) == 0 {
		return fallback
	}
	return string(detail)
}
