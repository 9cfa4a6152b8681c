package accounting

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
	"sync"
	"time"

	"github.com/oblisync/oblisync/internal/shared"
)

// Config carries the credentials for one accounting account.
type Config struct {
	BaseURL   string
	Email     string
	SecretKey string
	CIF       string
}

// Client talks to the accounting API. Access tokens are fetched
// lazily and cached until shortly before expiry.
type Client struct {
	baseURL    string
	email      string
	secretKey  string
	cif        string
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient constructs a new client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		email:     cfg.Email,
		secretKey: cfg.SecretKey,
		cif:       cfg.CIF,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type invoiceResponse struct {
	Status        int           `json:"status"`
	StatusMessage string        `json:"statusMessage"`
	Data          InvoiceResult `json:"data"`
}

// CreateInvoice creates an invoice document and returns its identity
// and public link.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceResult, error) {
	const op = "accounting: create invoice"

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, shared.NewRemoteError(shared.KindNonRetryable, op, 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/docs/invoice", bytes.NewReader(payload))
	if err != nil {
		return nil, shared.NewRemoteError(shared.KindNonRetryable, op, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, shared.NewRemoteError(transportKind(err), op, 0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, shared.NewRemoteError(shared.KindFromStatus(resp.StatusCode), op, resp.StatusCode, errors.New(string(detail)))
	}

	var body invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, shared.NewRemoteError(shared.KindNonRetryable, op, resp.StatusCode, fmt.Errorf("malformed response: %w", err))
	}
	// The API reports application-level failures inside a 200 envelope.
	if body.Status != 0 && body.Status != http.StatusOK {
		return nil, shared.NewRemoteError(shared.KindFromStatus(body.Status), op, body.Status, errors.New(body.StatusMessage))
	}
	return &body.Data, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	const op = "accounting: authorize"

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("client_id", c.email)
	form.Set("client_secret", c.secretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/authorize/token", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", shared.NewRemoteError(shared.KindNonRetryable, op, 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", shared.NewRemoteError(transportKind(err), op, 0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		kind := shared.KindFromStatus(resp.StatusCode)
		return "", shared.NewRemoteError(kind, op, resp.StatusCode, errors.New("invalid credentials"))
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", shared.NewRemoteError(shared.KindNonRetryable, op, resp.StatusCode, fmt.Errorf("malformed response: %w", err))
	}
	if body.AccessToken == "" {
		return "", shared.NewRemoteError(shared.KindNonRetryable, op, resp.StatusCode, errors.New("empty access token"))
	}

	c.token = body.AccessToken
	expiry := time.Duration(body.ExpiresIn) * time.Second
	if expiry <= 0 {
		expiry = time.Hour
	}
	c.tokenExpiry = time.Now().Add(expiry - 30*time.Second)
	return c.token, nil
}

// CIF returns the issuing company's tax identifier.
func (c *Client) CIF() string {
	return c.cif
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
