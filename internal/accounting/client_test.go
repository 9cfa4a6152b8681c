package accounting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oblisync/oblisync/internal/shared"
)

func validRequest() InvoiceRequest {
	return InvoiceRequest{
		CIF:         "RO12345678",
		Client:      InvoiceClient{Name: "Popescu Ion"},
		IssueDate:   "2026-08-23",
		DueDate:     "2026-09-22",
		Currency:    "RON",
		Language:    "RO",
		SeriesName:  "FCT",
		WorkStation: 1,
		Products:    []InvoiceProduct{{Name: "Widget", Price: 50, Quantity: 2, VATPercent: 19}},
	}
}

func TestCreateInvoice(t *testing.T) {
	var tokenCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/authorize/token":
			tokenCalls++
			require.NoError(t, r.ParseForm())
			require.Equal(t, "user@example.com", r.FormValue("client_id"))
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
		case "/api/docs/invoice":
			require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			var req InvoiceRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "FCT", req.SeriesName)
			_ = json.NewEncoder(w).Encode(invoiceResponse{
				Status: 200,
				Data:   InvoiceResult{SeriesName: "FCT", Number: "0042", Link: "https://docs.example/fct-0042"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Email: "user@example.com", SecretKey: "s", CIF: "RO12345678"})

	result, err := client.CreateInvoice(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, "FCT0042", result.DocumentID())
	require.Equal(t, "https://docs.example/fct-0042", result.Link)

	// Second call reuses the cached token.
	_, err = client.CreateInvoice(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, 1, tokenCalls)
}

func TestCreateInvoiceAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Email: "user@example.com", SecretKey: "bad"})

	_, err := client.CreateInvoice(context.Background(), validRequest())
	require.Error(t, err)
	require.Equal(t, shared.KindNonRetryable, shared.KindOf(err))
	require.Contains(t, err.Error(), "invalid credentials")
}

func TestCreateInvoiceEnvelopeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/authorize/token":
			_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: 3600})
		default:
			_ = json.NewEncoder(w).Encode(invoiceResponse{Status: 500, StatusMessage: "series not found"})
		}
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Email: "user@example.com", SecretKey: "s"})

	_, err := client.CreateInvoice(context.Background(), validRequest())
	require.Error(t, err)
	require.Equal(t, shared.KindServer, shared.KindOf(err))
	require.Contains(t, err.Error(), "series not found")
}

func TestInvoiceRequestTotal(t *testing.T) {
	req := validRequest()
	require.InDelta(t, 100.0, req.Total(), 1e-9)
}
