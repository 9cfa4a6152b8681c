package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	invoices []ArchivedInvoice
	stats    []DailyStat
	err      error
	filter   ListFilter
}

func (f *fakeReader) ListCompleted(ctx context.Context, filter ListFilter) ([]ArchivedInvoice, error) {
	f.filter = filter
	return f.invoices, f.err
}

func (f *fakeReader) DailyStats(ctx context.Context, days int) ([]DailyStat, error) {
	return f.stats, f.err
}

func newTestRouter(reader Reader) chi.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(logger, reader).MountRoutes(r)
	return r
}

func TestListInvoices(t *testing.T) {
	reader := &fakeReader{invoices: []ArchivedInvoice{{
		ID:          1,
		PackageID:   11,
		OrderNumber: "ORD-1",
		InvoiceID:   "FCT0042",
		InvoiceLink: "https://docs.example/fct-0042",
		CompletedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}}}
	router := newTestRouter(reader)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archive/invoices?orderNumber=ORD-1&limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, ListFilter{OrderNumber: "ORD-1", Limit: 5}, reader.filter)
	require.Contains(t, rec.Body.String(), "FCT0042")
}

func TestListInvoicesEmptyIsArray(t *testing.T) {
	router := newTestRouter(&fakeReader{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archive/invoices", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]\n", rec.Body.String())
}

func TestListInvoicesBadLimit(t *testing.T) {
	router := newTestRouter(&fakeReader{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archive/invoices?limit=abc", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListInvoicesRepositoryFailure(t *testing.T) {
	router := newTestRouter(&fakeReader{err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archive/invoices", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDailyStats(t *testing.T) {
	reader := &fakeReader{stats: []DailyStat{{
		Day:            time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		CompletedCount: 7,
	}}}
	router := newTestRouter(reader)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archive/stats?days=7", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "\"completedCount\":7")
}
