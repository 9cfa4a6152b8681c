package archive

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oblisync/oblisync/internal/platform/httpx"
)

// Reader is the query surface the handler needs.
type Reader interface {
	ListCompleted(ctx context.Context, filter ListFilter) ([]ArchivedInvoice, error)
	DailyStats(ctx context.Context, days int) ([]DailyStat, error)
}

// Handler exposes archive lookups.
type Handler struct {
	logger *slog.Logger
	repo   Reader
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo Reader) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers archive routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/archive/invoices", h.listInvoices)
	r.Get("/archive/stats", h.dailyStats)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{OrderNumber: r.URL.Query().Get("orderNumber")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "limit must be numeric")
			return
		}
		filter.Limit = limit
	}

	invoices, err := h.repo.ListCompleted(r.Context(), filter)
	if err != nil {
		h.logger.Error("list archived invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if invoices == nil {
		invoices = []ArchivedInvoice{}
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) dailyStats(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "days must be numeric")
			return
		}
		days = parsed
	}

	stats, err := h.repo.DailyStats(r.Context(), days)
	if err != nil {
		h.logger.Error("list archive stats", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if stats == nil {
		stats = []DailyStat{}
	}
	httpx.JSON(w, http.StatusOK, stats)
}
