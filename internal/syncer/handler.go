package syncer

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oblisync/oblisync/internal/platform/httpx"
	"github.com/oblisync/oblisync/internal/session"
)

// Handler exposes the orchestrator to the UI layer.
type Handler struct {
	logger  *slog.Logger
	service *Service
	store   *session.Store
}

// NewHandler constructs the sync handler.
func NewHandler(logger *slog.Logger, service *Service, store *session.Store) *Handler {
	return &Handler{logger: logger, service: service, store: store}
}

// MountRoutes attaches the sync routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/config", h.saveConfig)
	r.Get("/config", h.getConfig)
	r.Post("/sync/fetch", h.fetch)
	r.Post("/sync/process", h.process)
	r.Post("/sync/retry/{packageID}", h.retry)
	r.Get("/sync/records", h.records)
	r.Get("/sync/logs", h.logs)
	r.Post("/session/clear", h.clearSession)
}

func (h *Handler) saveConfig(w http.ResponseWriter, r *http.Request) {
	var cfg session.IntegrationConfig
	if err := httpx.DecodeJSON(r, &cfg); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.store.SaveConfig(r.Context(), cfg); err != nil {
		h.logger.Error("save config", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg.Redacted())
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Config(r.Context())
	if err != nil {
		h.logger.Error("load config", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if cfg == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no configuration saved")
		return
	}
	httpx.JSON(w, http.StatusOK, cfg.Redacted())
}

func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) {
	packages, err := h.service.FetchAll(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	eligible := h.service.FilterEligible(r.Context(), packages)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"total":    len(packages),
		"eligible": eligible,
	})
}

type processRequest struct {
	PackageIDs []int64 `json:"packageIds"`
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if len(req.PackageIDs) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "packageIds must not be empty")
		return
	}
	if err := h.store.SetSelected(r.Context(), req.PackageIDs); err != nil {
		h.logger.Warn("save selection", slog.Any("error", err))
	}
	result, err := h.service.ProcessSelected(r.Context(), req.PackageIDs)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	packageID, err := strconv.ParseInt(chi.URLParam(r, "packageID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "packageID must be numeric")
		return
	}
	record, err := h.service.Retry(r.Context(), packageID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.Records(r.Context())
	if err != nil {
		h.logger.Error("load records", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	list := make([]session.ProcessedInvoiceRecord, 0, len(records))
	for _, record := range records {
		list = append(list, record)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].PackageID < list[j].PackageID
	})
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "limit must be numeric")
			return
		}
		limit = parsed
	}
	entries, err := h.store.Logs(r.Context(), limit)
	if err != nil {
		h.logger.Error("load logs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) clearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.logger.Error("clear session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoConfig), errors.Is(err, ErrNoSession), errors.Is(err, ErrNoMatches):
		httpx.Problem(w, http.StatusPreconditionFailed, "Precondition Failed", err.Error())
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrPackageNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrRetryDenied):
		httpx.Problem(w, http.StatusConflict, "Retry Denied", err.Error())
	default:
		h.logger.Error("sync operation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Upstream Failure", err.Error())
	}
}
