// Package api exposes the read-facing quote queries and cache maintenance
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/protocol"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/quote"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/repository"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

const requestTimeout = 5 * time.Second

type QuoteQueries interface {
	AllQuotes(ctx context.Context) *models.AggregateQuoteView
	Quote(ctx context.Context, symbol string) models.QuotePrice
	CacheStats(ctx context.Context) (*repository.CacheStats, error)
	CleanExpiredCache(ctx context.Context) (int, error)
	TestPriceCalculation(ctx context.Context, symbol string, price decimal.Decimal) quote.PriceCalculation
}

type StatusProvider interface {
	Status() protocol.StatusInfo
}

type Handler struct {
	queries QuoteQueries
	status  StatusProvider
	logger  *zap.Logger
}

func NewHandler(queries QuoteQueries, status StatusProvider, logger *zap.Logger) *Handler {
	return &Handler{
		queries: queries,
		status:  status,
		logger:  logger.With(zap.String("component", "api")),
	}
}

// NewRouter mounts the quote API, health, metrics and the websocket endpoint.
// ws may be nil.
func NewRouter(h *Handler, gatherer prometheus.Gatherer, ws http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if ws != nil {
		r.Get("/ws", ws.ServeHTTP)
	}
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/quote", func(r chi.Router) {
		r.Use(LoggingMiddleware(h.logger))
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/", h.AllQuotes)
		r.Get("/realtime", h.AllQuotes)
		r.Get("/realtime/{code}", h.Quote)
		r.Get("/status/connection", h.ConnectionStatus)
		r.Get("/status/cache", h.CacheStats)
		r.Post("/maintenance/clean-cache", h.CleanCache)
		r.Post("/test/price-calculation", h.PriceCalculation)
	})
	return r
}

func (h *Handler) AllQuotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queries.AllQuotes(r.Context()))
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	writeJSON(w, http.StatusOK, h.queries.Quote(r.Context(), code))
}

func (h *Handler) ConnectionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Status())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queries.CacheStats(r.Context())
	if err != nil {
		h.logger.Error("Cache stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read cache stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"data":      stats,
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) CleanCache(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.queries.CleanExpiredCache(r.Context())
	if err != nil {
		h.logger.Error("Cache cleanup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clean expired cache")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      fmt.Sprintf("Cleaned %d expired cache entries", deleted),
		"deletedCount": deleted,
		"timestamp":    time.Now().UTC(),
	})
}

type priceCalculationRequest struct {
	Code  string          `json:"code"`
	Price decimal.Decimal `json:"price"`
}

func (h *Handler) PriceCalculation(w http.ResponseWriter, r *http.Request) {
	var req priceCalculationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"data":      h.queries.TestPriceCalculation(r.Context(), req.Code, req.Price),
		"timestamp": time.Now().UTC(),
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
