package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/davidbz/kodama/internal/domain"
	"github.com/davidbz/kodama/internal/http/middleware"
	"github.com/davidbz/kodama/internal/observability"
	"github.com/davidbz/kodama/internal/provider/registry"
)

const defaultHistoryLimit = 50

// Handler handles HTTP requests.
type Handler struct {
	generation *domain.GenerationService
	ledger     *domain.CreditLedger
	pricing    *domain.PricingEngine
	estimator  *domain.CostEstimator
	recorder   *domain.GenerationRecorder
	catalog    *registry.Registry
	events     *observability.EventBus
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	generation *domain.GenerationService,
	ledger *domain.CreditLedger,
	pricing *domain.PricingEngine,
	estimator *domain.CostEstimator,
	recorder *domain.GenerationRecorder,
	catalog *registry.Registry,
	events *observability.EventBus,
) *Handler {
	return &Handler{
		generation: generation,
		ledger:     ledger,
		pricing:    pricing,
		estimator:  estimator,
		recorder:   recorder,
		catalog:    catalog,
		events:     events,
	}
}

// HandleGenerate runs a generation for the authenticated account.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req domain.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx = observability.WithModel(ctx, req.Model)
	logger := observability.FromContext(ctx)
	logger.Info("generation request received",
		zap.String("model", req.Model),
		zap.String("type", string(req.Type)),
	)

	if _, err := h.ledger.Open(ctx, principal.AccountID, principal.Email, principal.DisplayName); err != nil {
		writeError(w, r, err)
		return
	}

	record, err := h.generation.Generate(ctx, principal.AccountID, &req)
	if err != nil {
		logger.Error("generation failed", zap.Error(err))
		writeError(w, r, err)
		return
	}

	logger.Info("generation succeeded",
		zap.String("generation_id", record.ID),
		zap.Int64("credits", record.Credits),
		zap.Bool("unpaid", record.Unpaid),
	)

	writeJSON(w, http.StatusOK, record)
}

// HandleBalance returns the credit balance of the authenticated account.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	account, err := h.ledger.Open(ctx, principal.AccountID, principal.Email, principal.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accountId":         account.ID,
		"balance":           account.CreditBalance,
		"totalCreditsEver":  account.TotalCreditsEver,
		"totalSpentCredits": account.TotalSpentCredits,
	})
}

// HandleCreditHistory returns the newest-first transaction history.
func (h *Handler) HandleCreditHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	transactions, err := h.ledger.History(ctx, principal.AccountID, queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
	})
}

// HandleTopUp adds credits to the authenticated account.
func (h *Handler) HandleTopUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	if req.Description == "" {
		req.Description = "Credit top-up"
	}

	if _, err := h.ledger.Open(ctx, principal.AccountID, principal.Email, principal.DisplayName); err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := h.ledger.TopUp(ctx, principal.AccountID, req.Amount, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// HandleGenerationHistory returns the newest-first generation records.
func (h *Handler) HandleGenerationHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	records, err := h.recorder.History(ctx, principal.AccountID, queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"generations": records,
	})
}

// pricingRow is one line of the dashboard pricing table.
type pricingRow struct {
	Model            string             `json:"model"`
	Type             string             `json:"type"`
	Mode             domain.PricingMode `json:"mode"`
	EstimatedCostUSD float64            `json:"estimatedCostUsd"`
	BaseAmount       string             `json:"baseAmount"`
	DisplayAmount    int64              `json:"displayAmount"`
	Credits          int64              `json:"credits"`
	SampleSize       int                `json:"sampleSize"`
}

// HandlePricingTable returns current pricing for every catalog model.
func (h *Handler) HandlePricingTable(w http.ResponseWriter, r *http.Request) {
	types := []domain.GenerationType{domain.TypeImage, domain.TypeVideo}

	rows := make([]pricingRow, 0)
	for _, typ := range types {
		for _, name := range h.catalog.Names(typ) {
			settings := domain.Settings{}
			cost := h.estimator.EstimateCost(name, typ, settings)
			charge := h.pricing.ComputeCharge(name, cost)

			rows = append(rows, pricingRow{
				Model:            name,
				Type:             string(typ),
				Mode:             h.pricing.Config(name).Mode,
				EstimatedCostUSD: cost,
				BaseAmount:       charge.BaseAmount.String(),
				DisplayAmount:    charge.DisplayAmount,
				Credits:          h.pricing.Credits(charge),
				SampleSize:       h.estimator.SampleSize(name, typ, settings),
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exchangeRate": h.pricing.ExchangeRate().String(),
		"models":       rows,
	})
}

// HandleEvents streams dashboard events over SSE.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	logger.Info("event stream started")

	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Long-lived stream; lift the server's write timeout for this connection.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	events, cancel := h.events.Subscribe()
	defer cancel()

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			logger.Info("event stream closed")
			return
		case event, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error("failed to encode event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, string(data))
			flusher.Flush()
		}
	}
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return defaultHistoryLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var provErr *domain.ProviderError
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrModelNotFound), errors.Is(err, domain.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPricingConfig):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrProviderTimeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &provErr):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	})
}
