package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/davidbz/kodama/internal/domain"
	"github.com/davidbz/kodama/internal/http/middleware"
	"github.com/davidbz/kodama/internal/observability"
)

// requireAdmin rejects the request unless the principal carries the admin
// role. Returns false when a response has already been written.
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if principal.Role != domain.RoleAdmin {
		observability.FromContext(r.Context()).Warn("admin access denied",
			zap.String("account_id", principal.AccountID),
			zap.String("path", r.URL.Path),
		)
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// HandleSetPricingMode switches a model between auto, markup and fixed.
func (h *Handler) HandleSetPricingMode(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	var req struct {
		Mode domain.PricingMode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	model := r.PathValue("model")
	if err := h.pricing.SetMode(r.Context(), model, req.Mode); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.pricing.Config(model))
}

// HandleSetCustomMarkup sets a per-model markup percent and forces markup mode.
func (h *Handler) HandleSetCustomMarkup(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	var req struct {
		Percent float64 `json:"percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	model := r.PathValue("model")
	if err := h.pricing.SetCustomMarkup(r.Context(), model, req.Percent); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.pricing.Config(model))
}

// HandleSetFixedPrice sets a fixed display price and forces fixed mode.
func (h *Handler) HandleSetFixedPrice(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	var req struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	model := r.PathValue("model")
	if err := h.pricing.SetFixedPrice(r.Context(), model, req.Price); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.pricing.Config(model))
}

// HandlePromotion applies one markup percent to every model at once.
func (h *Handler) HandlePromotion(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	var req struct {
		Percent float64 `json:"percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.pricing.ApplyPromotion(r.Context(), req.Percent); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, h.pricing.Configs())
}

// HandlePricingReset returns every model to auto mode.
func (h *Handler) HandlePricingReset(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	h.pricing.ResetToDefault(r.Context())
	writeJSON(w, http.StatusOK, h.pricing.Configs())
}

// HandleSetExchangeRate updates the USD to display-currency rate.
func (h *Handler) HandleSetExchangeRate(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	var req struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.pricing.SetExchangeRate(r.Context(), req.Rate); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"exchangeRate": h.pricing.ExchangeRate().String(),
	})
}

// HandleExport returns a structured snapshot for offline analysis.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"observations": h.estimator.Snapshot(),
		"pricing":      h.pricing.Configs(),
		"exchangeRate": h.pricing.ExchangeRate().String(),
	})
}
