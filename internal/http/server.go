package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/davidbz/kodama/internal/config"
	"github.com/davidbz/kodama/internal/http/middleware"
	"github.com/davidbz/kodama/internal/observability"
)

// Server represents the HTTP server.
type Server struct {
	config      config.ServerConfig
	handler     *Handler
	middlewares middleware.Middleware
	srv         *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.ServerConfig,
	handler *Handler,
	middlewares middleware.Middleware,
) *Server {
	return &Server{
		config:      *cfg,
		handler:     handler,
		middlewares: middlewares,
		srv:         nil,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("POST /v1/generate", s.handler.HandleGenerate)
	mux.HandleFunc("GET /v1/generations", s.handler.HandleGenerationHistory)
	mux.HandleFunc("GET /v1/credits/balance", s.handler.HandleBalance)
	mux.HandleFunc("GET /v1/credits/history", s.handler.HandleCreditHistory)
	mux.HandleFunc("POST /v1/credits/topup", s.handler.HandleTopUp)
	mux.HandleFunc("GET /v1/pricing/table", s.handler.HandlePricingTable)
	mux.HandleFunc("GET /v1/events", s.handler.HandleEvents)

	mux.HandleFunc("PUT /v1/admin/pricing/{model}/mode", s.handler.HandleSetPricingMode)
	mux.HandleFunc("PUT /v1/admin/pricing/{model}/markup", s.handler.HandleSetCustomMarkup)
	mux.HandleFunc("PUT /v1/admin/pricing/{model}/fixed", s.handler.HandleSetFixedPrice)
	mux.HandleFunc("POST /v1/admin/pricing/promotion", s.handler.HandlePromotion)
	mux.HandleFunc("POST /v1/admin/pricing/reset", s.handler.HandlePricingReset)
	mux.HandleFunc("PUT /v1/admin/exchange-rate", s.handler.HandleSetExchangeRate)
	mux.HandleFunc("GET /v1/admin/export", s.handler.HandleExport)

	mux.HandleFunc("GET /health", s.handler.HandleHealth)

	// Apply middleware chain.
	handlerWithMiddleware := s.middlewares(mux)

	// Create server with timeouts. The event stream handler clears its own
	// write deadline, so the write timeout only bounds regular responses.
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      handlerWithMiddleware,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	ctx := context.Background()
	observability.FromContext(ctx).Info("starting HTTP server", observability.Int("port", s.config.Port))

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.FromContext(ctx).Info("shutting down HTTP server")

	if s.srv == nil {
		return nil
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
