package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kodama/internal/config"
	"github.com/davidbz/kodama/internal/http/middleware"
)

func TestCORSMiddleware(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         60,
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("should expose the trace headers to browsers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/pricing/table", nil)
		req.Header.Set("Origin", "https://dashboard.example.com")
		rec := httptest.NewRecorder()
		middleware.CORS(cfg)(next).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Trace-Id")
		require.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Request-Id")
	})

	t.Run("should pass requests through when config is nil", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		middleware.CORS(nil)(next).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
	})
}
