// Package server is the HTTP + WebSocket API surface of the aggregator.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sincore/aggregator/internal/server/handler"
	"github.com/sincore/aggregator/internal/server/middleware"
	"github.com/sincore/aggregator/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Quotes *handler.QuoteHandler
	Trades *handler.TradeHandler
	Admin  *handler.AdminHandler
}

// Server is the aggregator's API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (auth, logging, CORS) applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Quoting and best-rate discovery.
	mux.HandleFunc("GET /api/quote", handlers.Quotes.QuoteOne)
	mux.HandleFunc("GET /api/quote/split", handlers.Quotes.QuoteSplit)
	mux.HandleFunc("GET /api/bestrate/one", handlers.Quotes.BestOne)
	mux.HandleFunc("GET /api/bestrate/split", handlers.Quotes.BestSplit)

	// Trade settlement and history.
	mux.HandleFunc("POST /api/trades", handlers.Trades.Trade)
	mux.HandleFunc("POST /api/trades/split", handlers.Trades.SplitTrade)
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
	mux.HandleFunc("GET /api/fees", handlers.Trades.ListFees)

	// Administration.
	mux.HandleFunc("POST /api/admin/routes", handlers.Admin.AddRoute)
	mux.HandleFunc("PATCH /api/admin/routes/{index}", handlers.Admin.SetRouteActive)
	mux.HandleFunc("POST /api/admin/partners", handlers.Admin.AddPartner)
	mux.HandleFunc("PUT /api/admin/partners/{index}", handlers.Admin.UpdatePartner)
	mux.HandleFunc("PUT /api/admin/loyalty", handlers.Admin.SetLoyaltyThreshold)
	mux.HandleFunc("POST /api/admin/sweep", handlers.Admin.Sweep)

	// Settlement event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins. If no origins
// are specified, all origins are allowed.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
