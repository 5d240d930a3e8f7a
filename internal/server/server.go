// Package server assembles the HTTP and WebSocket API over the engine and
// token services.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openpredict/predictiondao/internal/domain"
	"github.com/openpredict/predictiondao/internal/server/handler"
	"github.com/openpredict/predictiondao/internal/server/middleware"
	"github.com/openpredict/predictiondao/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port             int
	CORSOrigins      []string
	RateLimitPerMin  int
	RequireSignature bool
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Proposals *handler.ProposalHandler
	Token     *handler.TokenHandler
	Admin     *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be nil
// to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/bets", handlers.Markets.PlaceBet)
	mux.HandleFunc("GET /api/markets/{id}/bets/{address}", handlers.Markets.GetBet)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)
	mux.HandleFunc("GET /api/markets/{id}/resolver", handlers.Markets.GetResolverStatus)
	mux.HandleFunc("POST /api/markets/{id}/finalize", handlers.Markets.FinalizeResolve)
	mux.HandleFunc("POST /api/markets/{id}/withdraw", handlers.Markets.WithdrawWinnings)
	mux.HandleFunc("GET /api/markets/{id}/events", handlers.Markets.ListMarketEvents)
	mux.HandleFunc("GET /api/events/recent", handlers.Markets.ListRecentEvents)

	// Dispute governance.
	mux.HandleFunc("POST /api/markets/{id}/disputes", handlers.Proposals.CreateDispute)
	mux.HandleFunc("GET /api/markets/{id}/proposals", handlers.Proposals.ListProposals)
	mux.HandleFunc("GET /api/proposals/{id}", handlers.Proposals.GetProposal)
	mux.HandleFunc("POST /api/proposals/{id}/votes", handlers.Proposals.Vote)
	mux.HandleFunc("POST /api/proposals/{id}/execute", handlers.Proposals.ExecuteProposal)
	mux.HandleFunc("GET /api/proposals/{id}/power/{address}", handlers.Proposals.GetUsedPower)

	// Governance token and exchange.
	mux.HandleFunc("GET /api/token", handlers.Token.GetTokenInfo)
	mux.HandleFunc("POST /api/token/buy", handlers.Token.BuyTokens)
	mux.HandleFunc("POST /api/token/sell", handlers.Token.SellTokens)
	mux.HandleFunc("POST /api/token/transfer", handlers.Token.Transfer)
	mux.HandleFunc("POST /api/token/approve", handlers.Token.Approve)
	mux.HandleFunc("POST /api/token/delegate", handlers.Token.Delegate)
	mux.HandleFunc("GET /api/token/balances/{address}", handlers.Token.GetBalance)
	mux.HandleFunc("GET /api/token/votes/{address}", handlers.Token.GetVotes)
	mux.HandleFunc("GET /api/token/allowance", handlers.Token.GetAllowance)

	// Vault and administration.
	mux.HandleFunc("POST /api/bank/deposit", handlers.Admin.CreditAccount)
	mux.HandleFunc("GET /api/vault", handlers.Admin.GetVault)
	mux.HandleFunc("POST /api/vault/deposit", handlers.Admin.DepositVault)
	mux.HandleFunc("POST /api/vault/withdraw", handlers.Admin.WithdrawVault)
	mux.HandleFunc("POST /api/admin/executors", handlers.Admin.AddExecutor)
	mux.HandleFunc("DELETE /api/admin/executors/{address}", handlers.Admin.RemoveExecutor)
	mux.HandleFunc("PUT /api/admin/payout-params", handlers.Admin.SetPayoutParams)
	mux.HandleFunc("PUT /api/admin/token/rate", handlers.Admin.SetTokenRate)
	mux.HandleFunc("PUT /api/admin/token/fees", handlers.Admin.SetTokenFees)
	mux.HandleFunc("PUT /api/admin/token/limits", handlers.Admin.SetTokenLimits)
	mux.HandleFunc("PUT /api/admin/token/fee-recipient", handlers.Admin.SetFeeRecipient)
	mux.HandleFunc("POST /api/admin/token/withdraw-ether", handlers.Admin.WithdrawEther)
	mux.HandleFunc("POST /api/admin/token/withdraw-tokens", handlers.Admin.WithdrawTokens)

	// WebSocket event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.RequireSignature)(h)
	if limiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMin, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

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
