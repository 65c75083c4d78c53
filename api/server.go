// Package api serves the ledger service over HTTP with JSON bodies
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shruggr/rewardledger/service"
)

// Server represents the HTTP API server
type Server struct {
	service *service.Service
	logger  *slog.Logger
	mux     *http.ServeMux
	http    *http.Server
}

// NewServer creates a new API server listening on addr
func NewServer(svc *service.Service, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		service: svc,
		logger:  logger.With("component", "api"),
		mux:     http.NewServeMux(),
	}
	s.setupRoutes()

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP endpoints
func (s *Server) setupRoutes() {
	// Queries
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/chain", s.handleChain)
	s.mux.HandleFunc("GET /api/blocks/{hash}", s.handleBlock)
	s.mux.HandleFunc("GET /api/balance/{address}", s.handleBalance)
	s.mux.HandleFunc("GET /api/utxos/{address}", s.handleUTXOs)
	s.mux.HandleFunc("GET /api/mempool", s.handleMempool)
	s.mux.HandleFunc("GET /api/transactions/{txid}", s.handleTransaction)
	s.mux.HandleFunc("GET /api/proof/{txid}", s.handleProof)
	s.mux.HandleFunc("GET /api/validate", s.handleValidate)

	// Wallets and transactions
	s.mux.HandleFunc("POST /api/wallets", s.handleIssueWallet)
	s.mux.HandleFunc("POST /api/transactions/build", s.handleBuild)
	s.mux.HandleFunc("POST /api/transactions", s.handleSubmit)

	// Block production
	s.mux.HandleFunc("POST /api/mine", s.handleMine)
	s.mux.HandleFunc("POST /api/transfer", s.handleTransfer)
}

// Handler returns the route multiplexer
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("HTTP API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
