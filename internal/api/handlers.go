package api

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/coinscan/internal/adapter"
	"github.com/coinscan/internal/errors"
	"github.com/coinscan/internal/types"
	"github.com/gorilla/mux"
)

// analyzeRequest optionally carries the wallet's balances. When omitted, the
// server fetches balances from the configured provider.
type analyzeRequest struct {
	Balances []types.TokenBalance `json:"balances,omitempty"`
}

// handleAnalyzeWallet runs the full analysis pipeline for one wallet
func (s *Server) handleAnalyzeWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !adapter.ValidAddress(address) {
		respondCategorized(w, errors.NewInvalidAddressError(address))
		return
	}

	var req analyzeRequest
	if err := parseJSONBody(r, &req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON", nil)
		return
	}

	timeout := s.config.AnalyzeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	balances := req.Balances
	if balances == nil {
		fetched, err := s.balances.TokenBalances(ctx, address)
		if err != nil {
			respondCategorized(w, errors.NewProviderError("balances", err))
			return
		}
		balances = fetched
	}

	analytics, err := s.analyzer.AnalyzeWallet(ctx, address, balances, s.history)
	if err != nil {
		// A batch-level failure still yields a diagnostic-bearing result;
		// surface that body alongside the error status when present.
		if analytics != nil {
			respondJSON(w, errors.GetHTTPStatusCode(err), analytics)
			return
		}
		respondCategorized(w, err)
		return
	}

	if s.snapshots != nil {
		if err := s.snapshots.Create(ctx, analytics); err != nil {
			log.Printf("[API] Failed to persist snapshot for %s: %v", analytics.Wallet, err)
		}
	}

	respondJSON(w, http.StatusOK, analytics)
}

// handleGetSnapshots returns the stored analysis snapshots for a wallet
func (s *Server) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !adapter.ValidAddress(address) {
		respondCategorized(w, errors.NewInvalidAddressError(address))
		return
	}
	if s.snapshots == nil {
		respondError(w, http.StatusNotImplemented, "SNAPSHOTS_DISABLED", "snapshot persistence is not configured", nil)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			respondCategorized(w, errors.NewInvalidParameterError("limit", "must be an integer between 1 and 200"))
			return
		}
		limit = parsed
	}

	snapshots, err := s.snapshots.ListByWallet(r.Context(), adapter.NormalizeAddress(address), limit)
	if err != nil {
		respondCategorized(w, errors.NewInternalError("failed to load snapshots", err))
		return
	}
	if snapshots == nil {
		snapshots = []*types.PortfolioAnalytics{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":    adapter.NormalizeAddress(address),
		"count":     len(snapshots),
		"snapshots": snapshots,
	})
}
