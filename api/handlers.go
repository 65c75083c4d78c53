package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/rewardledger/ledger"
	"github.com/shruggr/rewardledger/miner"
	"github.com/shruggr/rewardledger/service"
	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/wallet"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"height":       status.Height,
		"difficulty":   status.Difficulty,
		"valid":        status.Valid,
		"miningReward": status.MiningReward,
		"miner":        status.Miner,
		"pending":      status.Pending,
		"tip":          transaction.HashHex(status.TipHash),
		"utxoCommit":   status.Commitment,
	})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	chain := s.service.Chain()
	views := make([]blockView, len(chain))
	for i, b := range chain {
		views[i] = newBlockView(b)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.pathHash(w, r, "hash")
	if !ok {
		return
	}

	b, err := s.service.Block(r.Context(), hash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBlockView(b))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr := wallet.Address(r.PathValue("address"))

	confirmed, err := s.service.Balance(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pending, err := s.service.PendingBalance(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"balance": confirmed,
		"pending": pending,
	})
}

func (s *Server) handleUTXOs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.UTXOs(r.Context(), wallet.Address(r.PathValue("address")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUTXOViews(entries))
}

func (s *Server) handleMempool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newTxViews(s.service.Mempool()))
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	txid, ok := s.pathHash(w, r, "txid")
	if !ok {
		return
	}

	loc, err := s.service.Transaction(txid)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := map[string]any{
		"transaction": newTxView(loc.Transaction),
		"confirmed":   loc.Confirmed,
	}
	if loc.Confirmed {
		resp["height"] = loc.Height
		resp["blockHash"] = transaction.HashHex(loc.BlockHash)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	txid, ok := s.pathHash(w, r, "txid")
	if !ok {
		return
	}

	proof, b, err := s.service.Proof(txid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProofView(proof, b))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ValidateHistory(r.Context()); err != nil {
		if errors.Is(err, ledger.ErrChainIntegrity) {
			writeJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

type issueWalletRequest struct {
	PublicKey string `json:"publicKey"`
}

func (s *Server) handleIssueWallet(w http.ResponseWriter, r *http.Request) {
	var req issueWalletRequest
	if r.ContentLength != 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}

	kp, err := s.service.IssueWallet(req.PublicKey)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := map[string]string{
		"address":   kp.Address.String(),
		"publicKey": kp.PublicKey,
	}
	if kp.PrivateKey != "" {
		resp["privateKey"] = kp.PrivateKey
	}
	writeJSON(w, http.StatusCreated, resp)
}

type buildRequest struct {
	From    wallet.Address `json:"from"`
	Outputs []txOutView    `json:"outputs"`
	Fee     uint64         `json:"fee"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req buildRequest
	if !s.decode(w, r, &req) {
		return
	}

	unsigned, err := s.service.BuildUnsigned(r.Context(), req.From, outputs(req.Outputs), req.Fee)
	if err != nil {
		s.writeError(w, err)
		return
	}

	view := newTxView(unsigned.Transaction)
	writeJSON(w, http.StatusOK, map[string]any{
		"vin":         view.Vin,
		"vout":        view.Vout,
		"signingHash": transaction.HashHex(unsigned.SigningHash),
		"inputTotal":  unsigned.InputTotal,
		"change":      unsigned.Change,
		"fee":         unsigned.Fee,
	})
}

type submitRequest struct {
	Vin  []txInView  `json:"vin"`
	Vout []txOutView `json:"vout"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}

	vin, err := inputs(req.Vin)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	txid, err := s.service.SubmitSigned(r.Context(), vin, outputs(req.Vout))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"txid": transaction.HashHex(txid)})
}

type mineRequest struct {
	MinerAddress wallet.Address `json:"minerAddress"`
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	var req mineRequest
	if r.ContentLength != 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}

	b, err := s.service.Mine(r.Context(), req.MinerAddress)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hash":         b.HashHex(),
		"height":       b.Index,
		"transactions": len(b.Transactions),
	})
}

type transferRequest struct {
	PrivateKey string         `json:"privateKey"`
	To         wallet.Address `json:"to"`
	Amount     uint64         `json:"amount"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}

	b, tx, err := s.service.Transfer(r.Context(), req.PrivateKey, req.To, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"txid":   transaction.HashHex(tx.ID()),
		"hash":   b.HashHex(),
		"height": b.Index,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.logger.Debug("failed to decode request", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON format"})
		return false
	}
	return true
}

func (s *Server) pathHash(w http.ResponseWriter, r *http.Request, name string) (chainhash.Hash, bool) {
	hash, err := transaction.ParseHash(r.PathValue(name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return chainhash.Hash{}, false
	}
	return hash, true
}

// statusFor maps ledger and service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case ledger.IsRejection(err), errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrNoMinerConfigured):
		return http.StatusConflict
	case errors.Is(err, miner.ErrStopped), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
