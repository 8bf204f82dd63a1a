// Package server is the thin HTTP/JSON read surface and submit boundary
// (spec.md §6). Grounded on the teacher's cmd/explorer/server.go
// (gorilla/mux routes thinly wrapping store reads, no business logic in
// the handler layer) generalized from gorilla/mux to go-chi, since go-chi
// is the router the rest of the example pack's API-surfaces standardize
// on and the teacher's own mux usage is confined to one legacy explorer
// binary this node does not carry forward.
package server

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"mvmnode/core"
)

// Server is the node's read/submit HTTP surface.
type Server struct {
	router  chi.Router
	store   *core.Store
	engine  *core.Engine
	mvm     *core.MVM
	tokens  *core.TokenLedger
	star    *core.StarTransport
	log     *logrus.Entry
	faucetAmount   uint64
	faucetCooldown int64
}

// New builds the router. star may be nil when the node runs in mesh mode;
// the websocket route is simply omitted in that case.
func New(store *core.Store, engine *core.Engine, mvm *core.MVM, tokens *core.TokenLedger, star *core.StarTransport, faucetAmount uint64, faucetCooldownSeconds int64) *Server {
	s := &Server{
		store:          store,
		engine:         engine,
		mvm:            mvm,
		tokens:         tokens,
		star:           star,
		log:            logrus.WithField("component", "server"),
		faucetAmount:   faucetAmount,
		faucetCooldown: faucetCooldownSeconds,
	}
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/block/{height}", s.handleBlockByHeight)
	r.Get("/block/hash/{hash}", s.handleBlockByHash)
	r.Get("/tx/{hash}", s.handleTx)
	r.Get("/address/{addr}", s.handleAddress)
	r.Get("/token/{addr}", s.handleToken)
	r.Get("/token/{addr}/holders", s.handleTokenHolders)
	r.Get("/contract/{addr}", s.handleContract)
	r.Post("/contract/{addr}/view/{method}", s.handleViewCall)
	r.Post("/tx", s.handleSubmit)
	r.Post("/faucet/claim", s.handleFaucetClaim)
	if star != nil {
		r.Get("/ws", star.ServeWS)
	}
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	height, err := s.store.GetHeight()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "height": height})
}

func (s *Server) handleBlockByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := parseUint(chi.URLParam(r, "height"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid height")
		return
	}
	b, ok, err := s.store.GetBlockByHeight(height)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	b, ok, err := s.store.GetBlockByHash(chi.URLParam(r, "hash"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	tx, ok, err := s.store.GetTransaction(chi.URLParam(r, "hash"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	balance, err := s.store.GetBalance(addr)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	nonce, err := s.store.GetNonce(addr)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	txs, err := s.store.GetTransactionsByAddress(addr, 50)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr, "balance": balance, "nonce": nonce, "transactions": txs,
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	t, ok, err := s.store.GetToken(addr)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "token not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTokenHolders(w http.ResponseWriter, r *http.Request) {
	holders, err := s.tokens.Holders(chi.URLParam(r, "addr"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, holders)
}

func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	c, ok, err := s.store.GetContract(chi.URLParam(r, "addr"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "contract not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleViewCall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Args []string `json:"args"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	res, err := s.mvm.ViewCall(chi.URLParam(r, "addr"), chi.URLParam(r, "method"), req.Args)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req core.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed submit request")
		return
	}
	valueScaled := req.Value * core.DisplayScale
	hash := core.HashTxData(string(req.Kind), req.From, req.To, valueScaled, req.Nonce, req.Data)
	tx := &core.Transaction{
		Hash:      hashHex(hash),
		Kind:      req.Kind,
		From:      req.From,
		To:        req.To,
		Value:     valueScaled,
		GasPrice:  req.GasPrice,
		GasLimit:  req.GasLimit,
		Nonce:     req.Nonce,
		Data:      req.Data,
		Timestamp: time.Now().Unix(),
		Signature: req.Signature,
		PublicKey: req.PublicKey,
		Status:    core.StatusFailed,
	}
	switch s.engine.Submit(tx) {
	case core.AddAccepted:
		writeJSON(w, http.StatusAccepted, map[string]string{"hash": tx.Hash})
	case core.AddDuplicate:
		writeErr(w, http.StatusConflict, "transaction already pending")
	case core.AddNoncePending:
		writeErr(w, http.StatusConflict, "a transaction at this nonce is already pending")
	}
}

func (s *Server) handleFaucetClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed faucet request")
		return
	}
	if !core.AddressIsValid(req.Address) {
		writeErr(w, http.StatusBadRequest, "invalid address")
		return
	}
	now := time.Now().Unix()
	last, ok, err := s.store.GetFaucetClaim(req.Address)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ok && now-last < s.faucetCooldown {
		writeErr(w, http.StatusTooManyRequests, "faucet claim cooldown still active")
		return
	}
	balance, err := s.store.GetBalance(req.Address)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.SetBalance(req.Address, balance+s.faucetAmount); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.SetFaucetClaim(req.Address, now); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"credited": s.faucetAmount})
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func hashHex(b []byte) string { return hex.EncodeToString(b) }
