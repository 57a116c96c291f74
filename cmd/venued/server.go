// server.go - HTTP API for the venue daemon
package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"darkpool/internal/venue"
)

// Server exposes the venue over a JSON REST API.
type Server struct {
	venue   *venue.Venue
	limiter *TraderRateLimiter
	metrics *MetricsCollector
	health  *HealthChecker
	log     zerolog.Logger
}

func NewServer(v *venue.Venue, limiter *TraderRateLimiter, metrics *MetricsCollector, health *HealthChecker, log zerolog.Logger) *Server {
	return &Server{venue: v, limiter: limiter, metrics: metrics, health: health, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/commit", s.handleCommit)
	mux.HandleFunc("POST /api/commitment/cancel", s.handleCancelCommitment)
	mux.HandleFunc("POST /api/reveal", s.handleReveal)
	mux.HandleFunc("POST /api/order", s.handlePlaceOrder)
	mux.HandleFunc("POST /api/order/cancel", s.handleCancelOrder)
	mux.HandleFunc("POST /api/match", s.handleMatch)
	mux.HandleFunc("POST /api/settle", s.handleSettle)
	mux.HandleFunc("GET /api/order", s.handleGetOrder)
	mux.HandleFunc("GET /api/orders", s.handleOpenOrders)
	mux.HandleFunc("GET /api/match", s.handleGetMatch)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return mux
}

type apiResponse struct {
	Status string      `json:"status"`
	Error  string      `json:"error,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.metrics.RecordError(errorClass(err))
	s.writeJSON(w, statusFor(err), apiResponse{Status: "error", Error: err.Error()})
}

// statusFor maps venue errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, venue.ErrNotOperator),
		errors.Is(err, venue.ErrNotOwner),
		errors.Is(err, venue.ErrNotOrderOwner),
		errors.Is(err, venue.ErrOwnershipMismatch):
		return http.StatusForbidden
	case errors.Is(err, venue.ErrUnknownCommitment),
		errors.Is(err, venue.ErrUnknownOrder),
		errors.Is(err, venue.ErrUnknownMatch):
		return http.StatusNotFound
	case errors.Is(err, venue.ErrDuplicateCommitment),
		errors.Is(err, venue.ErrAlreadySettled),
		errors.Is(err, venue.ErrNullifierUsed),
		errors.Is(err, venue.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, venue.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, venue.ErrProofRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, venue.ErrProofRejected):
		return "proof_rejected"
	case errors.Is(err, venue.ErrInsufficientEscrow):
		return "insufficient_escrow"
	case errors.Is(err, venue.ErrMatchFrozen):
		return "match_frozen"
	default:
		return "request"
	}
}

func (s *Server) checkRate(w http.ResponseWriter, trader string) bool {
	if s.limiter.Allow(trader) {
		return true
	}
	s.metrics.IncrementCounter(MetricRateLimited, nil)
	s.writeJSON(w, http.StatusTooManyRequests, apiResponse{Status: "error", Error: "rate limit exceeded"})
	return false
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parseHash(s string) (venue.Hash, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return venue.ZeroHash, fmt.Errorf("invalid hash encoding: %w", err)
	}
	if len(b) != len(venue.ZeroHash) {
		return venue.ZeroHash, fmt.Errorf("invalid hash length %d", len(b))
	}
	return venue.HashFromBytes(b), nil
}

func parseSide(s string) (venue.Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return venue.Buy, nil
	case "sell":
		return venue.Sell, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

func parseKind(s string) (venue.OrderKind, error) {
	switch strings.ToLower(s) {
	case "market":
		return venue.Market, nil
	case "limit":
		return venue.Limit, nil
	case "iceberg":
		return venue.Iceberg, nil
	case "vwap":
		return venue.VWAP, nil
	case "twap":
		return venue.TWAP, nil
	default:
		return 0, fmt.Errorf("invalid order kind %q", s)
	}
}

type orderParamsReq struct {
	Asset    string `json:"asset"`
	SizeUnit string `json:"size_unit"`
	Kind     string `json:"kind"`
	Side     string `json:"side"`
	Amount   uint64 `json:"amount"`
	Price    uint64 `json:"price"`
	MinFill  uint64 `json:"min_fill"`
	Expiry   int64  `json:"expiry"`
}

func (r orderParamsReq) toParams() (venue.OrderParams, error) {
	side, err := parseSide(r.Side)
	if err != nil {
		return venue.OrderParams{}, err
	}
	kind, err := parseKind(r.Kind)
	if err != nil {
		return venue.OrderParams{}, err
	}
	return venue.OrderParams{
		Asset:    venue.AssetID(r.Asset),
		SizeUnit: venue.AssetID(r.SizeUnit),
		Kind:     kind,
		Side:     side,
		Amount:   r.Amount,
		Price:    r.Price,
		MinFill:  r.MinFill,
		Expiry:   time.Unix(r.Expiry, 0),
	}, nil
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.RecordRequest("commit", time.Since(start)) }()

	var req struct {
		Trader      string `json:"trader"`
		Commitment  string `json:"commitment"`
		EscrowAsset string `json:"escrow_asset"`
		Escrow      uint64 `json:"escrow"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if !s.checkRate(w, req.Trader) {
		return
	}
	commitment, err := parseHash(req.Commitment)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.venue.CommitOrder(venue.TraderID(req.Trader), commitment, venue.AssetID(req.EscrowAsset), req.Escrow); err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.RecordCommit()
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success"})
}

func (s *Server) handleCancelCommitment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Trader     string `json:"trader"`
		Commitment string `json:"commitment"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if !s.checkRate(w, req.Trader) {
		return
	}
	commitment, err := parseHash(req.Commitment)
	if err != nil {
		s.writeError(w, err)
		return
	}
	refund, err := s.venue.CancelCommitment(venue.TraderID(req.Trader), commitment)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: map[string]uint64{"refund": refund}})
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.RecordRequest("reveal", time.Since(start)) }()

	var req struct {
		Trader     string         `json:"trader"`
		Commitment string         `json:"commitment"`
		Nullifier  string         `json:"nullifier"`
		Proof      string         `json:"proof"`
		Params     orderParamsReq `json:"params"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if !s.checkRate(w, req.Trader) {
		return
	}
	commitment, err := parseHash(req.Commitment)
	if err != nil {
		s.writeError(w, err)
		return
	}
	nullifier, err := parseHash(req.Nullifier)
	if err != nil {
		s.writeError(w, err)
		return
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		s.writeError(w, fmt.Errorf("invalid proof encoding: %w", err))
		return
	}
	params, err := req.Params.toParams()
	if err != nil {
		s.writeError(w, err)
		return
	}

	verifyStart := time.Now()
	orderHash, err := s.venue.RevealOrder(venue.TraderID(req.Trader), commitment, proof, nullifier, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.RecordReveal(time.Since(verifyStart))
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: map[string]string{"order_hash": orderHash.Hex()}})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Trader string         `json:"trader"`
		Params orderParamsReq `json:"params"`
		Escrow uint64         `json:"escrow"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if !s.checkRate(w, req.Trader) {
		return
	}
	params, err := req.Params.toParams()
	if err != nil {
		s.writeError(w, err)
		return
	}
	orderHash, err := s.venue.PlaceOrder(venue.TraderID(req.Trader), params, req.Escrow)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.IncrementCounter(MetricOrderCount, nil)
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: map[string]string{"order_hash": orderHash.Hex()}})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Trader    string `json:"trader"`
		OrderHash string `json:"order_hash"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if !s.checkRate(w, req.Trader) {
		return
	}
	orderHash, err := parseHash(req.OrderHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	refund, err := s.venue.CancelOrder(venue.TraderID(req.Trader), orderHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: map[string]uint64{"refund": refund}})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.RecordRequest("match", time.Since(start)) }()

	var req struct {
		Operator string `json:"operator"`
		Buy      string `json:"buy"`
		Sell     string `json:"sell"`
		Amount   uint64 `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	buyHash, err := parseHash(req.Buy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sellHash, err := parseHash(req.Sell)
	if err != nil {
		s.writeError(w, err)
		return
	}
	matchID, err := s.venue.MatchOrders(venue.TraderID(req.Operator), buyHash, sellHash, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.RecordMatch(req.Amount)
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: map[string]uint64{"match_id": matchID}})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MatchID uint64 `json:"match_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.venue.Settle(req.MatchID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success"})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderHash, err := parseHash(r.URL.Query().Get("hash"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	order, ok := s.venue.Order(orderHash)
	if !ok {
		s.writeError(w, venue.ErrUnknownOrder)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: order})
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.venue.OpenOrders()
	s.metrics.SetGauge(MetricOpenOrders, float64(len(orders)), nil)
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: orders})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("invalid match id: %w", err))
		return
	}
	match, ok := s.venue.Match(id)
	if !ok {
		s.writeError(w, venue.ErrUnknownMatch)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: match})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	asset := venue.AssetID(r.URL.Query().Get("asset"))
	unit := venue.AssetID(r.URL.Query().Get("unit"))
	stats, ok := s.venue.Stats(asset, unit)
	if !ok {
		s.writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: venue.TradeStats{}})
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: stats})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.health.CheckHealth()
	resp := CreateHealthResponse(health)
	code := http.StatusOK
	if health.OverallStatus == Unhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("health encode failed")
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, apiResponse{Status: "success", Data: s.metrics.GetMetricsSummary()})
}
