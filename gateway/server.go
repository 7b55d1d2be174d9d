// Package gateway exposes the escrow engine boundary over HTTP: every
// mutating operation, the unit/contract read accessors and the recent event
// feed. Caller identities arrive as explicit addresses in the payload;
// signature verification sits outside this service.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escrowd/core/events"
	"escrowd/core/types"
	"escrowd/native/escrow"
	"escrowd/observability"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Server is the HTTP front-end for escrow interactions.
type Server struct {
	engine   *escrow.Engine
	recorder *events.Recorder
	logger   *slog.Logger
	metrics  *observability.EscrowMetrics
	router   chi.Router
}

// NewServer creates a gateway server around an initialized engine. The
// recorder may be nil when no event history endpoint is wanted.
func NewServer(engine *escrow.Engine, recorder *events.Recorder, logger *slog.Logger) *Server {
	if engine == nil {
		panic("escrow engine required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:   engine,
		recorder: recorder,
		logger:   logger,
		metrics:  observability.Escrow(),
	}
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/escrow", func(r chi.Router) {
		r.Post("/deposit", s.instrument("deposit", s.handleDeposit))
		r.Post("/submit", s.instrument("submit", s.handleSubmit))
		r.Post("/approve", s.instrument("approve", s.handleApprove))
		r.Post("/refill", s.instrument("refill", s.handleRefill))
		r.Post("/return/request", s.instrument("request_return", s.handleRequestReturn))
		r.Post("/return/cancel", s.instrument("cancel_return", s.handleCancelReturn))
		r.Post("/return/approve", s.instrument("approve_return", s.handleApproveReturn))
		r.Post("/dispute/create", s.instrument("create_dispute", s.handleCreateDispute))
		r.Post("/dispute/resolve", s.instrument("resolve_dispute", s.handleResolveDispute))
		r.Post("/withdraw", s.instrument("withdraw", s.handleWithdraw))
		r.Post("/claim", s.instrument("claim", s.handleClaim))
		r.Post("/claim-all", s.instrument("claim_all", s.handleClaimAll))

		r.Get("/counter", s.instrument("counter", s.handleCounter))
		r.Get("/events", s.instrument("events", s.handleEvents))
		r.Get("/contracts/{id}", s.instrument("get_contract", s.handleGetContract))
		r.Get("/contracts/{id}/units", s.instrument("unit_count", s.handleUnitCount))
		r.Get("/contracts/{id}/units/{index}", s.instrument("get_unit", s.handleGetUnit))
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(recorder, r)
		elapsed := time.Since(start)
		outcome := "ok"
		if recorder.status >= http.StatusBadRequest {
			outcome = "error"
		}
		s.metrics.Observe(operation, outcome, strconv.Itoa(recorder.status), elapsed)
		s.logger.Info("handled escrow request",
			"requestId", requestID,
			"operation", operation,
			"status", recorder.status,
			"durationMs", elapsed.Milliseconds(),
		)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	depositReq := escrow.DepositRequest{
		ContractID:     req.ContractID,
		Shape:          req.Shape,
		Token:          req.Token,
		Amount:         req.Amount.BigInt(),
		ContractorData: [32]byte(req.ContractorData),
		FeeConfig:      req.FeeConfig,
	}
	if req.Contractor != nil {
		depositReq.Contractor = [20]byte(*req.Contractor)
	}
	ref, err := s.engine.Deposit([20]byte(req.Caller), depositReq)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, unitRefResponse{ContractID: ref.ContractID, UnitIndex: ref.UnitIndex})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}
	ref := escrow.UnitRef{ContractID: req.ContractID, UnitIndex: req.UnitIndex}
	if err := s.engine.Submit([20]byte(req.Caller), ref, req.Data, [32]byte(req.Salt)); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !s.decode(w, r, &req) {
		return
	}
	ref := escrow.UnitRef{ContractID: req.ContractID, UnitIndex: req.UnitIndex}
	err := s.engine.Approve([20]byte(req.Caller), ref, req.AmountApprove.BigInt(), req.AmountAdditional.BigInt(), [20]byte(req.Receiver))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *Server) handleRefill(w http.ResponseWriter, r *http.Request) {
	var req refillRequest
	if !s.decode(w, r, &req) {
		return
	}
	ref := escrow.UnitRef{ContractID: req.ContractID, UnitIndex: req.UnitIndex}
	if err := s.engine.Refill([20]byte(req.Caller), ref, req.Amount.BigInt()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *Server) handleRequestReturn(w http.ResponseWriter, r *http.Request) {
	s.handleUnitOp(w, r, s.engine.RequestReturn)
}

func (s *Server) handleApproveReturn(w http.ResponseWriter, r *http.Request) {
	s.handleUnitOp(w, r, s.engine.ApproveReturn)
}

func (s *Server) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	s.handleUnitOp(w, r, s.engine.CreateDispute)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleUnitOp(w, r, s.engine.Withdraw)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.handleUnitOp(w, r, s.engine.Claim)
}

func (s *Server) handleUnitOp(w http.ResponseWriter, r *http.Request, op func([20]byte, escrow.UnitRef) error) {
	var req unitOpRequest
	if !s.decode(w, r, &req) {
		return
	}
	ref := escrow.UnitRef{ContractID: req.ContractID, UnitIndex: req.UnitIndex}
	if err := op([20]byte(req.Caller), ref); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *Server) handleCancelReturn(w http.ResponseWriter, r *http.Request) {
	var req cancelReturnRequest
	if !s.decode(w, r, &req) {
		return
	}
	ref := escrow.UnitRef{ContractID: req.ContractID, UnitIndex: req.UnitIndex}
	if err := s.engine.CancelReturn([20]byte(req.Caller), ref, req.RestoreStatus); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req resolveDisputeRequest
	if !s.decode(w, r, &req) {
		return
	}
	ref := escrow.UnitRef{ContractID: req.ContractID, UnitIndex: req.UnitIndex}
	err := s.engine.ResolveDispute([20]byte(req.Caller), ref, req.Winner, req.ClientAmount.BigInt(), req.ContractorAmount.BigInt())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeOK(w)
}

func (s *Server) handleClaimAll(w http.ResponseWriter, r *http.Request) {
	var req claimAllRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.engine.ClaimAll([20]byte(req.Caller), req.ContractID, req.StartUnit, req.EndUnit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"contractId":     result.ContractID,
		"startUnit":      result.StartUnit,
		"endUnit":        result.EndUnit,
		"unitsClaimed":   result.UnitsClaimed,
		"totalClaimed":   result.TotalClaimed.String(),
		"totalFee":       result.TotalFee.String(),
		"totalClientFee": result.TotalClientFee.String(),
	})
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUint(w, r, "id")
	if !ok {
		return
	}
	contract, err := s.engine.Contract(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newContractResponse(contract))
}

func (s *Server) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUint(w, r, "id")
	if !ok {
		return
	}
	index, ok := s.pathUint(w, r, "index")
	if !ok {
		return
	}
	unit, err := s.engine.Unit(escrow.UnitRef{ContractID: id, UnitIndex: index})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newUnitResponse(unit))
}

func (s *Server) handleUnitCount(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUint(w, r, "id")
	if !ok {
		return
	}
	count, err := s.engine.UnitCount(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"contractId": id, "unitCount": count})
}

func (s *Server) handleCounter(w http.ResponseWriter, _ *http.Request) {
	counter, err := s.engine.CurrentContractID()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"contractId": counter})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		s.writeError(w, http.StatusNotFound, errors.New("event history disabled"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = parsed
	}
	recent := s.recorder.Recent(limit)
	out := make([]any, 0, len(recent))
	for _, evt := range recent {
		if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
			out = append(out, carrier.Event())
			continue
		}
		out = append(out, map[string]string{"type": evt.EventType()})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) pathUint(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	raw := chi.URLParam(r, name)
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid "+name))
		return 0, false
	}
	return parsed, true
}

func (s *Server) writeOK(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
