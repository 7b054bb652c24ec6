package web

import (
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string            `json:"error"`
	Code  domain.RejectCode `json:"code,omitempty"`
}

type sessionRequest struct {
	Owner   common.Address `json:"owner"`
	Account common.Address `json:"account"`
}

type draftResponse struct {
	Generation uint64 `json:"generation"`
}

func (s *Server) handleBalances(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Balances == nil {
		s.unavailable(w, "balances")
		return
	}
	b, ok := s.deps.Balances.Read()
	if !ok {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "balances not loaded yet"})
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

// handleLastSnapshot serves the last persisted balances of an owner, also
// available before the first chain read after a restart.
func (s *Server) handleLastSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		s.unavailable(w, "snapshot store")
		return
	}
	snap, ok := s.deps.Snapshots.Latest(r.PathValue("owner"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no snapshot for owner"})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Markets == nil {
		s.unavailable(w, "markets")
		return
	}
	markets := s.deps.Markets.Markets()
	if markets == nil {
		markets = domain.Markets{}
	}
	s.writeJSON(w, http.StatusOK, markets)
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Valuations == nil {
		s.unavailable(w, "positions")
		return
	}
	vs, _ := s.deps.Valuations.Read()
	s.writeJSON(w, http.StatusOK, vs.List())
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if s.deps.Router == nil {
		s.unavailable(w, "router")
		return
	}
	intent, ok := s.decodeIntent(w, r)
	if !ok {
		return
	}
	q, err := s.deps.Router.Quote(r.Context(), intent)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, q)
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	if s.deps.Router == nil {
		s.unavailable(w, "router")
		return
	}
	intent, ok := s.decodeIntent(w, r)
	if !ok {
		return
	}
	prepared, err := s.deps.Router.Prepare(r.Context(), intent)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, prepared)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Router == nil {
		s.unavailable(w, "router")
		return
	}
	intent, ok := s.decodeIntent(w, r)
	if !ok {
		return
	}
	sub, err := s.deps.Router.Submit(r.Context(), intent)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, sub)
}

func (s *Server) handleSubmissions(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Submissions == nil {
		s.unavailable(w, "submissions")
		return
	}
	list := s.deps.Submissions.List()
	if list == nil {
		list = []domain.Submission{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	if s.deps.Submissions == nil {
		s.unavailable(w, "submissions")
		return
	}
	sub, ok := s.deps.Submissions.Get(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "submission not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	if s.deps.Drafts == nil {
		s.unavailable(w, "drafts")
		return
	}
	var intent domain.OrderIntent
	if !s.decode(w, r, &intent) {
		return
	}
	s.writeJSON(w, http.StatusAccepted, draftResponse{Generation: s.deps.Drafts.Submit(intent)})
}

func (s *Server) handleGetDraft(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Drafts == nil {
		s.unavailable(w, "drafts")
		return
	}
	res, ok := s.deps.Drafts.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sessions == nil {
		s.unavailable(w, "sessions")
		return
	}
	sess, ok := s.deps.Sessions.Current()
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: domain.ErrNoSession.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePostSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		s.unavailable(w, "sessions")
		return
	}
	var req sessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess, err := s.deps.Sessions.Establish(req.Owner, req.Account)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sessions == nil {
		s.unavailable(w, "sessions")
		return
	}
	s.deps.Sessions.End()
	w.WriteHeader(http.StatusNoContent)
}

// decodeIntent decodes and validates an order intent.
func (s *Server) decodeIntent(w http.ResponseWriter, r *http.Request) (domain.OrderIntent, bool) {
	var intent domain.OrderIntent
	if !s.decode(w, r, &intent) {
		return domain.OrderIntent{}, false
	}
	if err := intent.Validate(); err != nil {
		s.writeError(w, err)
		return domain.OrderIntent{}, false
	}
	return intent, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// writeError maps routing errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var rejection *domain.RejectionError
	switch {
	case errors.As(err, &rejection):
		s.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: rejection.Code})
	case errors.Is(err, domain.ErrUnknownMarket):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: domain.RejectPairUnsupported})
	case errors.Is(err, domain.ErrNoSession):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrPreparationFailed):
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func (s *Server) unavailable(w http.ResponseWriter, what string) {
	s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: what + " not available"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}
