package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/evalmesh/pipeline/internal/domain"
)

// Submitter is the subset of handler.GatewaySubmitter the HTTP layer
// depends on, kept as an interface so tests can fake it.
type Submitter interface {
	Submit(ctx domain.Context, req domain.GatewayRequest) (string, error)
}

// Server aggregates the submission API's dependencies.
type Server struct {
	Submitter Submitter
	States    domain.StateRepository
	Healthy   func(ctx domain.Context) bool
}

// NewServer builds a Server with all handlers wired.
func NewServer(submitter Submitter, states domain.StateRepository, healthy func(domain.Context) bool) *Server {
	return &Server{Submitter: submitter, States: states, Healthy: healthy}
}

type submitRequest struct {
	Prompt      string             `json:"prompt" validate:"required"`
	TargetModel domain.TargetModel `json:"target_model" validate:"required"`
	JudgeModel  domain.JudgeModel  `json:"judge_model" validate:"required"`
	APIKey      string             `json:"api_key"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

var validate = validator.New()

// SubmitHandler implements POST /submit (spec.md §6.1).
func (s *Server) SubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
			return
		}

		requestID, err := s.Submitter.Submit(r.Context(), domain.GatewayRequest{
			Prompt:      req.Prompt,
			TargetModel: req.TargetModel,
			JudgeModel:  req.JudgeModel,
			APIKey:      req.APIKey,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, submitResponse{RequestID: requestID, Status: "Accepted"})
	}
}

// MetadataHandler implements GET /metadata/{request_id} (spec.md §6.1).
func (s *Server) MetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := chi.URLParam(r, "request_id")
		rec, err := s.States.Get(r.Context(), requestID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

// HealthHandler implements GET /health (spec.md §6.1, §7).
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Healthy != nil && !s.Healthy(r.Context()) {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
	}
}
