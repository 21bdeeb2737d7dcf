package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/justestif/go-dual-gravity/internal/engine"
	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/metrics"
)

// Stages runs the selection stages.
type Stages interface {
	Init(ctx context.Context, req engine.InitRequest) (*engine.InitResponse, error)
	Candidates(ctx context.Context, req engine.CandidatesRequest) (*engine.CandidatesResponse, error)
	Score(ctx context.Context, req engine.ScoreRequest) (*engine.ScoreResponse, error)
	Run(ctx context.Context, req engine.InitRequest, progress engine.ProgressFunc) (*engine.RunResponse, error)
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// Handlers contains HTTP handlers for the selection API.
type Handlers struct {
	stages   Stages
	validate *validator.Validate
	maxBody  int64
	checks   []healthCheck
}

type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

const healthTimeout = 2 * time.Second

// NewHandlers creates a new Handlers instance.
func NewHandlers(stages Stages, maxBody int64) *Handlers {
	if maxBody <= 0 {
		maxBody = DefaultServerConfig().MaxBodyBytes
	}
	return &Handlers{
		stages:   stages,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		maxBody:  maxBody,
	}
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	failed := make(map[string]string)
	for _, c := range h.checks {
		if err := c.check(ctx); err != nil {
			failed[c.name] = err.Error()
		}
	}
	if len(failed) > 0 {
		logging.Warn().Interface("failed", failed).Msg("web: health check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Init runs stage 1 (POST /v1/dgs/init).
func (h *Handlers) Init(w http.ResponseWriter, r *http.Request) {
	var req engine.InitRequest
	if !h.decode(w, r, &req) {
		return
	}
	start := time.Now()
	resp, err := h.stages.Init(r.Context(), req)
	metrics.ObserveStage(engine.StageInit, time.Since(start), err)
	if err != nil {
		respondStageError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Candidates runs stage 2 for one chunk (POST /v1/dgs/candidates).
func (h *Handlers) Candidates(w http.ResponseWriter, r *http.Request) {
	var req engine.CandidatesRequest
	if !h.decode(w, r, &req) {
		return
	}
	start := time.Now()
	resp, err := h.stages.Candidates(r.Context(), req)
	metrics.ObserveStage(engine.StageCandidates, time.Since(start), err)
	if err != nil {
		respondStageError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Score runs stage 3 (POST /v1/dgs/score).
func (h *Handlers) Score(w http.ResponseWriter, r *http.Request) {
	var req engine.ScoreRequest
	if !h.decode(w, r, &req) {
		return
	}
	start := time.Now()
	resp, err := h.stages.Score(r.Context(), req)
	metrics.ObserveStage(engine.StageScore, time.Since(start), err)
	if err != nil {
		respondStageError(w, r, err)
		return
	}
	metrics.ObserveSelection(string(resp.Debug.Strategy), string(resp.Debug.Phase))
	respondJSON(w, http.StatusOK, resp)
}

// Select runs all three stages in process (POST /v1/dgs/select).
func (h *Handlers) Select(w http.ResponseWriter, r *http.Request) {
	var req engine.InitRequest
	if !h.decode(w, r, &req) {
		return
	}
	requestID := middleware.GetReqID(r.Context())
	start := time.Now()
	resp, err := h.stages.Run(r.Context(), req, func(stage string, percent int) {
		logging.Debug().Str("request_id", requestID).Str("stage", stage).Int("percent", percent).Msg("web: select progress")
	})
	metrics.ObserveStage("select", time.Since(start), err)
	if err != nil {
		respondStageError(w, r, err)
		return
	}
	metrics.ObserveSelection(string(resp.Score.Debug.Strategy), string(resp.Score.Debug.Phase))
	respondJSON(w, http.StatusOK, resp)
}

// decode reads and validates a JSON body into v. It writes the 400 response
// itself and reports whether the handler should continue.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(fields, "; ")
}

// respondStageError maps engine failures to status codes: malformed stage
// input is 400, a timeout is 504 and anything else from a collaborator 502.
func respondStageError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	var se *engine.StageError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &se) && se.Err == nil:
		status = http.StatusBadRequest
	}

	logging.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).
		Int("status", status).Msg("web: stage failed")
	respondError(w, status, err.Error())
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("web: failed to marshal JSON response")
		status = http.StatusInternalServerError
		// errorResponse holds a single string and always encodes.
		data, _ = json.Marshal(errorResponse{Error: "encoding response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("web: failed to write JSON response")
	}
}
