package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	service "github.com/EdinaDepner/CadenceCoach/internal/app"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
)

// StepsHandler accepts step events over HTTP.
type StepsHandler struct {
	deps Dependencies
}

// NewStepsHandler creates a new steps handler.
func NewStepsHandler(deps Dependencies) *StepsHandler {
	return &StepsHandler{deps: deps}
}

// stepRequest is the optional body of POST /steps.
type stepRequest struct {
	EventID     string `json:"event_id"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// HandlePostStep handles POST /steps requests.
func (h *StepsHandler) HandlePostStep(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_step"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.TimestampMS < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("timestamp_ms must not be negative")))
		return
	}

	err := h.deps.SubmitStep(r.Context(), model.StepEvent{
		EventID:     req.EventID,
		Source:      "http",
		ReceivedAt:  time.Now(),
		TimestampMS: req.TimestampMS,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
	case errors.Is(err, service.ErrDuplicate):
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, nil))
	default:
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	}
}
