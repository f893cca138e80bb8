package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	service "github.com/EdinaDepner/CadenceCoach/internal/app"
)

// SessionHandler handles session lifecycle and status requests.
type SessionHandler struct {
	deps Dependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps Dependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

type startRequest struct {
	ParticipantID int `json:"participant_id"`
}

type sessionResponse struct {
	SessionID     string `json:"session_id"`
	ParticipantID int    `json:"participant_id"`
	StartedAt     string `json:"started_at"`
}

// HandleStart handles POST /session/start. The body is optional; without a
// participant_id the current selector value is used.
func (h *SessionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.session_start"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	sess, err := h.deps.StartSession(r.Context(), req.ParticipantID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidParticipant):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, service.ErrSessionActive):
		writeError(w, http.StatusConflict, "session_active", WrapKind(op, ErrConflict, err))
		return
	default:
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:     sess.ID,
		ParticipantID: sess.ParticipantID,
		StartedAt:     sess.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// HandleStop handles POST /session/stop.
func (h *SessionHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	const op = "api.session_stop"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	err := h.deps.StopSession(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ackResponse{Status: "stopped"})
	case errors.Is(err, service.ErrNoSession):
		writeError(w, http.StatusConflict, "no_session", WrapKind(op, ErrConflict, err))
	default:
		// The session did stop; only the activity log close failed.
		writeError(w, http.StatusInternalServerError, "log_close_failed", err)
	}
}

// HandleStatus handles GET /status.
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Status())
}
