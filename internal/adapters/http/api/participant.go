package api

import "net/http"

// ParticipantHandler exposes the participant selector.
type ParticipantHandler struct {
	deps Dependencies
}

// NewParticipantHandler creates a new participant handler.
func NewParticipantHandler(deps Dependencies) *ParticipantHandler {
	return &ParticipantHandler{deps: deps}
}

type participantResponse struct {
	ParticipantID int `json:"participant_id"`
}

// HandleGet handles GET /participant.
func (h *ParticipantHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, participantResponse{ParticipantID: h.deps.Participant()})
}

// HandleIncrement handles POST /participant/increment.
func (h *ParticipantHandler) HandleIncrement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, participantResponse{ParticipantID: h.deps.IncrementParticipant()})
}

// HandleDecrement handles POST /participant/decrement. The selector never
// goes below 1.
func (h *ParticipantHandler) HandleDecrement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, participantResponse{ParticipantID: h.deps.DecrementParticipant()})
}
