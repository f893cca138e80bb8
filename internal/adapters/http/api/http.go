// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	service "github.com/EdinaDepner/CadenceCoach/internal/app"
	"github.com/EdinaDepner/CadenceCoach/internal/domain/model"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StartSession(ctx context.Context, participantID int) (model.Session, error)
	StopSession(ctx context.Context) error
	Status() service.Snapshot
	SubmitStep(ctx context.Context, ev model.StepEvent) error

	Participant() int
	IncrementParticipant() int
	DecrementParticipant() int

	StatsProvider
}

// Server wires HTTP routes for the coaching API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	sessionHandler     *SessionHandler
	stepsHandler       *StepsHandler
	participantHandler *ParticipantHandler
	live               http.Handler
	log                logger.Logger
	tracer             trace.Tracer
}

const tracerName = "github.com/EdinaDepner/CadenceCoach/internal/adapters/http/api"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access logger. The default discards.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTracerProvider sets the provider request spans are recorded with. The
// default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewServer creates a new API server with all handlers. live serves /ws and
// may be nil.
func NewServer(deps Dependencies, live http.Handler, opts ...Option) *Server {
	s := &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps, live),
		sessionHandler:     NewSessionHandler(deps),
		stepsHandler:       NewStepsHandler(deps),
		participantHandler: NewParticipantHandler(deps),
		live:               live,
		log:                logger.Nop(),
		tracer:             otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.instrument("healthz", s.healthHandler.HandleHealth))
	mux.HandleFunc("/stats", s.instrument("stats", s.statsHandler.HandleStats))
	mux.HandleFunc("/status", s.instrument("status", s.sessionHandler.HandleStatus))
	mux.HandleFunc("/session/start", s.instrument("session_start", s.sessionHandler.HandleStart))
	mux.HandleFunc("/session/stop", s.instrument("session_stop", s.sessionHandler.HandleStop))
	mux.HandleFunc("/steps", s.instrument("steps", s.stepsHandler.HandlePostStep))
	mux.HandleFunc("/participant", s.instrument("participant", s.participantHandler.HandleGet))
	mux.HandleFunc("/participant/increment", s.instrument("participant_increment", s.participantHandler.HandleIncrement))
	mux.HandleFunc("/participant/decrement", s.instrument("participant_decrement", s.participantHandler.HandleDecrement))
	if s.live != nil {
		mux.Handle("/ws", s.live)
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
