package api

import (
	"net/http"
	"time"
)

// StatsProvider reports service counters.
type StatsProvider interface {
	Stats() map[string]any
}

// clientCounter is implemented by live transports that track connections.
type clientCounter interface {
	Clients() int
}

// StatsHandler serves GET /stats: the service counters plus process uptime
// and, when the live transport reports it, the number of live clients.
type StatsHandler struct {
	provider StatsProvider
	live     clientCounter
	started  time.Time
	now      func() time.Time
}

// NewStatsHandler creates a stats handler. live may be nil.
func NewStatsHandler(provider StatsProvider, live http.Handler) *StatsHandler {
	h := &StatsHandler{provider: provider, started: time.Now(), now: time.Now}
	if c, ok := live.(clientCounter); ok {
		h.live = c
	}
	return h
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	src := h.provider.Stats()
	out := make(map[string]any, len(src)+2)
	for k, v := range src {
		out[k] = v
	}
	out["uptimeSec"] = int64(h.now().Sub(h.started) / time.Second)
	if h.live != nil {
		out["liveClients"] = h.live.Clients()
	}
	writeJSON(w, http.StatusOK, out)
}
