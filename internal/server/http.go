package server

import (
	"encoding/json"
	"net/http"
)

// Health is the body of the health endpoint.
type Health struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
}

// handleHealth answers 200 while the bridge connection is up and 503
// otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h := Health{Status: "ok", Connected: s.sim.IsConnected()}
	code := http.StatusOK
	if h.Connected {
		h.Running = s.sim.IsRunning()
	} else {
		h.Status = "disconnected"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(h)
}
