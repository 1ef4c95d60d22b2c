// Package health exposes the two atomic flags named in §6 as a
// HealthState handle, plus the HTTP probe server that reads them.
package health

import (
	"net/http"
	"sync/atomic"
)

// State holds the flags read by the probe server. Ready flips true once
// content is loaded and listeners are bound; Draining flips true as soon
// as a shutdown signal is received.
type State struct {
	ready    atomic.Bool
	draining atomic.Bool
}

func NewState() *State {
	return &State{}
}

func (s *State) SetReady(ready bool)       { s.ready.Store(ready) }
func (s *State) SetDraining(draining bool) { s.draining.Store(draining) }
func (s *State) IsReady() bool             { return s.ready.Load() }
func (s *State) IsDraining() bool          { return s.draining.Load() }

// Healthy reports the /health condition: not draining.
func (s *State) Healthy() bool { return !s.draining.Load() }

// NewServer builds the probe HTTP server (§6a): /health and /ready,
// each a plain 200/503 depending on State.
func NewServer(addr string, state *State) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if state.Healthy() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("healthy"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("draining"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if state.IsReady() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
	})

	return &http.Server{Addr: addr, Handler: mux}
}
