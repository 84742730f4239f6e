// ABOUTME: Read-only HTTP status endpoint exposing the live registry and
// ABOUTME: central plan, for an external dashboard/monitor to poll.

package coordinator

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nanoagent/swarmcore/swarm/blackboard"
	"github.com/nanoagent/swarmcore/swarm/registry"
)

// StatusServer is an optional, read-only chi-routed HTTP server exposing
// the swarm's current registry and plan state, grounded on the teacher's
// editor.Server (chi.NewRouter + method handlers bound to a shared store).
type StatusServer struct {
	router chi.Router
	reg    *registry.Store
	store  *blackboard.Store
	srv    *http.Server
}

// NewStatusServer builds a StatusServer reading from reg and store; call
// ListenAndServe to start it.
func NewStatusServer(reg *registry.Store, store *blackboard.Store) *StatusServer {
	s := &StatusServer{reg: reg, store: store}

	r := chi.NewRouter()
	r.Get("/status/agents", s.handleAgents)
	r.Get("/status/plan", s.handlePlan)
	r.Get("/healthz", s.handleHealthz)
	s.router = r

	return s
}

// ListenAndServe starts the server on addr, blocking until it's closed.
// Every error it returns, http.ErrServerClosed included, is discarded
// here — the status server is diagnostic, never load-bearing for the
// mission itself.
func (s *StatusServer) ListenAndServe(addr string) {
	s.srv = &http.Server{Addr: addr, Handler: s.router}
	_ = s.srv.ListenAndServe()
}

// Close shuts the server down, if it was started.
func (s *StatusServer) Close() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(context.Background())
}

func (s *StatusServer) handleAgents(w http.ResponseWriter, r *http.Request) {
	report := s.reg.VerifyAndSyncPIDs()
	writeJSON(w, report)
}

func (s *StatusServer) handlePlan(w http.ResponseWriter, r *http.Request) {
	idx, err := s.store.ReadIndex(blackboard.CentralPlanFile)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	plan, _, _, err := blackboard.ParsePlan(idx.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, plan)
}

func (s *StatusServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
