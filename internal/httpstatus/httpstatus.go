// httpstatus.go — local HTTP surface reporting a run's execution state to
// whatever UI is watching it (§1's "reports progress...to a UI surface"),
// grounded on the teacher pack's thebtf-engram internal/worker/service.go
// chi router (middleware stack, Get-per-resource route table).
package httpstatus

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brennhill/macrorun/internal/obslog"
	"github.com/brennhill/macrorun/internal/state"
)

// Server exposes a state.Manager's run state as JSON/CSV over HTTP.
type Server struct {
	Manager *state.Manager
	router  chi.Router
}

// New builds a Server backed by mgr. Its router is ready to serve
// immediately; call ListenAndServe to run it standalone.
func New(mgr *state.Manager) *Server {
	s := &Server{Manager: mgr}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/state", s.handleState)
	r.Get("/snapshots", s.handleSnapshots)
	r.Get("/stopwatch.csv", s.handleStopwatchCSV)
	return r
}

// Handler returns the underlying http.Handler, for embedding or testing.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe runs the status server on addr until ctx-independent error
// or process exit; callers typically run this in a goroutine.
func (s *Server) ListenAndServe(addr string) error {
	lg := obslog.Component("httpstatus")
	lg.Info().Str("addr", addr).Msg("status server listening")
	return http.ListenAndServe(addr, s.router) // #nosec G114 -- localhost status endpoint, no external exposure expected
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	data, err := s.Manager.Serialize()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps := s.Manager.Snapshots()
	w.Header().Set("Content-Type", "application/json")
	if err := writeJSON(w, snaps); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleStopwatchCSV(w http.ResponseWriter, r *http.Request) {
	status := "running"
	code := 0
	if s.Manager.HasError() {
		status = s.Manager.ErrorMessage()
		code = int(s.Manager.ErrorCode())
	}
	csv := s.Manager.Stopwatches().CSV("macro", status, code)
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte(csv))
}
