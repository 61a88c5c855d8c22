// Package monitor serves live sequencer statistics over HTTP.
package monitor

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/mux"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/gouvm/seq"
)

// Stats is a snapshot of one sequencer.
type Stats struct {
	Name        string   `json:"name"`
	Arbitration string   `json:"arbitration"`
	Requests    int      `json:"requests"`
	Grants      int      `json:"grants"`
	LockGrants  int      `json:"lock_grants"`
	ItemsDone   int      `json:"items_done"`
	Purged      int      `json:"purged"`
	Pending     int      `json:"pending"`
	Locks       []string `json:"locks"`
	Time        float64  `json:"time"`
}

// Server collects statistics through sequencer hooks and serves them as
// JSON.
type Server struct {
	mu    sync.Mutex
	stats map[string]*Stats
}

// NewServer creates an empty server.
func NewServer() *Server {
	return &Server{stats: make(map[string]*Stats)}
}

// Register starts watching sqr.
func (s *Server) Register(sqr *seq.Sequencer) {
	st := &Stats{Name: sqr.FullName()}
	snapshot(st, sqr)

	s.mu.Lock()
	s.stats[st.Name] = st
	s.mu.Unlock()

	sqr.AcceptHook(s)
}

// Func updates the statistics of the sequencer that fired the hook.
func (s *Server) Func(ctx sim.HookCtx) {
	sqr, ok := ctx.Domain.(*seq.Sequencer)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[sqr.FullName()]
	if !ok {
		return
	}

	switch ctx.Pos {
	case seq.HookPosRequest:
		st.Requests++
	case seq.HookPosGrant:
		st.Grants++
	case seq.HookPosLockGrant:
		st.LockGrants++
	case seq.HookPosItemDone:
		st.ItemsDone++
	case seq.HookPosPurge:
		st.Purged++
	}

	snapshot(st, sqr)
}

func snapshot(st *Stats, sqr *seq.Sequencer) {
	st.Arbitration = sqr.Arbitration().String()
	st.Pending = len(sqr.PendingRequests())
	st.Time = float64(sqr.Scheduler().Now())

	st.Locks = st.Locks[:0]
	for _, l := range sqr.LockList() {
		st.Locks = append(st.Locks, l.FullName())
	}
}

// Stats returns a copy of the statistics of the named sequencer.
func (s *Server) Stats(name string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[name]
	if !ok {
		return Stats{}, false
	}

	c := *st
	c.Locks = append([]string{}, st.Locks...)

	return c, true
}

func (s *Server) all() []Stats {
	s.mu.Lock()
	names := make([]string, 0, len(s.stats))
	for n := range s.stats {
		names = append(names, n)
	}
	s.mu.Unlock()

	sort.Strings(names)

	list := make([]Stats, 0, len(names))
	for _, n := range names {
		if st, ok := s.Stats(n); ok {
			list = append(list, st)
		}
	}

	return list
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/sequencers", s.listSequencers).Methods(http.MethodGet)
	r.HandleFunc("/api/sequencers/{name}", s.getSequencer).
		Methods(http.MethodGet)

	return r
}

// ListenAndServe serves the routes on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) listSequencers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.all())
}

func (s *Server) getSequencer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	st, ok := s.Stats(name)
	if !ok {
		writeJSON(w, http.StatusNotFound,
			map[string]string{"error": "no sequencer named " + name})
		return
	}

	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		panic(err)
	}
}
