package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kurobon/retcon/internal/session"
)

// Opener opens the repository at path for editing.
type Opener func(path string) (session.Storage, error)

// DefaultIdleTimeout is how long an unused session is kept.
const DefaultIdleTimeout = 30 * time.Minute

type Server struct {
	Mux *http.ServeMux
	// IdleTimeout drops sessions not used for this long. Zero keeps them.
	IdleTimeout time.Duration

	open     Opener
	opts     session.Options
	log      *logrus.Entry
	now      func() time.Time
	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	sess *session.Session
	used time.Time
}

func NewServer(open Opener, opts session.Options, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		Mux:         http.NewServeMux(),
		IdleTimeout: DefaultIdleTimeout,
		open:        open,
		opts:        opts,
		log:         log.WithField("component", "server"),
		now:         time.Now,
		sessions:    make(map[string]*entry),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Mux.HandleFunc("/ping", s.handlePing)
	s.Mux.HandleFunc("/api/session/init", s.handleInitSession)
	s.Mux.HandleFunc("/api/session/close", s.handleCloseSession)
	s.Mux.HandleFunc("/api/rows", s.handleRows)
	s.Mux.HandleFunc("/api/edit", s.handleEdit)
	s.Mux.HandleFunc("/api/delete", s.handleDelete)
	s.Mux.HandleFunc("/api/move", s.handleMove)
	s.Mux.HandleFunc("/api/undo", s.handleUndo)
	s.Mux.HandleFunc("/api/redo", s.handleRedo)
	s.Mux.HandleFunc("/api/plan", s.handlePlan)
	s.Mux.HandleFunc("/api/write", s.handleWrite)
	s.Mux.HandleFunc("/api/discard", s.handleDiscard)
	s.Mux.HandleFunc("/api/filter", s.handleFilter)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Debug("request")
	s.Mux.ServeHTTP(w, r)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "pong",
		"system":  "retcon",
	})
}

type initRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleInitSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Path == "" {
		req.Path = "."
	}

	storage, err := s.open(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := session.New(storage, s.opts)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.expireLocked()
	s.sessions[id] = &entry{sess: sess, used: s.now()}
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"session": id, "path": req.Path, "branch": sess.Branch()}).Info("session created")

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "session created",
		"sessionId": id,
		"branch":    sess.Branch(),
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRef
	if s.withSession(w, r, &req) == nil {
		return
	}
	s.mu.Lock()
	delete(s.sessions, req.SessionID)
	s.mu.Unlock()
	s.log.WithField("session", req.SessionID).Info("session closed")
	writeJSON(w, http.StatusOK, map[string]string{"status": "session closed"})
}

// session returns a live session and marks it used.
func (s *Server) session(id string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.used = s.now()
	return e.sess, true
}

func (s *Server) expireLocked() {
	if s.IdleTimeout <= 0 {
		return
	}
	cutoff := s.now().Add(-s.IdleTimeout)
	for id, e := range s.sessions {
		if e.used.Before(cutoff) {
			delete(s.sessions, id)
			s.log.WithField("session", id).Info("session expired")
		}
	}
}

// withSession decodes a POST body carrying a sessionId into req and resolves
// the session. It writes the error response itself and returns nil on failure.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, req sessionRequest) *session.Session {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil
	}
	return s.lookup(w, req.session())
}

func (s *Server) lookup(w http.ResponseWriter, id string) *session.Session {
	sess, ok := s.session(id)
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound.New(id))
		return nil
	}
	return sess
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
