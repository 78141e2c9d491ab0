package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sirupsen/logrus"
	goerrors "gopkg.in/src-d/go-errors.v1"

	"github.com/kurobon/retcon/internal/rewrite"
	"github.com/kurobon/retcon/internal/session"
	"github.com/kurobon/retcon/internal/state"
)

var errSessionNotFound = goerrors.NewKind("session %s not found")

type sessionRequest interface {
	session() string
}

type sessionRef struct {
	SessionID string `json:"sessionId"`
}

func (r sessionRef) session() string { return r.SessionID }

type editRequest struct {
	sessionRef
	Commits []string `json:"commits"`
	Field   string   `json:"field"`
	Value   string   `json:"value"`
}

type commitRequest struct {
	sessionRef
	Commit string `json:"commit"`
}

type moveRequest struct {
	sessionRef
	Position  int    `json:"position"`
	Direction string `json:"direction"`
}

type writeRequest struct {
	sessionRef
	DryRun bool `json:"dryRun"`
}

type filterRequest struct {
	sessionRef
	Query string `json:"query"`
}

// Row is the wire form of a display row.
type Row struct {
	Position       int    `json:"position"`
	ID             string `json:"id"`
	ShortID        string `json:"shortId"`
	Summary        string `json:"summary"`
	Message        string `json:"message"`
	AuthorName     string `json:"authorName"`
	AuthorEmail    string `json:"authorEmail"`
	AuthorDate     string `json:"authorDate"`
	CommitterName  string `json:"committerName"`
	CommitterEmail string `json:"committerEmail"`
	CommitterDate  string `json:"committerDate"`
	Deleted        bool   `json:"deleted"`
	Modified       bool   `json:"modified"`
	Moved          bool   `json:"moved"`
	Merge          bool   `json:"merge"`
}

func toRow(r session.Row) Row {
	e := r.Effective
	return Row{
		Position:       r.Position,
		ID:             r.ID.String(),
		ShortID:        state.ShortHash(r.ID),
		Summary:        state.Summary(e.Message),
		Message:        e.Message,
		AuthorName:     e.Author.Name,
		AuthorEmail:    e.Author.Email,
		AuthorDate:     state.FormatTimestamp(e.Author.When),
		CommitterName:  e.Committer.Name,
		CommitterEmail: e.Committer.Email,
		CommitterDate:  state.FormatTimestamp(e.Committer.When),
		Deleted:        r.Deleted,
		Modified:       r.Modified,
		Moved:          r.Moved,
		Merge:          r.Merge(),
	}
}

type rowsResponse struct {
	Status session.Status `json:"status"`
	Rows   []Row          `json:"rows"`
}

func respondRows(w http.ResponseWriter, sess *session.Session) {
	rows := sess.Visible()
	out := rowsResponse{Status: sess.Status(), Rows: make([]Row, len(rows))}
	for i, r := range rows {
		out.Rows[i] = toRow(r)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if sess := s.lookup(w, r.URL.Query().Get("sessionId")); sess != nil {
		respondRows(w, sess)
	}
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	sess := s.withSession(w, r, &req)
	if sess == nil {
		return
	}
	field, err := state.ParseField(req.Field)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ids := make([]plumbing.Hash, 0, len(req.Commits))
	for _, c := range req.Commits {
		id, err := sess.Lookup(c)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, state.ErrUnknownCommit.New("(none)"))
		return
	}
	if _, err := sess.ApplyBatchEdit(ids, field, req.Value); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	respondRows(w, sess)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	sess := s.withSession(w, r, &req)
	if sess == nil {
		return
	}
	id, err := sess.Lookup(req.Commit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if _, err := sess.ToggleDelete(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	respondRows(w, sess)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	sess := s.withSession(w, r, &req)
	if sess == nil {
		return
	}
	dir, err := state.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := sess.MoveCommit(req.Position, dir); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	respondRows(w, sess)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	var req sessionRef
	sess := s.withSession(w, r, &req)
	if sess == nil {
		return
	}
	if _, err := sess.Undo(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	respondRows(w, sess)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	var req sessionRef
	sess := s.withSession(w, r, &req)
	if sess == nil {
		return
	}
	if _, err := sess.Redo(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	respondRows(w, sess)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	var req sessionRef
	sess := s.withSession(w, r, &req)
	if sess == nil {
		return
	}
	sess.DiscardAllPending()
	respondRows(w, sess)
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	sess := s.withSession(w, r, &req)
	if sess == nil {
		return
	}
	sess.SetFilter(req.Query)
	respondRows(w, sess)
}

type planStep struct {
	Action   string   `json:"action"`
	Original string   `json:"original"`
	Summary  string   `json:"summary"`
	Parents  []string `json:"parents"`
}

type planResponse struct {
	Empty   bool       `json:"empty"`
	Base    string     `json:"base,omitempty"`
	Steps   []planStep `json:"steps"`
	Summary []string   `json:"summary"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := s.lookup(w, r.URL.Query().Get("sessionId"))
	if sess == nil {
		return
	}
	plan, sum, err := sess.PreviewPlan()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	out := planResponse{Empty: plan.Empty(), Steps: []planStep{}, Summary: sum.Lines()}
	if !plan.Base.IsZero() {
		out.Base = plan.Base.String()
	}
	for _, step := range plan.Steps {
		ps := planStep{Action: step.Action.String(), Original: step.Original.String(), Summary: state.Summary(step.Message)}
		for _, p := range step.Parents {
			ps.Parents = append(ps.Parents, p.String())
		}
		out.Steps = append(out.Steps, ps)
	}
	writeJSON(w, http.StatusOK, out)
}

type writeResponse struct {
	Branch     string            `json:"branch"`
	OldTip     string            `json:"oldTip"`
	NewTip     string            `json:"newTip"`
	Backup     string            `json:"backup,omitempty"`
	DryRun     bool              `json:"dryRun"`
	Identities map[string]string `json:"identities"`
	Warnings   []string          `json:"warnings,omitempty"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	sess := s.withSession(w, r, &req)
	if sess == nil {
		return
	}

	start := time.Now()
	res, err := sess.WriteChanges(r.Context(), rewrite.Options{DryRun: req.DryRun})
	if err != nil {
		s.log.WithError(err).WithField("session", req.SessionID).Warn("write failed")
		writeError(w, statusFor(err), err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"session": req.SessionID,
		"dry_run": res.DryRun,
		"elapsed": time.Since(start).String(),
	}).Info("write finished")

	out := writeResponse{
		Branch:     res.Branch,
		OldTip:     res.OldTip.String(),
		NewTip:     res.NewTip.String(),
		Backup:     res.Backup.String(),
		DryRun:     res.DryRun,
		Identities: make(map[string]string),
	}
	for from, to := range res.Identities {
		if from != to {
			out.Identities[from.String()] = to.String()
		}
	}
	for _, warn := range res.Warnings {
		out.Warnings = append(out.Warnings, warn.Error())
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var verr *state.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case state.ErrUnknownCommit.Is(err), session.ErrAmbiguousCommit.Is(err), errSessionNotFound.Is(err):
		return http.StatusNotFound
	case state.ErrMergeCommitUnreorderable.Is(err),
		state.ErrNotLinearlyAdjacent.Is(err),
		state.ErrPositionOutOfRange.Is(err),
		session.ErrFilterActive.Is(err),
		state.ErrNothingToUndo.Is(err),
		state.ErrNothingToRedo.Is(err),
		rewrite.ErrBackupRefExists.Is(err),
		rewrite.ErrRefUpdateConflict.Is(err),
		rewrite.ErrDirtyTreeStashFailed.Is(err):
		return http.StatusConflict
	case rewrite.ErrEmptyHistory.Is(err), rewrite.ErrCyclicReorder.Is(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
