package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gamesmith/internal/assembler"
	"gamesmith/internal/logging"
	"gamesmith/internal/session"
)

type planRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

type cycleRequest struct {
	Instruction string               `json:"instruction"`
	ErrorReport *session.ErrorReport `json:"error_report"`
}

type assembleRequest struct {
	Structure string `json:"structure"`
	Style     string `json:"style"`
	Behavior  string `json:"behavior"`
}

// handlePlan creates a session from a prompt, or replaces the plan of an
// existing one when session_id is set.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.orch.CreateOrUpdatePlan(r.Context(), req.Prompt, req.SessionID)
	if err != nil {
		WriteFault(w, err)
		return
	}

	status := http.StatusOK
	if req.SessionID == "" {
		status = http.StatusCreated
	}
	s.hub.Broadcast(sess.ID, "session_update", map[string]interface{}{
		"status": sess.Status,
		"title":  sess.Plan.Title,
	})
	JSON(w, status, viewSession(sess))
}

// handleCycle runs one coding cycle. The body is optional: an empty body
// means "continue with the plan".
func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req cycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.orch.RunCycle(r.Context(), id, req.Instruction, req.ErrorReport)
	if err != nil {
		WriteFault(w, err)
		return
	}

	s.hub.Broadcast(id, "cycle_complete", map[string]interface{}{
		"status":  result.Session.Status,
		"message": result.Message,
		"lines":   result.Lines,
	})
	JSON(w, http.StatusOK, cycleView{
		Session: viewSession(result.Session),
		Message: result.Message,
		Lines:   result.Lines,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteFault(w, err)
		return
	}
	JSON(w, http.StatusOK, viewSession(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.List()
	if err != nil {
		WriteFault(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": rows})
}

// handleAssemble composes arbitrary fragments into a full document. Used by
// clients that render previews themselves.
func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	var req assembleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	document, diagnostics := assembler.Assemble(req.Structure, req.Style, req.Behavior)
	if diagnostics == nil {
		diagnostics = []string{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"document":    document,
		"diagnostics": diagnostics,
	})
}

// handleDocument serves the assembled game document for the session. This
// is what the preview iframe loads.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteFault(w, err)
		return
	}

	document, diagnostics := assembler.Assemble(
		sess.Fragments.Structure,
		sess.Fragments.Style,
		sess.Fragments.Behavior,
	)
	for _, d := range diagnostics {
		logging.AssemblerWarn("session %s: %s", sess.ID, d)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(document))
}

// handleAsset streams a generated image.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	name := chi.URLParam(r, "name")

	rc, err := s.assets.Open(sessionID, name)
	if err != nil {
		Error(w, http.StatusNotFound, "asset not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		logging.APIDebug("asset stream interrupted for %s/%s: %v", sessionID, name, err)
	}
}

// handleEvents joins the session's WebSocket room.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(id); err != nil {
		WriteFault(w, err)
		return
	}
	s.hub.ServeWS(w, r, id)
}
