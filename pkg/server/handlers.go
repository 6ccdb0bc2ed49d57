package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/nstogner/tapestry/pkg/document"
	"github.com/nstogner/tapestry/pkg/ulid"
)

// --- Weaves ---

func (s *Server) handleListWeaves(w http.ResponseWriter, r *http.Request) {
	recs, err := s.manager.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, recs)
}

func (s *Server) handleCreateWeave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, err)
			return
		}
	}

	doc, err := s.manager.Create(r.Context(), req.Name)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, doc.Summary())
}

func (s *Server) handleImportWeave(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		s.errorResponse(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	doc, err := s.manager.Import(r.Context(), r.URL.Query().Get("name"), data)
	if err != nil {
		s.errorResponse(w, statusOf(err), err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, doc.Summary())
}

func (s *Server) handleGetWeave(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.openDocument(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, doc.Summary())
}

func (s *Server) handleDeleteWeave(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.manager.Delete(r.Context(), id); err != nil {
		s.errorResponse(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Weave Actions ---

func (s *Server) handleSaveWeave(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.openDocument(w, r)
	if !ok {
		return
	}
	rev, err := s.manager.Save(r.Context(), doc.ID())
	if err != nil {
		s.errorResponse(w, statusOf(err), err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rev)
}

func (s *Server) handleCloseWeave(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.manager.Close(id); err != nil {
		s.errorResponse(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportWeave(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.openDocument(w, r)
	if !ok {
		return
	}
	data := doc.Export()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.ID().String()+".tapestry"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	revs, err := s.manager.Revisions(r.Context(), id)
	if err != nil {
		s.errorResponse(w, statusOf(err), err)
		return
	}
	s.jsonResponse(w, http.StatusOK, revs)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (ulid.ID, bool) {
	id, err := ulid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("invalid weave id: %w", err))
		return ulid.Nil, false
	}
	return id, true
}

func (s *Server) openDocument(w http.ResponseWriter, r *http.Request) (*document.Document, bool) {
	id, ok := s.pathID(w, r)
	if !ok {
		return nil, false
	}
	doc, err := s.manager.Open(r.Context(), id)
	if err != nil {
		s.errorResponse(w, statusOf(err), err)
		return nil, false
	}
	return doc, true
}
