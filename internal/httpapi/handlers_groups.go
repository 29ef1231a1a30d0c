package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gitlab.com/yelinaung/sharedbudget/internal/models"
)

type createGroupRequest struct {
	Name    string          `json:"name"`
	Members []models.Member `json:"members"`
}

type membersRequest struct {
	Members []models.Member `json:"members"`
}

type contactsRequest struct {
	Contacts []models.Contact `json:"contacts"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.deps.Groups.ListUserGroups(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	group, err := s.deps.Groups.CreateGroup(r.Context(), caller(r), req.Name, req.Members)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.deps.Groups.GetGroup(r.Context(), caller(r), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Groups.DeleteGroup(r.Context(), caller(r), chi.URLParam(r, "groupID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCascade(w, result)
}

func (s *Server) handleAddMembers(w http.ResponseWriter, r *http.Request) {
	var req membersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	group, err := s.deps.Groups.AddMembers(r.Context(), caller(r), chi.URLParam(r, "groupID"), req.Members)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// handleRemoveMember serves both an owner removing someone and a member
// leaving on their own.
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Groups.RemoveMember(r.Context(), caller(r), chi.URLParam(r, "groupID"), chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMatchContacts(w http.ResponseWriter, r *http.Request) {
	var req contactsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	matches, err := s.deps.Groups.MatchContactsToUsers(r.Context(), req.Contacts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}
