package httpapi

import (
	"net/http"

	"gitlab.com/yelinaung/sharedbudget/internal/models"
	"gitlab.com/yelinaung/sharedbudget/internal/service"
)

// credentialRequest carries the current password that every identity change
// must re-submit.
type credentialRequest struct {
	Password string `json:"password"`
}

type identityRequest struct {
	credentialRequest
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type passwordRequest struct {
	Current string `json:"currentPassword"`
	New     string `json:"newPassword"`
}

type pictureRequest struct {
	Picture string `json:"profilePictureBase64"`
}

// identityResponse is the updated user plus the outcome of copying the change
// into groups and shared budgets.
type identityResponse struct {
	User        *models.User          `json:"user"`
	Propagation service.CascadeResult `json:"propagation"`
}

func (s *Server) handleUpdateName(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, result, err := s.deps.Profiles.UpdateName(r.Context(), caller(r), req.Password, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeIdentity(w, user, result)
}

func (s *Server) handleUpdatePhone(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, result, err := s.deps.Profiles.UpdatePhone(r.Context(), caller(r), req.Password, req.Phone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeIdentity(w, user, result)
}

func writeIdentity(w http.ResponseWriter, user *models.User, result service.CascadeResult) {
	status, result := cascadeStatus(result)
	writeJSON(w, status, identityResponse{User: user, Propagation: result})
}

func (s *Server) handleUpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.deps.Profiles.UpdateEmail(r.Context(), caller(r), req.Password, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Profiles.UpdatePassword(r.Context(), caller(r), req.Current, req.New); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdatePicture(w http.ResponseWriter, r *http.Request) {
	var req pictureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.deps.Profiles.UpdateProfilePicture(r.Context(), caller(r), req.Picture)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteAccount runs the deletion cascade and ends every session of the
// user once it has completed.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	uid := caller(r)
	result, err := s.deps.Profiles.DeleteAccount(r.Context(), uid, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result.OK() {
		s.deps.Sessions.SignOutUser(uid)
	}
	writeCascade(w, result)
}
